package upstream

import (
	"context"

	"github.com/proapi/proapi/internal/httpclient"
	"github.com/proapi/proapi/pkg/api"
)

// Normalizer converts one upstream dialect's response into canonical chunks.
// A normalizer lives for exactly one request.
type Normalizer interface {
	// HandleFullResponse converts a buffered upstream body into one
	// canonical completion.
	HandleFullResponse(body []byte) (*api.ChatResponse, error)

	// HandleStreamLine consumes one raw stream line and returns zero or
	// more canonical chunks, plus whether the stream is complete. Lines
	// that do not parse yield no chunks and never abort the stream.
	HandleStreamLine(line string) ([]*api.ChatResponse, bool)

	// Stats reports the accumulated totals; idempotent between lines.
	Stats() Stats
}

// Pump drains an open stream through a normalizer, forwarding chunks and
// closing the channel after the terminal Stats item. It owns the stream.
// Once the context is cancelled the goroutine stops at its next send and
// the stream is closed, so an abandoned consumer never pins the upstream
// connection.
func Pump(ctx context.Context, stream *httpclient.Stream, n Normalizer) <-chan StreamResult {
	out := make(chan StreamResult)
	go func() {
		defer close(out)
		defer stream.Close()

		emit := func(r StreamResult) bool {
			select {
			case out <- r:
				return true
			case <-ctx.Done():
				return false
			}
		}

		for {
			line, ok := stream.Next()
			if !ok {
				break
			}
			chunks, done := n.HandleStreamLine(line)
			for _, c := range chunks {
				if !emit(StreamResult{Chunk: c}) {
					return
				}
			}
			if done {
				break
			}
		}

		if err := stream.Err(); err != nil {
			emit(StreamResult{Err: err})
			return
		}
		stats := n.Stats()
		emit(StreamResult{Stats: &stats})
	}()
	return out
}
