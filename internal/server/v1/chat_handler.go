package v1

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/proapi/proapi/internal/gateway"
	"github.com/proapi/proapi/internal/server/middleware"
	"github.com/proapi/proapi/internal/server/validator"
	"github.com/proapi/proapi/internal/upstream"
	"github.com/proapi/proapi/pkg/api"
)

type ChatHandler struct {
	service *gateway.Service
}

// newRequestID returns a short hex correlation id.
func newRequestID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func NewChatHandler(service *gateway.Service) *ChatHandler {
	return &ChatHandler{service: service}
}

func (h *ChatHandler) CreateCompletion(c *gin.Context) {
	var req api.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		// returns RFC compliant error
		_ = c.Error(api.ValidationError(validator.ParseError(err)))
		return
	}

	token := c.GetString(middleware.ContextToken)
	requestID := newRequestID()

	// if we want to stream the response, roll down into streaming
	if req.Stream {
		h.handleStream(c, token, requestID, &req)
		return
	}

	resp, err := h.service.Chat(c.Request.Context(), token, requestID, &req)
	if err != nil {
		_ = c.Error(err)
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (h *ChatHandler) handleStream(c *gin.Context, token, requestID string, req *api.ChatRequest) {
	streamChan, err := h.service.Stream(c.Request.Context(), token, requestID, req)
	if err != nil {
		// the stream never opened, so a plain json body is still possible
		var problem *api.Problem
		if errors.As(err, &problem) {
			c.JSON(problem.Status, problem)
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	// set headers for sse
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("Transfer-Encoding", "chunked")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	c.Writer.WriteHeader(http.StatusOK)
	c.Writer.Flush()

	wroteDone := false

	// consume the channel and flush to http
	c.Stream(func(w io.Writer) bool {
		result, ok := <-streamChan
		if !ok {
			if !wroteDone {
				wroteDone = true
				_, _ = io.WriteString(w, "data: [DONE]\n\n")
			}
			return false
		}

		if result.Err != nil {
			// the headers are already out, so the error rides inside a
			// final chunk before the stream terminates
			reason := "error"
			errResp := api.ChatResponse{
				ID:     upstream.CompletionID(requestID),
				Object: upstream.ObjectChunk,
				Model:  req.Model,
				Choices: []api.Choice{{
					FinishReason: &reason,
					Error:        &api.ErrorResponse{Message: result.Err.Error()},
				}},
			}
			data, _ := json.Marshal(errResp)
			_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
			wroteDone = true
			_, _ = io.WriteString(w, "data: [DONE]\n\n")
			return false
		}

		if result.Chunk != nil {
			data, err := json.Marshal(result.Chunk)
			if err == nil {
				_, err := fmt.Fprintf(w, "data: %s\n\n", data)
				return err == nil
			}
		}

		// terminal stats items carry accounting only, nothing to emit
		return true
	})
}
