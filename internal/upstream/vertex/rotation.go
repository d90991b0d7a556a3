package vertex

import (
	"encoding/json"
	"io"
	"sync"
)

// rotator cycles through regional endpoints, one step per request. Regions
// carry no weights; spreading load evenly is the whole point.
type rotator struct {
	mu      sync.Mutex
	i       int
	regions []string
}

func newRotator(regions []string) *rotator {
	return &rotator{regions: regions}
}

func (r *rotator) next() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	region := r.regions[r.i]
	r.i = (r.i + 1) % len(r.regions)
	return region
}

func decodeJSON(r io.Reader, v interface{}) error {
	return json.NewDecoder(r).Decode(v)
}
