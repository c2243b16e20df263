// Package cache keeps the outcome of the latest cycle and of each module's
// latest run, so the side HTTP server can report them.
package cache

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

const CycleKey = "cycle"

func ModuleKey(name string) string { return "module/" + name }

type Result struct {
	At    time.Time `json:"at"`
	TookS float64   `json:"took_seconds"`
	Cycle string    `json:"cycle,omitempty"`
	Err   string    `json:"error,omitempty"`
}

func NewResult(at time.Time, took time.Duration, err error) Result {
	r := Result{At: at.UTC(), TookS: took.Seconds()}
	if err != nil {
		r.Err = err.Error()
	}
	return r
}

// Cache is the interface used by push and the status handler.
type Cache interface {
	Set(key string, r Result)
	Snapshot() map[string]Result
}

// MemCache is an in-memory implementation of Cache.
type MemCache struct {
	mu   sync.RWMutex
	data map[string]Result
}

func NewMemCache() *MemCache {
	return &MemCache{
		data: make(map[string]Result),
	}
}

func (c *MemCache) Set(key string, r Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = r
}

func (c *MemCache) Snapshot() map[string]Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make(map[string]Result, len(c.data))
	for k, v := range c.data {
		out[k] = v
	}
	return out
}

// Handler serves the snapshot as a JSON object keyed by cycle/module.
func Handler(c Cache) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(c.Snapshot())
	})
}
