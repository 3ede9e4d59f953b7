// Package coretest provides in-memory transport doubles for room tests.
package coretest

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/dkeye/Pairwise/internal/core"
)

var ErrSendFailed = errors.New("coretest: send failed")

// Conn records every frame sent to it. It never blocks.
type Conn struct {
	mu          sync.Mutex
	frames      []core.Frame
	closed      bool
	closeCode   int
	closeReason string
	failSends   bool
}

func NewConn() *Conn { return &Conn{} }

func (c *Conn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failSends {
		return ErrSendFailed
	}
	if c.closed {
		return errors.New("coretest: connection closed")
	}
	c.frames = append(c.frames, append(core.Frame(nil), f...))
	return nil
}

func (c *Conn) CloseWith(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
}

func (c *Conn) Close() { c.CloseWith(0, "") }

// FailSends makes every subsequent TrySend return ErrSendFailed.
func (c *Conn) FailSends() {
	c.mu.Lock()
	c.failSends = true
	c.mu.Unlock()
}

func (c *Conn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

// Messages decodes every recorded frame as a JSON object.
func (c *Conn) Messages() []map[string]any {
	var out []map[string]any
	for _, f := range c.Frames() {
		var m map[string]any
		if err := json.Unmarshal(f, &m); err == nil {
			out = append(out, m)
		}
	}
	return out
}

// Types returns the "type" field of every recorded message in order.
func (c *Conn) Types() []string {
	var out []string
	for _, m := range c.Messages() {
		t, _ := m["type"].(string)
		out = append(out, t)
	}
	return out
}

// Reset drops recorded frames.
func (c *Conn) Reset() {
	c.mu.Lock()
	c.frames = nil
	c.mu.Unlock()
}

func (c *Conn) Closed() (bool, int, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed, c.closeCode, c.closeReason
}
