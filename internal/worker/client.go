package worker

import (
	"io"
	"sync"

	"go.trai.ch/respawn/internal/bridge"
	"go.trai.ch/respawn/internal/core/domain"
)

// Client performs bridge exchanges from inside the worker: it announces each
// load on the control channel, then blocks on the bridge channel until both
// response frames have arrived.
type Client struct {
	mu     sync.Mutex
	enc    *bridge.Encoder
	r      io.Reader
	broken bool
}

// NewClient creates a client that sends requests through enc and reads
// responses from r.
func NewClient(enc *bridge.Encoder, r io.Reader) *Client {
	return &Client{enc: enc, r: r}
}

// Fetch asks the coordinator for the compiled form of path. Once an exchange
// fails the stream position is unknown, so every later call fails fast and
// loads fall back to native.
func (c *Client) Fetch(path string) (bridge.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.broken {
		return bridge.Response{}, domain.ErrFrameTruncated
	}

	if err := c.enc.Encode(bridge.LoadRequest(path)); err != nil {
		c.broken = true
		return bridge.Response{}, err
	}

	resp, err := bridge.ReadResponse(c.r)
	if err != nil {
		c.broken = true
		return bridge.Response{}, err
	}
	return resp, nil
}
