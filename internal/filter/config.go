package filter

import (
	"strings"

	"github.com/danmuck/edgefilter/internal/broadcast"
	"github.com/danmuck/edgefilter/internal/ringbuf"
)

const (
	DefaultName           = "default"
	DefaultStreamCapacity = 16
	DefaultStripes        = 16
)

// Config sizes the filter's buffers.
type Config struct {
	// Name labels logs and metrics.
	Name              string
	UnmatchedCapacity int
	StreamCapacity    int
	BroadcastCapacity int
	Stripes           int
}

func DefaultConfig() Config {
	return Config{
		Name:              DefaultName,
		UnmatchedCapacity: ringbuf.DefaultCapacity,
		StreamCapacity:    DefaultStreamCapacity,
		BroadcastCapacity: broadcast.DefaultCapacity,
		Stripes:           DefaultStripes,
	}
}

// WithDefaults fills zero or negative fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if strings.TrimSpace(c.Name) == "" {
		c.Name = d.Name
	}
	if c.UnmatchedCapacity <= 0 {
		c.UnmatchedCapacity = d.UnmatchedCapacity
	}
	if c.StreamCapacity <= 0 {
		c.StreamCapacity = d.StreamCapacity
	}
	if c.BroadcastCapacity <= 0 {
		c.BroadcastCapacity = d.BroadcastCapacity
	}
	if c.Stripes <= 0 {
		c.Stripes = d.Stripes
	}
	return c
}
