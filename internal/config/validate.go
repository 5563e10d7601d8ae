package config

import (
	"errors"
	"fmt"
	"net"

	"github.com/danmuck/edgefilter/internal/logging"
	"github.com/danmuck/edgefilter/internal/protocol/frame"
	"github.com/hashicorp/go-multierror"
)

var (
	ErrDrainInterval     = errors.New("config: drain_interval must be positive")
	ErrDuplicateName     = errors.New("config: duplicate notification name")
	ErrDuplicateKind     = errors.New("config: duplicate kind")
	ErrUnknownLogLevel   = errors.New("config: unknown log_level")
	ErrInvalidMetricAddr = errors.New("config: invalid metrics_addr")
	ErrMethodLimit       = errors.New("config: limits.max_method_bytes exceeds header capacity")
)

// Validate reports every problem in c at once. Client transport policy is
// only checked when an address is configured.
func (c Config) Validate() error {
	var result *multierror.Error

	if c.Client.Address != "" {
		if err := c.Client.Validate(); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if c.Client.Limits.MaxMethodBytes > frame.MaxMethodLen {
		result = multierror.Append(result, fmt.Errorf("%w: %d > %d", ErrMethodLimit, c.Client.Limits.MaxMethodBytes, frame.MaxMethodLen))
	}
	if c.DrainInterval <= 0 {
		result = multierror.Append(result, ErrDrainInterval)
	}
	if c.MetricsAddr != "" {
		if _, _, err := net.SplitHostPort(c.MetricsAddr); err != nil {
			result = multierror.Append(result, fmt.Errorf("%w: %w", ErrInvalidMetricAddr, err))
		}
	}
	if c.LogLevel != "" {
		if _, ok := logging.ParseLevel(c.LogLevel); !ok {
			result = multierror.Append(result, fmt.Errorf("%w: %q", ErrUnknownLogLevel, c.LogLevel))
		}
	}

	names := make(map[string]struct{}, len(c.Notifications))
	for _, n := range c.Notifications {
		if _, ok := names[n]; ok {
			result = multierror.Append(result, fmt.Errorf("%w: %q", ErrDuplicateName, n))
		}
		names[n] = struct{}{}
	}
	kinds := make(map[string]struct{}, len(c.Kinds))
	for _, k := range c.Kinds {
		if _, ok := kinds[k.String()]; ok {
			result = multierror.Append(result, fmt.Errorf("%w: %s", ErrDuplicateKind, k))
		}
		kinds[k.String()] = struct{}{}
	}
	return result.ErrorOrNil()
}
