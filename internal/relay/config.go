package relay

import (
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-signal-relay/internal/auth"
)

const (
	DefaultTimeout = 10 * time.Second

	// sweepDelayFactor places the post-detach sweep strictly after the grace
	// deadline.
	sweepDelayFactor = 1.1
)

type Config struct {
	// IDLength is the number of symbols in issued peer ids.
	IDLength int

	// Timeout is both the grace period after a channel closes and the time a
	// freshly connected peer has to open its channel.
	Timeout time.Duration

	// Presence enables connect/disconnect/presence events.
	Presence bool

	// MaxQueuedMessages bounds each peer's pending queue. When the bound is
	// reached the oldest message is dropped. <= 0 means unbounded.
	MaxQueuedMessages int
}

func DefaultConfig() Config {
	return Config{
		IDLength: auth.DefaultIDLength,
		Timeout:  DefaultTimeout,
		Presence: true,
	}
}

// WithDefaults fills in zero numeric fields. Presence is left as given since
// false is a meaningful setting.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.IDLength <= 0 {
		c.IDLength = d.IDLength
	}
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	return c
}

func (c Config) sweepDelay() time.Duration {
	return time.Duration(float64(c.Timeout) * sweepDelayFactor)
}
