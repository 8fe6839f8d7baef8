package msgbus

import "log/slog"

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithCapacity bounds the number of live subscriptions. Zero means
// unlimited.
func WithCapacity(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.reg.limit = n
		}
	}
}
