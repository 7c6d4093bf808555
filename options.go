package appext

import (
	"go.uber.org/zap"
)

// DefaultStoredDataSuffix is the file suffix SaveStoredData uses for
// extension packages. Use WithStoredDataSuffix("cfu") for the other kind.
const DefaultStoredDataSuffix = "cfe"

type options struct {
	logger   *zap.Logger
	severity SeverityMatcher
	suffix   string
}

// Option configures a PlugContext and the extensions it creates.
type Option func(*options)

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithSeverityMatcher sets how apply problem severities are classified.
// Default: DefaultSeverityMatcher().
func WithSeverityMatcher(m SeverityMatcher) Option {
	return func(o *options) {
		o.severity = m
	}
}

// WithStoredDataSuffix sets the file suffix used by SaveStoredData.
// Default: DefaultStoredDataSuffix.
func WithStoredDataSuffix(suffix string) Option {
	return func(o *options) {
		o.suffix = suffix
	}
}

func buildOptions(opts []Option) options {
	o := options{
		logger:   zap.NewNop(),
		severity: DefaultSeverityMatcher(),
		suffix:   DefaultStoredDataSuffix,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
