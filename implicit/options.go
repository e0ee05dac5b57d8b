package implicit

import (
	"time"

	"github.com/hashicorp/go-hclog"
)

// Option defines a common functional options type
type Option func(interface{})

// ApplyOpts takes a pointer to the options struct as a set of default options
// and applies the slice of opts as overrides.
func ApplyOpts(opts interface{}, opt ...Option) {
	for _, o := range opt {
		if o == nil { // ignore any nil Options
			continue
		}
		o(opts)
	}
}

// WithLogger provides an optional logger for: Driver, Verifier
func WithLogger(l hclog.Logger) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *driverOptions:
			v.withLogger = l
		case *verifierOptions:
			v.withLogger = l
		}
	}
}

// WithNow provides an optional func for determining what the current time it
// is for: Driver, Verifier
func WithNow(now func() time.Time) Option {
	return func(o interface{}) {
		switch v := o.(type) {
		case *driverOptions:
			v.withNowFunc = now
		case *verifierOptions:
			v.withNowFunc = now
		}
	}
}
