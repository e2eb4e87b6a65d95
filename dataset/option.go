package dataset

// Option can be used to change how a Dataset is assembled.
type Option interface {
	apply(*options)
}

type options struct {
	persist bool
}

type option func(*options)

func (fn option) apply(o *options) { fn(o) }

// WithPersist marks the Dataset to be materialized once and reused
// by all following collections.
func WithPersist() Option {
	return option(func(o *options) { o.persist = true })
}

func newOptions(opts ...Option) options {
	var o options

	for _, opt := range opts {
		opt.apply(&o)
	}

	return o
}
