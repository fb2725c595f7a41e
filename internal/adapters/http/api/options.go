package api

const defaultMaxListSize = 200

type options struct {
	maxListSize int
}

// Option applies a configuration option to the Server.
type Option func(*options)

// WithMaxListSize caps the page size of GET /tanks.
func WithMaxListSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxListSize = n
		}
	}
}
