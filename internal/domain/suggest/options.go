package suggest

// Option applies a configuration option to the Index.
type Option func(*Index)

// WithLimit sets the maximum number of suggestions per lookup.
func WithLimit(n int) Option {
	return func(idx *Index) {
		if n > 0 {
			idx.limit = n
		}
	}
}

// WithMaxPrefix bounds the indexed prefix length; longer lookups are
// truncated to it.
func WithMaxPrefix(n int) Option {
	return func(idx *Index) {
		if n > 0 {
			idx.maxPrefix = n
		}
	}
}
