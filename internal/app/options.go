package app

import (
	"github.com/stagehq/marquee/internal/adapters/repository"
	"github.com/stagehq/marquee/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(log logger.Logger) Option {
	return func(s *Service) {
		if log != nil {
			s.log = log
		}
	}
}

// WithStore substitutes a pre-built catalog store.
func WithStore(store *repository.CatalogStore) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}
