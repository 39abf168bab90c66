// Package api provides factory implementations for dependency injection
package api

import (
	"context"
	"net/http"
)

// DefaultServerStarter listens on the configured address
type DefaultServerStarter struct{}

// NewServerStarter creates the default server starter
func NewServerStarter() ServerStarter {
	return &DefaultServerStarter{}
}

// StartServer starts the API server with the given configuration
func (s *DefaultServerStarter) StartServer(ctx context.Context, handler http.Handler, config ServerConfig) error {
	return StartServer(ctx, handler, config)
}
