// Package api provides interfaces for dependency injection
package api

import (
	"context"
	"net/http"
)

// ServerStarter runs the inspector until ctx is cancelled
type ServerStarter interface {
	StartServer(ctx context.Context, handler http.Handler, config ServerConfig) error
}
