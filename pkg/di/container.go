// Package di provides dependency injection container
package di

import (
	"github.com/ssargent/framedb/pkg/api"
	"github.com/ssargent/framedb/pkg/config"
	"github.com/ssargent/framedb/pkg/storage"
)

// BackendFactory opens the storage backend for a configuration
type BackendFactory func(cfg *config.Config) (storage.Backend, error)

// Container holds all the dependencies for the application
type Container struct {
	backendFactory BackendFactory
	serverStarter  api.ServerStarter
}

// NewContainer creates a new dependency injection container
func NewContainer() *Container {
	return &Container{
		backendFactory: func(cfg *config.Config) (storage.Backend, error) {
			return cfg.OpenBackend()
		},
		serverStarter: api.NewServerStarter(),
	}
}

// GetBackendFactory returns the backend factory
func (c *Container) GetBackendFactory() BackendFactory {
	return c.backendFactory
}

// SetBackendFactory allows overriding the backend factory (for testing)
func (c *Container) SetBackendFactory(factory BackendFactory) {
	c.backendFactory = factory
}

// GetServerStarter returns the server starter
func (c *Container) GetServerStarter() api.ServerStarter {
	return c.serverStarter
}

// SetServerStarter allows overriding the server starter (for testing)
func (c *Container) SetServerStarter(starter api.ServerStarter) {
	c.serverStarter = starter
}
