package ports

import "go.trai.ch/respawn/internal/core/domain"

// ConfigLoader defines the interface for loading project configuration.
//
//go:generate mockgen -source=config_loader.go -destination=mocks/mock_config_loader.go -package=mocks
type ConfigLoader interface {
	// Load finds the project configuration starting at cwd and walking up,
	// and returns the options it declares. A missing file yields zero options.
	Load(cwd string) (domain.Options, string, error)
}
