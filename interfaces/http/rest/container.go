package rest

import (
	"fmt"

	"tattoo-datasync/infrastructure/di"
	"tattoo-datasync/pkg/auth"
)

// NewRouterFromContainer builds the admin router from a wired container.
// Authentication is on whenever JWT_SECRET is set.
func NewRouterFromContainer(c *di.Container) (*Router, error) {
	var validator *auth.JWTValidator
	if c.Config.JWTSecret != "" {
		v, err := auth.NewJWTValidator(c.Config.JWTSecret, c.Config.JWTIssuer)
		if err != nil {
			return nil, fmt.Errorf("failed to create JWT validator: %w", err)
		}
		validator = v
	}

	return NewRouter(Services{
		Exporter:     c.Exporter,
		Migrations:   c.Migrations,
		Synchronizer: c.Synchronizer,
		Resolver:     c.Resolver,
		Guard:        c.Guard,
	}, Options{
		Validator:         validator,
		Collector:         c.Collector,
		Tracer:            c.Tracer,
		RequestsPerMinute: c.Config.APIRateLimit,
		EnableCORS:        c.Config.EnableCORS,
		Debug:             c.Config.IsDevelopment(),
	}, c.Logger), nil
}
