package routes

import (
	"github.com/jmylchreest/pricewatch-api/internal/http/handlers"
)

// StubHandlers returns handlers without services. Huma only needs the
// signatures to build the OpenAPI document; calling them would panic.
func StubHandlers() *Handlers {
	return &Handlers{
		HealthCheck: handlers.HealthCheck,
		Livez:       handlers.Livez,
		Readyz:      handlers.NewReadyzHandler(nil).Readyz,
		Search:      handlers.NewSearchHandler(nil),
		Track:       handlers.NewTrackHandler(nil),
		Usage:       handlers.NewUsageHandler(nil),
	}
}
