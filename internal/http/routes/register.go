package routes

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/jmylchreest/pricewatch-api/internal/http/mw"
)

// Register registers every route on one API. Used for OpenAPI generation;
// the server registers each group on its own middleware stack.
func Register(api huma.API, h *Handlers) {
	RegisterPublic(api, h)
	RegisterProbes(api, h)
	RegisterProtected(api, h)
	RegisterSearch(api, h)
}

// RegisterPublic registers routes that need no authentication.
func RegisterPublic(api huma.API, h *Handlers) {
	mw.PublicGet(api, "/api/v1/health", h.HealthCheck,
		mw.WithTags("Health"),
		mw.WithSummary("Health check"),
		mw.WithOperationID("healthCheck"))
}

// RegisterProbes registers the hidden liveness and readiness probes.
func RegisterProbes(api huma.API, h *Handlers) {
	mw.HiddenGet(api, "/healthz", h.Livez)
	mw.HiddenGet(api, "/readyz", h.Readyz)
}

// RegisterProtected registers authenticated routes other than search.
func RegisterProtected(api huma.API, h *Handlers) {
	// --- Searches ---
	mw.ProtectedGet(api, "/api/v1/searches", h.Search.ListSearches,
		mw.WithTags("Search"),
		mw.WithSummary("List recent searches"),
		mw.WithOperationID("listSearches"))
	mw.ProtectedGet(api, "/api/v1/searches/{id}", h.Search.GetSearch,
		mw.WithTags("Search"),
		mw.WithSummary("Get a search"),
		mw.WithOperationID("getSearch"),
		mw.WithErrors(http.StatusNotFound))

	// --- Tracking ---
	mw.ProtectedPost(api, "/api/v1/track", h.Track.Track,
		mw.WithTags("Tracking"),
		mw.WithSummary("Track a product"),
		mw.WithDescription("Resolves each URL to a listing and starts tracking the product. URLs that cannot be resolved are returned in unresolved; the call fails only when none resolve."),
		mw.WithOperationID("trackProduct"),
		mw.WithStatus(http.StatusCreated),
		mw.WithErrors(http.StatusBadRequest, http.StatusUnprocessableEntity))
	mw.ProtectedGet(api, "/api/v1/tracked", h.Track.ListTracked,
		mw.WithTags("Tracking"),
		mw.WithSummary("List tracked products"),
		mw.WithOperationID("listTracked"))
	mw.ProtectedGet(api, "/api/v1/tracked/{id}", h.Track.GetTracked,
		mw.WithTags("Tracking"),
		mw.WithSummary("Get a tracked product"),
		mw.WithOperationID("getTracked"),
		mw.WithErrors(http.StatusNotFound))
	mw.ProtectedGet(api, "/api/v1/tracked/{id}/history", h.Track.PriceHistory,
		mw.WithTags("Tracking"),
		mw.WithSummary("Get price history"),
		mw.WithOperationID("getPriceHistory"),
		mw.WithErrors(http.StatusNotFound))
	mw.ProtectedDelete(api, "/api/v1/tracked/{id}", h.Track.DeleteTracked,
		mw.WithTags("Tracking"),
		mw.WithSummary("Stop tracking a product"),
		mw.WithOperationID("deleteTracked"),
		mw.WithStatus(http.StatusNoContent),
		mw.WithErrors(http.StatusNotFound))

	// --- Usage ---
	mw.ProtectedGet(api, "/api/v1/usage", h.Usage.GetUsage,
		mw.WithTags("Usage"),
		mw.WithSummary("Get search usage"),
		mw.WithOperationID("getUsage"))
}

// RegisterSearch registers the search route. It sits behind the
// request-level burst limiter, so it gets its own group.
func RegisterSearch(api huma.API, h *Handlers) {
	mw.ProtectedPost(api, "/api/v1/search", h.Search.Search,
		mw.WithTags("Search"),
		mw.WithSummary("Search products"),
		mw.WithDescription("Searches supported platforms, analyzes the market, predicts the price trend and recommends a listing. "+
			"Identical searches within the cache window are served without running the workflow. "+
			"A degraded result (placeholder listing) carries a Retry-After header."),
		mw.WithOperationID("searchProducts"),
		mw.WithErrors(http.StatusBadRequest, http.StatusTooManyRequests, http.StatusUnprocessableEntity))
}
