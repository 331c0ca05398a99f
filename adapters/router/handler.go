package exportrouter

import (
	"github.com/goliatone/go-gridexport/adapters/exportapi"
	"github.com/goliatone/go-gridexport/export"
	"github.com/goliatone/go-router"
)

// Config configures the go-router adapter.
type Config = exportapi.Config

// Handler exposes grid export routes for go-router.
type Handler struct {
	controller *exportapi.Controller
}

// NewHandler creates a go-router handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{controller: exportapi.NewController(cfg)}
}

// RegisterRoutes registers routes on a compatible go-router router.
// Artifact routes share the two segment pattern with the grid routes so
// static and wildcard segments never collide.
func (h *Handler) RegisterRoutes(router any) {
	r, ok := router.(routeRegistrar)
	if !ok {
		return
	}
	base := h.basePath()

	r.Get(base, h.Handle)
	r.Get(base+"/", h.Handle)
	r.Get(base+"/:grid", h.Handle)
	r.Post(base+"/:grid", h.Handle)
	r.Post(base+"/:grid/:id", h.Handle)
	r.Get(base+"/:grid/:id", h.Handle)
	r.Delete(base+"/:grid/:id", h.Handle)
}

// Handle executes the shared export workflow.
func (h *Handler) Handle(c router.Context) error {
	if c == nil {
		return nil
	}
	if h == nil || h.controller == nil {
		exportapi.WriteError(routerResponse{ctx: c}, export.NewError(export.KindInternal, "handler is nil", nil))
		return nil
	}
	h.controller.Serve(routerRequest{ctx: c}, routerResponse{ctx: c})
	return nil
}

func (h *Handler) basePath() string {
	if h == nil || h.controller == nil {
		return exportapi.DefaultBasePath
	}
	return h.controller.BasePath()
}

type routeRegistrar interface {
	Get(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Post(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
	Delete(path string, handler router.HandlerFunc, mw ...router.MiddlewareFunc) router.RouteInfo
}
