package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nexus-iot/server/internal/http/handlers"
)

const requestTimeout = 20 * time.Second

// NewRouter builds full HTTP routing tree for backend API, event feed and static frontend.
func NewRouter(api *handlers.API) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RecoverJSON)
	r.Use(CORS)
	r.Use(RequestLogger(api))

	// The event feed is long-lived and must not inherit the request timeout.
	r.Get("/ws", api.WebSocket)

	r.Group(func(timed chi.Router) {
		timed.Use(middleware.Timeout(requestTimeout))

		timed.Get("/healthz", api.Health)
		timed.Route("/api", func(apiRouter chi.Router) {
			apiRouter.Get("/health", api.Health)

			apiRouter.Get("/devices", api.ListDevices)
			apiRouter.Post("/devices", api.CreateDevice)
			apiRouter.Get("/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
				api.GetDevice(w, r, chi.URLParam(r, "id"))
			})
			apiRouter.Patch("/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
				api.PatchDevice(w, r, chi.URLParam(r, "id"))
			})
			apiRouter.Delete("/devices/{id}", func(w http.ResponseWriter, r *http.Request) {
				api.DeleteDevice(w, r, chi.URLParam(r, "id"))
			})
			apiRouter.Get("/devices/{id}/telemetry", func(w http.ResponseWriter, r *http.Request) {
				api.DeviceTelemetry(w, r, chi.URLParam(r, "id"))
			})
			apiRouter.Post("/devices/{id}/commands", func(w http.ResponseWriter, r *http.Request) {
				api.SendCommand(w, r, chi.URLParam(r, "id"))
			})

			apiRouter.Get("/tools", api.ListTools)
			apiRouter.Post("/tools/{tool}", func(w http.ResponseWriter, r *http.Request) {
				api.ExecuteTool(w, r, chi.URLParam(r, "tool"))
			})
			apiRouter.Post("/refresh", api.Refresh)
		})

		timed.Get("/*", api.Static)
		timed.Get("/", api.Static)
	})
	return r
}

// RunServer starts and gracefully stops HTTP server with context cancellation.
func RunServer(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
