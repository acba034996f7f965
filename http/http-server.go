package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v2"
	"github.com/programme-lv/proctor/httpjson"
	"github.com/programme-lv/proctor/logger"
)

// RouteRegistrar is implemented by every feature's http handler.
type RouteRegistrar interface {
	RegisterRoutes(r *chi.Mux, jwtKey []byte)
}

type ServerOptions struct {
	Env         string
	Version     string
	CorsOrigins []string
	// Middlewares run after request logging and before the routes,
	// e.g. tracing.
	Middlewares []func(http.Handler) http.Handler
	StatsPeriod time.Duration
}

type HttpServer struct {
	router *chi.Mux
	stats  *statsLogger
	srv    *http.Server
}

func NewHttpServer(opts ServerOptions, jwtKey []byte, handlers ...RouteRegistrar) *HttpServer {
	router := chi.NewRouter()

	reqLogger := httplog.NewLogger("proctor", httplog.Options{
		LogLevel:         slog.LevelDebug,
		Concise:          true,
		RequestHeaders:   false,
		MessageFieldName: "message",
		QuietDownRoutes:  []string{"/healthz"},
		QuietDownPeriod:  time.Minute,
		Tags: map[string]string{
			"version": opts.Version,
			"env":     opts.Env,
		},
	})

	router.Use(middleware.RequestID)
	router.Use(httplog.RequestLogger(reqLogger))
	router.Use(contextLogger)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CorsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Forwarded-For"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           3000,
	}))

	for _, mw := range opts.Middlewares {
		router.Use(mw)
	}

	period := opts.StatsPeriod
	if period <= 0 {
		period = time.Minute
	}
	stats := newStatsLogger(period)
	router.Use(stats.middleware)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpjson.WriteSuccessJson(w, map[string]string{"version": opts.Version})
	})
	for _, h := range handlers {
		h.RegisterRoutes(router, jwtKey)
	}

	return &HttpServer{router: router, stats: stats}
}

// contextLogger hands the request scoped logger to the services so
// their log lines carry the request id.
func contextLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithLogger(r.Context(), httplog.LogEntry(r.Context()))
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = logger.WithRequestID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *HttpServer) Handler() http.Handler {
	return s.router
}

// Start serves until ctx is cancelled and then drains open requests.
func (s *HttpServer) Start(ctx context.Context, address string) error {
	s.srv = &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go s.stats.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
