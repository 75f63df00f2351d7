// Package api serves the narration controls over HTTP and streams state
// changes to browsers over a WebSocket.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// Options wires the router to the rest of the runtime. Metrics and Ready are
// optional.
type Options struct {
	Narrator       Narrator
	Logger         *slog.Logger
	AllowedOrigins []string
	Metrics        http.Handler
	Ready          func() bool
	MaxUploadBytes int64
}

func NewRouter(opts Options) *chi.Mux {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 10 << 20
	}
	logger := opts.Logger.With(slog.String("component", "http"))

	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(logger))
	r.Use(cors.Handler(corsOptions(opts.AllowedOrigins)))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, _ *http.Request) {
		if opts.Ready == nil || opts.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
	})
	if opts.Metrics != nil {
		r.Handle("/metrics", opts.Metrics)
	}

	h := &handler{narrator: opts.Narrator, logger: logger, maxUpload: opts.MaxUploadBytes}
	events := newEventStream(opts.Narrator, opts.AllowedOrigins, logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", h.state)
		r.Put("/text", h.setText)
		r.Post("/file", h.loadFile)
		r.Post("/speak", h.speak)
		r.Post("/stop", h.stop)
		r.Post("/record", h.record)
		r.Get("/download", h.download)
		r.Get("/events", events.ServeHTTP)
	})
	return r
}

func corsOptions(allowedOrigins []string) cors.Options {
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	// Credentials are never sent with a wildcard origin.
	allowCreds := true
	for _, o := range allowedOrigins {
		if o == "*" {
			allowCreds = false
			break
		}
	}
	return cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length"},
		AllowCredentials: allowCreds,
		MaxAge:           300,
	}
}

// requestLogger logs one line per request. Event stream upgrades log on close.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			level := slog.LevelDebug
			if status >= http.StatusInternalServerError {
				level = slog.LevelError
			} else if status >= http.StatusBadRequest {
				level = slog.LevelWarn
			}
			logger.Log(r.Context(), level, "http request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}
