// Package server exposes stored images over HTTP: public paths
// "/<scheme>/<shortId><ext>" are resolved through the driver's index and the
// bytes are proxied from the backend.
//
// Usage:
//
//	h := server.New(holder, log)
//	srv := &http.Server{Addr: ":8080", Handler: h}
package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/koustreak/imgbed/internal/errs"
	"github.com/koustreak/imgbed/internal/logger"
	"github.com/koustreak/imgbed/internal/storage"
)

// CacheControl is sent with every delivered image. Short ids never change
// their content.
const CacheControl = storage.CacheControl

// Server routes delivery requests to the current storage manager.
type Server struct {
	holder *storage.Holder
	log    *logger.Logger
	router chi.Router
}

// New builds the router.
func New(holder *storage.Holder, log *logger.Logger) *Server {
	s := &Server{holder: holder, log: logger.OrNop(log).Component("server")}

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(requestLogger(s.log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodOptions},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.health)
	r.Get("/api/storage/available", s.available)
	r.Get("/api/storage/stats", s.stats)
	r.Get("/{scheme}/{name}", s.deliver)
	r.Head("/{scheme}/{name}", s.deliver)

	s.router = r
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) available(w http.ResponseWriter, r *http.Request) {
	m := s.holder.Load()
	ok(w, map[string]any{"storages": m.Names(), "default": m.Default()})
}

func (s *Server) stats(w http.ResponseWriter, r *http.Request) {
	ok(w, s.holder.Load().AggregateStats(r.Context()))
}

// deliver serves the asset behind /{scheme}/{shortId}{ext}.
func (s *Server) deliver(w http.ResponseWriter, r *http.Request) {
	scheme := chi.URLParam(r, "scheme")
	name := chi.URLParam(r, "name")

	d, found := s.driverForScheme(scheme)
	if !found {
		http.NotFound(w, r)
		return
	}

	key, found, err := d.ResolveShortID(r.Context(), name)
	if err != nil {
		s.fail(w, err)
		return
	}
	if !found {
		http.NotFound(w, r)
		return
	}

	c, err := d.FetchContent(r.Context(), key)
	if err != nil {
		s.log.WarnWith("fetch failed", err, map[string]interface{}{"driver": d.Name(), "shortId": name})
		s.fail(w, err)
		return
	}

	h := w.Header()
	h.Set("Content-Type", c.ContentType)
	h.Set("Content-Length", strconv.Itoa(len(c.Data)))
	h.Set("Cache-Control", CacheControl)
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = w.Write(c.Data)
	}
}

func (s *Server) driverForScheme(scheme string) (storage.Driver, bool) {
	m := s.holder.Load()
	for _, n := range m.Names() {
		d, err := m.Driver(n)
		if err == nil && d.Scheme() == scheme {
			return d, true
		}
	}
	return nil, false
}

// fail maps the error taxonomy onto status codes.
func (s *Server) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch errs.KindOf(err) {
	case errs.ErrKindNotFound:
		status = http.StatusNotFound
	case errs.ErrKindInvalidInput:
		status = http.StatusBadRequest
	case errs.ErrKindDriverNotConfigured, errs.ErrKindBackendUnavailable:
		status = http.StatusServiceUnavailable
	case errs.ErrKindBackendRequestFailed:
		status = http.StatusBadGateway
	case errs.ErrKindTimeout:
		status = http.StatusGatewayTimeout
	}
	var e *errs.Error
	if !errors.As(err, &e) {
		s.log.ErrorWith("unexpected error", err, nil)
	}
	f := errs.Describe(err)
	writeJSON(w, status, envelope{Success: false, Error: &f})
}
