// Package wessfake is an in-process stand-in for the Wess service. It speaks
// the module API, executes stored modules with wazero and writes the audit log
// the harness inspects, so the step library can be tested without the real
// binary.
package wessfake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/afero"

	"github.com/wess-dev/wess-e2e/internal/client"
)

// Options configures a Server.
type Options struct {
	AuditLog   io.Writer
	Fs         afero.Fs
	StorageDir string
	Logger     *slog.Logger
}

// Server is the fake service. It implements http.Handler.
type Server struct {
	Router *chi.Mux
	Store  *Store
	Audit  *Audit
	logger *slog.Logger

	requests atomic.Int64
}

// New creates a Server with every route mounted.
func New(opts Options) *Server {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	s := &Server{
		Router: chi.NewRouter(),
		Store:  NewStore(opts.Fs, opts.StorageDir),
		Audit:  NewAudit(opts.AuditLog),
		logger: logger,
	}

	s.Router.Use(chimw.Recoverer)
	s.Router.Use(s.requestLog)

	s.Router.Get("/metrics", s.handleMetrics)
	s.Router.Post("/", s.handleCreate)
	s.Router.Get("/{id}", s.handleRead)
	s.Router.Put("/{id}", s.handleUpdate)
	s.Router.Delete("/{id}", s.handleDelete)
	s.Router.Post("/{id}", s.handleRun)

	return s
}

// ServeHTTP implements http.Handler so a Server can back an httptest.Server.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:      s,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("starting wess", "addr", ln.Addr().String())
		errc <- srv.Serve(ln)
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down wess")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// statusRecorder captures the status code written by downstream handlers.
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.statusCode = code
	sr.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.requests.Add(1)
		s.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.statusCode,
			"duration", time.Since(start),
		)
	})
}

// createBody accepts both the table form (metadata object) and the flat
// legacy form of a create or update request.
type createBody struct {
	Wasm     client.Bytes `json:"wasm"`
	Metadata *struct {
		FunctionName string   `json:"functionName"`
		ReturnType   []string `json:"returnType"`
		Args         []string `json:"args"`
	} `json:"metadata"`
	Func       string          `json:"func"`
	ReturnType string          `json:"return_type"`
	Args       json.RawMessage `json:"args"`
}

func (b createBody) module() (Module, error) {
	if len(b.Wasm) == 0 {
		return Module{}, errors.New("missing wasm")
	}
	if b.Metadata != nil {
		if b.Metadata.FunctionName == "" {
			return Module{}, errors.New("missing metadata.functionName")
		}
		return Module{
			Wasm: b.Wasm,
			Metadata: Metadata{
				Func:       b.Metadata.FunctionName,
				ReturnType: nonNil(b.Metadata.ReturnType),
				Args:       nonNil(b.Metadata.Args),
			},
		}, nil
	}
	if b.Func == "" {
		return Module{}, errors.New("missing func")
	}
	var args []string
	if len(b.Args) > 0 {
		if err := json.Unmarshal(b.Args, &args); err != nil {
			return Module{}, fmt.Errorf("invalid args: %w", err)
		}
	}
	var returns []string
	if b.ReturnType != "" {
		returns = []string{b.ReturnType}
	}
	return Module{
		Wasm:     b.Wasm,
		Metadata: Metadata{Func: b.Func, ReturnType: nonNil(returns), Args: nonNil(args)},
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func (s *Server) decodeModule(w http.ResponseWriter, r *http.Request) (Module, bool) {
	var body createBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, "Invalid body: "+err.Error())
		return Module{}, false
	}
	m, err := body.module()
	if err != nil {
		s.fail(w, http.StatusBadRequest, "Invalid body: "+err.Error())
		return Module{}, false
	}
	return m, true
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	m, ok := s.decodeModule(w, r)
	if !ok {
		return
	}
	id := s.Store.NextID()
	if err := s.Store.Set(id, m); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Audit.Op("CREATE", id)
	JSON(w, http.StatusCreated, message(map[string]string{"id": id}))
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.Store.Get(id); !ok {
		s.invalidID(w, id)
		return
	}
	m, ok := s.decodeModule(w, r)
	if !ok {
		return
	}
	if err := s.Store.Set(id, m); err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.Audit.Op("UPDATE", id)
	JSON(w, http.StatusOK, message(map[string]string{"id": id}))
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	existed, err := s.Store.Delete(id)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !existed {
		s.invalidID(w, id)
		return
	}
	s.Audit.Op("DELETE", id)
	JSON(w, http.StatusOK, message(map[string]string{"id": id}))
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := s.Store.Get(id)
	if !ok {
		s.invalidID(w, id)
		return
	}
	JSON(w, http.StatusOK, message(map[string]any{"Success": m}))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := s.Store.Get(id)
	if !ok {
		s.invalidID(w, id)
		return
	}

	var args []json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil {
		s.fail(w, http.StatusBadRequest, "Invalid args: "+err.Error())
		return
	}

	results, err := execute(r.Context(), m.Wasm, m.Metadata.Func, m.Metadata.Args, args)
	if err != nil {
		s.fail(w, http.StatusBadRequest, err.Error())
		return
	}
	s.Audit.Op("RUN", id)
	JSON(w, http.StatusOK, message(map[string]string{"Success": strings.Join(results, ",")}))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# TYPE wess_modules gauge\nwess_modules %d\n", s.Store.Count())
	fmt.Fprintf(w, "# TYPE wess_requests_total counter\nwess_requests_total %d\n", s.requests.Load())
}

func (s *Server) invalidID(w http.ResponseWriter, id string) {
	s.fail(w, http.StatusNotFound, "Invalid Id: "+id)
}

func (s *Server) fail(w http.ResponseWriter, status int, msg string) {
	s.Audit.Error(msg)
	JSON(w, status, message(msg))
}

func message(v any) map[string]any {
	return map[string]any{"message": v}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}
