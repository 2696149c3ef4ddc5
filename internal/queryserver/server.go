// Package queryserver is a thin read-only HTTP layer over internal/follows
// and internal/identity: direct, non-recursive lookups, no path/neighborhood
// traversal.
package queryserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/follownet/skymirror/internal/follows"
	"github.com/follownet/skymirror/internal/identity"
	"github.com/follownet/skymirror/internal/metrics"
	"github.com/follownet/skymirror/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "skymirror.query"

// Args configures a query server run.
type Args struct {
	Addr        string
	MetricsAddr string

	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	FDB store.Config
}

type server struct {
	log    *slog.Logger
	tracer trace.Tracer

	db          *store.DB
	followsDirs follows.Dirs
	identDirs   identity.Dirs

	shutdownOnce sync.Once
}

func (s *server) shutdown(cancel context.CancelFunc) {
	s.shutdownOnce.Do(func() {
		s.log.Info("shutdown initiated")
		cancel()
	})
}

// Run opens the store and serves the read-only query endpoints until ctx is
// cancelled or the process receives SIGINT/SIGTERM.
func Run(ctx context.Context, args *Args) error {
	log := slog.Default().With(slog.String("service", serviceName))

	log.Info("starting query server")
	defer log.Info("query server shutdown complete")

	if err := metrics.InitTracing(ctx, serviceName); err != nil {
		return err
	}
	tracer := otel.Tracer(serviceName)

	db, err := store.Open(tracer, args.FDB)
	if err != nil {
		return err
	}

	s := &server{
		log:    log,
		tracer: tracer,
		db:     db,
		followsDirs: follows.Dirs{
			Records: db.Dirs.FollowsRecords,
			IdxAS:   db.Dirs.FollowsIdxAS,
			IdxSA:   db.Dirs.FollowsIdxSA,
		},
		identDirs: identity.Dirs{
			DidAka: db.Dirs.PLCDidAka,
			AkaDid: db.Dirs.PLCAkaDid,
		},
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-ctx.Done():
		case <-sig:
			s.log.Info("received shutdown signal")
			s.shutdown(cancel)
		}
	}()

	go metrics.RunServer(ctx, cancel, args.MetricsAddr)

	return s.serve(ctx, cancel, args)
}

func (s *server) serve(ctx context.Context, cancel context.CancelFunc, args *Args) error {
	defer cancel()

	handler := s.observabilityMiddleware(s.router())

	srv := &http.Server{
		Handler:      handler,
		Addr:         args.Addr,
		ErrorLog:     slog.NewLogLogger(s.log.Handler(), slog.LevelError),
		WriteTimeout: args.WriteTimeout,
		ReadTimeout:  args.ReadTimeout,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()

		srv.SetKeepAlivesEnabled(false)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("server shutdown error", "err", err)
		}
	}()

	s.log.Info("server listening", "addr", args.Addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

func (s *server) router() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", s.handlePing)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /akas", s.handleAkas)
	mux.HandleFunc("GET /whois", s.handleWhois)
	mux.HandleFunc("GET /followers", s.handleFollowers)
	mux.HandleFunc("GET /followees", s.handleFollowees)
	mux.HandleFunc("GET /is-following", s.handleIsFollowing)

	return mux
}

func (s *server) jsonOK(w http.ResponseWriter, resp any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("failed to json encode and write response", "err", err)
	}
}

func (s *server) badRequest(w http.ResponseWriter, err error) {
	s.err(w, http.StatusBadRequest, err)
}

func (s *server) internalErr(w http.ResponseWriter, err error) {
	s.err(w, http.StatusInternalServerError, err)
}

func (s *server) err(w http.ResponseWriter, code int, err error) {
	type response struct {
		Err string `json:"msg"`
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(&response{Err: err.Error()})
}

func (s *server) handlePing(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	if err := s.db.Ping(r.Context()); err != nil {
		s.log.Error("failed to ping fdb", "err", err)
		status = http.StatusInternalServerError
	}

	type response struct {
		Status string `json:"status"`
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(&response{Status: http.StatusText(status)})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (s *server) observabilityMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
		)
		defer span.End()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r.WithContext(ctx))
		duration := time.Since(start).Seconds()

		status := metrics.StatusOK
		if rw.status >= 400 {
			status = metrics.StatusError
			span.SetStatus(codes.Error, http.StatusText(rw.status))
		} else {
			span.SetStatus(codes.Ok, "")
		}

		metrics.Queries.WithLabelValues(r.URL.Path, status).Inc()
		metrics.QueryDuration.WithLabelValues(r.URL.Path, status).Observe(duration)
	})
}
