// Package httpserver exposes the registry over HTTP: a public submission
// and query API, an owner-facing admin API, and on leaf nodes the mailbox
// relay endpoints.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/flashbots/go-utils/httplogger"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/atomic"
)

type HTTPServerConfig struct {
	ListenAddr  string
	EnablePprof bool
	Log         *slog.Logger

	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration
	ReadTimeout              time.Duration
	WriteTimeout             time.Duration
}

type Server struct {
	cfg     *HTTPServerConfig
	isReady atomic.Bool
	log     *slog.Logger

	srv     *http.Server
	handler *Handler
}

func New(cfg *HTTPServerConfig, handler *Handler) (*Server, error) {
	srv := &Server{
		cfg:     cfg,
		log:     cfg.Log,
		handler: handler,
	}
	srv.isReady.Store(true)

	srv.srv = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      srv.getRouter(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	return srv, nil
}

func (srv *Server) getRouter() http.Handler {
	mux := chi.NewRouter()

	// public API
	mux.With(srv.httpLogger).Post("/api/tokens", srv.handler.HandleSubmitToken)
	mux.With(srv.httpLogger).Get("/api/tokens", srv.handler.HandleListTokens)
	mux.With(srv.httpLogger).Get("/api/tokens/{address}", srv.handler.HandleGetToken)
	mux.With(srv.httpLogger).Post("/api/tokens/{address}/edits", srv.handler.HandleProposeEdit)
	mux.With(srv.httpLogger).Get("/api/tokens/{address}/edits", srv.handler.HandleListEdits)
	mux.With(srv.httpLogger).Get("/api/metadata/fields", srv.handler.HandleListFields)

	// admin API
	mux.With(srv.httpLogger).Post("/api/admin/tokens/{address}/approve", srv.handler.HandleApproveToken)
	mux.With(srv.httpLogger).Post("/api/admin/tokens/{address}/reject", srv.handler.HandleRejectToken)
	mux.With(srv.httpLogger).Post("/api/admin/tokens/{address}/edits/{id}/accept", srv.handler.HandleAcceptEdit)
	mux.With(srv.httpLogger).Post("/api/admin/tokens/{address}/edits/{id}/reject", srv.handler.HandleRejectEdit)
	mux.With(srv.httpLogger).Post("/api/admin/metadata/fields", srv.handler.HandleAddField)
	mux.With(srv.httpLogger).Put("/api/admin/metadata/fields/{name}", srv.handler.HandleUpdateField)
	mux.With(srv.httpLogger).Post("/api/admin/leaves", srv.handler.HandleRegisterLeaf)
	mux.With(srv.httpLogger).Post("/api/admin/leaves/{domain}/send", srv.handler.HandleSendCommand)
	mux.With(srv.httpLogger).Get("/api/admin/leaves/{domain}/quote", srv.handler.HandleQuoteCommand)
	mux.With(srv.httpLogger).Post("/api/admin/snapshots/tokenlist", srv.handler.HandlePublishTokenList)
	mux.With(srv.httpLogger).Post("/api/admin/snapshots/auditlog", srv.handler.HandlePublishAuditLog)

	// mailbox relay, leaf nodes only
	mux.With(srv.httpLogger).Post("/api/mailbox/inbound", srv.handler.HandleMailboxInbound)
	mux.With(srv.httpLogger).Get("/api/mailbox/quote", srv.handler.HandleMailboxQuote)

	// health and diagnostics
	mux.With(srv.httpLogger).Get("/livez", srv.handleLivenessCheck)
	mux.With(srv.httpLogger).Get("/readyz", srv.handleReadinessCheck)
	mux.With(srv.httpLogger).Get("/drain", srv.handleDrain)
	mux.With(srv.httpLogger).Get("/undrain", srv.handleUndrain)

	if srv.cfg.EnablePprof {
		srv.log.Info("pprof API enabled")
		mux.Mount("/debug", middleware.Profiler())
	}
	return mux
}

func (srv *Server) httpLogger(next http.Handler) http.Handler {
	return httplogger.LoggingMiddlewareSlog(srv.log, next)
}

func (srv *Server) handleLivenessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"alive"}`))
}

func (srv *Server) handleReadinessCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !srv.isReady.Load() {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"status":"not ready"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (srv *Server) handleDrain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !srv.isReady.Swap(false) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already draining"}`))
		return
	}
	srv.log.Info("Server marked as not ready")

	go func() {
		time.Sleep(srv.cfg.DrainDuration)
		srv.log.Info("Drain period completed")
	}()

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"draining"}`))
}

func (srv *Server) handleUndrain(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if srv.isReady.Swap(true) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"already ready"}`))
		return
	}
	srv.log.Info("Server marked as ready")

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}

func (srv *Server) RunInBackground() {
	go func() {
		srv.log.Info("Starting HTTP server", "listenAddress", srv.cfg.ListenAddr)
		if err := srv.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srv.log.Error("HTTP server failed", "err", err)
		}
	}()
}

func (srv *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), srv.cfg.GracefulShutdownDuration)
	defer cancel()
	if err := srv.srv.Shutdown(ctx); err != nil {
		srv.log.Error("Graceful HTTP server shutdown failed", "err", err)
	} else {
		srv.log.Info("HTTP server gracefully stopped")
	}
}
