package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tamarack-wildlife/settle-cli/internal/model"
	"github.com/tamarack-wildlife/settle-cli/internal/report"
	"github.com/tamarack-wildlife/settle-cli/internal/settle"
	"github.com/tamarack-wildlife/settle-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve stored runs over a read-only HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(st),
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			_ = srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// newRouter builds the read-only API over the given store.
func newRouter(st store.Store) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "OPTIONS"},
	}))

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if err := st.Ping(req.Context()); err != nil {
			zap.L().Error("store ping", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
		filter := store.RunFilter{
			Status: model.RunStatus(req.URL.Query().Get("status")),
			Source: req.URL.Query().Get("source"),
		}
		if raw := req.URL.Query().Get("limit"); raw != "" {
			limit, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "limit must be an integer")
				return
			}
			filter.Limit = limit
		}

		runs, err := st.ListRuns(req.Context(), filter)
		if err != nil {
			zap.L().Error("list runs", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		writeJSON(w, http.StatusOK, runs)
	})

	r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
		run, err := st.GetRun(req.Context(), chi.URLParam(req, "id"))
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			zap.L().Error("get run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get run failed")
			return
		}
		writeJSON(w, http.StatusOK, run)
	})

	r.Get("/runs/{id}/samples", func(w http.ResponseWriter, req *http.Request) {
		runID := chi.URLParam(req, "id")
		if _, err := st.GetRun(req.Context(), runID); err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			zap.L().Error("get run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get run failed")
			return
		}

		samples, err := st.ListSamples(req.Context(), runID)
		if err != nil {
			zap.L().Error("list samples", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list samples failed")
			return
		}
		writeJSON(w, http.StatusOK, samples)
	})

	r.Get("/runs/{id}/chart", func(w http.ResponseWriter, req *http.Request) {
		runID := chi.URLParam(req, "id")
		run, err := st.GetRun(req.Context(), runID)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				writeError(w, http.StatusNotFound, "run not found")
				return
			}
			zap.L().Error("get run", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get run failed")
			return
		}

		fit, settlement, err := st.GetFit(req.Context(), runID)
		if err != nil {
			zap.L().Error("get fit", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "get fit failed")
			return
		}
		if fit == nil {
			writeError(w, http.StatusNotFound, "no fit stored for run")
			return
		}

		samples, err := st.ListSamples(req.Context(), runID)
		if err != nil {
			zap.L().Error("list samples", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "list samples failed")
			return
		}
		if len(samples) == 0 {
			writeError(w, http.StatusNotFound, "no samples stored for run")
			return
		}

		minDays, maxDays := samples[0].Days, samples[0].Days
		for _, s := range samples[1:] {
			if s.Days < minDays {
				minDays = s.Days
			}
			if s.Days > maxDays {
				maxDays = s.Days
			}
		}

		curve := settle.PredictionGrid(*fit, minDays, maxDays, run.Params.GridPoints)
		if settlement == nil {
			derived := settle.DeriveSettlement(curve, fit.Asymptote, settle.DefaultPlateauFraction)
			settlement = &derived
		}

		chart := report.CurveChart{
			Subtitle:   fmt.Sprintf("run %s", runID),
			Samples:    samples,
			Curve:      curve,
			Settlement: settlement,
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		if err := report.RenderCurveHTML(chart, w); err != nil {
			zap.L().Error("render chart", zap.Error(err))
		}
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
