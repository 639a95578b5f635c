package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/modelpulse/tracker-cli/internal/classify"
	"github.com/modelpulse/tracker-cli/internal/model"
	"github.com/modelpulse/tracker-cli/internal/report"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve reports over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		eng := report.NewEngine(st, classify.New(rules))
		router := newRouter(eng, rules, cfg.Report.Family)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: router,
		}

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

func newRouter(eng *report.Engine, rules classify.Rules, defaultFamily string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/report", func(w http.ResponseWriter, req *http.Request) {
		params := report.Params{
			Family:  req.URL.Query().Get("family"),
			Current: model.Today(),
		}
		if params.Family == "" {
			params.Family = defaultFamily
		}
		if s := req.URL.Query().Get("date"); s != "" {
			d, err := model.ParseDay(s)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, want YYYY-MM-DD"})
				return
			}
			params.Current = d
		}
		if s := req.URL.Query().Get("previous"); s != "" {
			d, err := model.ParseDay(s)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid previous date, want YYYY-MM-DD"})
				return
			}
			params.Previous = d
		}

		rep, err := eng.Weekly(req.Context(), params)
		if errors.Is(err, report.ErrNoData) {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error":  "no data for window",
				"family": params.Family,
				"date":   params.Current.String(),
			})
			return
		} else if err != nil {
			zap.L().Error("build report", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "report failed"})
			return
		}

		writeJSON(w, http.StatusOK, rep)
	})

	r.Get("/api/snapshot", func(w http.ResponseWriter, req *http.Request) {
		family := req.URL.Query().Get("family")
		if family == "" {
			family = defaultFamily
		}
		day := model.Today()
		if s := req.URL.Query().Get("date"); s != "" {
			d, err := model.ParseDay(s)
			if err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date, want YYYY-MM-DD"})
				return
			}
			day = d
		}

		snaps, err := eng.AsOf(req.Context(), day, family)
		if err != nil {
			zap.L().Error("build snapshot", zap.Error(err))
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshot failed"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"family":    family,
			"date":      day,
			"models":    len(snaps),
			"snapshots": snaps,
		})
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
