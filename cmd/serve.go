package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/sqlpilot/internal/agent"
	"github.com/sells-group/sqlpilot/internal/model"
	"github.com/sells-group/sqlpilot/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the JSON API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initAgent(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		// Fail fast on a broken warehouse connection.
		if _, err := env.Catalog.Snapshot(ctx); err != nil {
			return err
		}

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/v1", func(r chi.Router) {
			r.Post("/ask", handleAsk(env))
			r.Get("/schema", handleSchema(env))
			r.Get("/history", handleHistory(env))
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// handleAsk answers one question synchronously; the attempt history and
// outcome (or failure) are the response body.
func handleAsk(env *agentEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Question string `json:"question"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		if req.Question == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
			return
		}

		result, runErr := env.Agent.Run(r.Context(), req.Question)
		if result == nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": runErr.Error()})
			return
		}

		resp := map[string]any{"result": result}
		status := http.StatusOK
		if runErr != nil {
			resp["error"] = runErr.Error()
			var ree *agent.RetryExhaustedError
			if errors.As(runErr, &ree) {
				status = http.StatusUnprocessableEntity
			} else {
				status = http.StatusBadGateway
			}
		}
		writeJSON(w, status, resp)
	}
}

func handleSchema(env *agentEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := env.Catalog.Snapshot(r.Context())
		if err != nil {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}

func handleHistory(env *agentEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.RecordFilter{
			Tier:         r.URL.Query().Get("tier"),
			Model:        r.URL.Query().Get("model"),
			OnlyFailures: r.URL.Query().Get("failures") == "true",
		}
		recs, err := env.Store.ListRecords(r.Context(), filter)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		if recs == nil {
			recs = []model.QueryRecord{}
		}
		writeJSON(w, http.StatusOK, recs)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response failed", zap.Error(err))
	}
}
