package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/statement-mapper/internal/model"
	"github.com/sells-group/statement-mapper/internal/pipeline"
	"github.com/sells-group/statement-mapper/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the mapping and audit API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		synonyms, err := loadRegistry(ctx)
		if err != nil {
			return eris.Wrap(err, "load synonym registry")
		}
		p := pipeline.New(cfg, st, synonyms, newSemanticClient())

		r := chi.NewRouter()
		r.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Route("/runs", func(api chi.Router) {
			api.Post("/", handleStartRun(ctx, p))
			api.Get("/", handleListRuns(st))
			api.Get("/{run_id}", handleGetRun(st))
			api.Get("/{run_id}/audit", handleGetAudit(st))
			api.Get("/{run_id}/postings", handleGetPostings(st))
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: r,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx) //nolint:errcheck
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

// handleStartRun accepts a mapping request and runs it asynchronously. The
// response carries only the accepted request; clients poll /runs for state.
func handleStartRun(serverCtx context.Context, p *pipeline.Pipeline) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			TemplatePath string   `json:"template_path"`
			EvidenceRefs []string `json:"evidence_refs"`
			OutputPath   string   `json:"output_path,omitempty"`
			Sheet        string   `json:"sheet,omitempty"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if req.TemplatePath == "" || len(req.EvidenceRefs) == 0 {
			writeJSONError(w, http.StatusBadRequest, "template_path and evidence_refs are required")
			return
		}

		go func() {
			result, err := p.Run(serverCtx, pipeline.Request{
				TemplatePath: req.TemplatePath,
				EvidenceRefs: req.EvidenceRefs,
				OutputPath:   req.OutputPath,
				SheetName:    req.Sheet,
			})
			if err != nil {
				zap.L().Error("api mapping run failed",
					zap.String("template", req.TemplatePath),
					zap.Error(err),
				)
				return
			}
			zap.L().Info("api mapping run complete",
				zap.String("run_id", result.RunID),
				zap.String("output", result.OutputPath),
				zap.Bool("needs_review", result.NeedsReview),
			)
		}()

		writeJSON(w, http.StatusAccepted, map[string]string{
			"status":   "accepted",
			"template": req.TemplatePath,
		})
	}
}

func handleListRuns(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		runs, err := st.ListRuns(r.Context(), store.RunFilter{
			Status: model.RunStatus(r.URL.Query().Get("status")),
			Limit:  limit,
		})
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "list runs failed")
			return
		}
		if runs == nil {
			runs = []model.Run{}
		}
		writeJSON(w, http.StatusOK, runs)
	}
}

func handleGetRun(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		run, err := st.GetRun(r.Context(), chi.URLParam(r, "run_id"))
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "get run failed")
			return
		}
		if run == nil {
			writeJSONError(w, http.StatusNotFound, "run not found")
			return
		}
		writeJSON(w, http.StatusOK, run)
	}
}

func handleGetAudit(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		audit, err := st.GetAudit(r.Context(), chi.URLParam(r, "run_id"))
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "get audit failed")
			return
		}
		if audit == nil {
			writeJSONError(w, http.StatusNotFound, "no audit for run")
			return
		}
		writeJSON(w, http.StatusOK, audit)
	}
}

func handleGetPostings(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		postings, err := st.ListPostings(r.Context(), chi.URLParam(r, "run_id"))
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "list postings failed")
			return
		}
		if postings == nil {
			postings = []model.CellPosting{}
		}
		writeJSON(w, http.StatusOK, postings)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
