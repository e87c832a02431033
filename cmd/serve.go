package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/windrose-labs/wxbench/internal/compare"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/skill"
	"github.com/windrose-labs/wxbench/internal/source"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the verification HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newRouter(env),
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

// newRouter wires the API routes over an initialized engine environment.
func newRouter(env *engineEnv) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Get("/sources", handleSources(env))
		r.Get("/compare", handleCompare(env))
		r.Get("/skill", handleSkill(env))
	})

	return r
}

type sourceInfo struct {
	ID              model.SourceID `json:"id"`
	Backend         string         `json:"backend"`
	NativeUnit      string         `json:"native_unit"`
	EnsembleMembers int            `json:"ensemble_members"`
}

func handleSources(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		out := make([]sourceInfo, 0, len(env.Catalog.Sources))
		for id, src := range env.Catalog.Sources {
			out = append(out, sourceInfo{
				ID:              id,
				Backend:         string(src.Backend),
				NativeUnit:      src.NativeUnit,
				EnsembleMembers: src.EnsembleMembers,
			})
		}
		sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
		respondJSON(w, http.StatusOK, out)
	}
}

func handleCompare(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, err := compareQuery(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		report, err := env.Engine.Compare(r.Context(), req)
		if err != nil {
			respondError(w, compareStatus(err), err)
			return
		}
		respondJSON(w, http.StatusOK, report)
	}
}

func handleSkill(env *engineEnv) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		base, err := compareQuery(r)
		if err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		days := 0
		if err := queryInt(r, "days", &days); err != nil {
			respondError(w, http.StatusBadRequest, err)
			return
		}
		if days == 0 {
			days = cfg.Skill.Days
		}

		// Sweep wants issue dates at midnight; undo the end-of-day extension.
		table, err := skill.Sweep(r.Context(), env.Engine, skill.Request{
			Target:     base.Target,
			From:       base.From,
			To:         base.To.Add(-23 * time.Hour),
			Models:     base.Models,
			Variable:   base.Variable,
			Days:       days,
			MaxMembers: base.MaxMembers,
		})
		if err != nil {
			respondError(w, compareStatus(err), err)
			return
		}
		respondJSON(w, http.StatusOK, table)
	}
}

// compareQuery builds a comparison request from URL query parameters,
// falling back to the configured defaults. Dates cover whole UTC days.
func compareQuery(r *http.Request) (compare.Request, error) {
	q := r.URL.Query()

	fromStr := q.Get("from")
	if fromStr == "" {
		return compare.Request{}, eris.New("from is required")
	}
	from, err := parseDay(fromStr)
	if err != nil {
		return compare.Request{}, err
	}
	to := from
	if s := q.Get("to"); s != "" {
		if to, err = parseDay(s); err != nil {
			return compare.Request{}, err
		}
	}

	variable := model.VarTemperature2m
	if s := q.Get("variable"); s != "" {
		if variable, err = model.ParseVariable(s); err != nil {
			return compare.Request{}, err
		}
	}

	lat, lon := cfg.Compare.Lat, cfg.Compare.Lon
	if err := queryFloat(r, "lat", &lat); err != nil {
		return compare.Request{}, err
	}
	if err := queryFloat(r, "lon", &lon); err != nil {
		return compare.Request{}, err
	}

	lead := cfg.Compare.LeadHours
	if err := queryInt(r, "lead", &lead); err != nil {
		return compare.Request{}, err
	}
	members := cfg.Compare.MaxMembers
	if err := queryInt(r, "members", &members); err != nil {
		return compare.Request{}, err
	}

	var names []string
	if s := q.Get("models"); s != "" {
		names = strings.Split(s, ",")
	}

	return compare.Request{
		Target:     model.GeoPoint{Lat: lat, Lon: lon},
		From:       from,
		To:         to.Add(23 * time.Hour),
		Models:     parseModels(names),
		Variable:   variable,
		Lead:       time.Duration(lead) * time.Hour,
		MaxMembers: members,
	}, nil
}

func queryFloat(r *http.Request, key string, dst *float64) error {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Errorf("invalid %s %q", key, s)
	}
	*dst = v
	return nil
}

func queryInt(r *http.Request, key string, dst *int) error {
	s := r.URL.Query().Get(key)
	if s == "" {
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return eris.Errorf("invalid %s %q", key, s)
	}
	*dst = v
	return nil
}

// compareStatus maps engine failures onto HTTP statuses: an unreachable
// backend is a 502, everything else a 500.
func compareStatus(err error) int {
	if source.IsUnavailable(err) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, map[string]string{"error": err.Error()})
}
