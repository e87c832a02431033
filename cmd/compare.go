package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/windrose-labs/wxbench/internal/compare"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/render"
	"github.com/windrose-labs/wxbench/pkg/anthropic"
)

var (
	compareLat       float64
	compareLon       float64
	compareFrom      string
	compareTo        string
	compareModels    []string
	compareVariable  string
	compareLead      int
	compareMembers   int
	compareFormat    string
	compareUnits     string
	compareNarrative bool
)

var compareCmd = &cobra.Command{
	Use:   "compare",
	Short: "Score forecast models against the reference for one location",
	Long:  "Fetches every requested model and the reference over a valid-time window, collapses ensembles, and reports per-instant errors. The run is recorded in the archive store.",
}

// Assigned in init, not the literal, to avoid an initialization cycle:
// buildCompareRequest reads compareCmd's flags.
func runCompare(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	req, err := buildCompareRequest()
	if err != nil {
		return err
	}

	renderer, err := initRenderer(compareUnits)
	if err != nil {
		return err
	}
	format, err := resolveFormat(compareFormat)
	if err != nil {
		return err
	}

	env, err := initEngine(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	run := model.VerificationRun{
		ID:        uuid.NewString(),
		Target:    req.Target,
		Variable:  req.Variable,
		Models:    modelNames(req.Models),
		From:      req.From,
		To:        req.To,
		LeadHours: int(req.Lead / time.Hour),
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if err := env.Store.CreateRun(ctx, run); err != nil {
		return err
	}

	report, err := env.Engine.Compare(ctx, req)
	if err != nil {
		if cerr := env.Store.CompleteRun(ctx, run.ID, model.RunStatusFailed, 0, 0, err.Error()); cerr != nil {
			zap.L().Warn("record failed run", zap.String("run_id", run.ID), zap.Error(cerr))
		}
		return err
	}
	if err := env.Store.CompleteRun(ctx, run.ID, model.RunStatusComplete, len(report.Rows), len(report.Notes), ""); err != nil {
		zap.L().Warn("record completed run", zap.String("run_id", run.ID), zap.Error(err))
	}

	if err := renderer.Report(os.Stdout, report, format); err != nil {
		return err
	}

	if compareNarrative {
		return printNarrative(cmd, renderer, report)
	}
	return nil
}

func init() {
	compareCmd.RunE = runCompare
	compareCmd.Flags().Float64Var(&compareLat, "lat", 0, "target latitude (default from config)")
	compareCmd.Flags().Float64Var(&compareLon, "lon", 0, "target longitude (default from config)")
	compareCmd.Flags().StringVar(&compareFrom, "from", "", "first valid date, YYYY-MM-DD UTC (required)")
	compareCmd.Flags().StringVar(&compareTo, "to", "", "last valid date, inclusive (default same as --from)")
	compareCmd.Flags().StringSliceVar(&compareModels, "models", nil, "models to score (default all)")
	compareCmd.Flags().StringVar(&compareVariable, "variable", string(model.VarTemperature2m), "variable to compare")
	compareCmd.Flags().IntVar(&compareLead, "lead", 0, "lead horizon in hours (default from config)")
	compareCmd.Flags().IntVar(&compareMembers, "members", -1, "ensemble member cap, 0 = source default")
	compareCmd.Flags().StringVar(&compareFormat, "format", "", "output format: table, json, csv, xlsx")
	compareCmd.Flags().StringVar(&compareUnits, "units", "", "unit system: si, metric, imperial")
	compareCmd.Flags().BoolVar(&compareNarrative, "narrative", false, "append a Claude-written summary of the results")
	_ = compareCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(compareCmd)
}

// buildCompareRequest resolves flags against config defaults. The window
// covers whole UTC days: [from 00:00, to 23:00] at hourly instants.
func buildCompareRequest() (compare.Request, error) {
	variable, err := model.ParseVariable(compareVariable)
	if err != nil {
		return compare.Request{}, err
	}

	from, err := parseDay(compareFrom)
	if err != nil {
		return compare.Request{}, err
	}
	to := from
	if compareTo != "" {
		if to, err = parseDay(compareTo); err != nil {
			return compare.Request{}, err
		}
	}

	// Changed, not zero value: (0, 0) is a real coordinate.
	lat, lon := cfg.Compare.Lat, cfg.Compare.Lon
	if compareCmd.Flags().Changed("lat") {
		lat = compareLat
	}
	if compareCmd.Flags().Changed("lon") {
		lon = compareLon
	}

	lead := compareLead
	if lead == 0 {
		lead = cfg.Compare.LeadHours
	}

	members := compareMembers
	if members < 0 {
		members = cfg.Compare.MaxMembers
	}

	return compare.Request{
		Target:     model.GeoPoint{Lat: lat, Lon: lon},
		From:       from,
		To:         to.Add(23 * time.Hour),
		Models:     parseModels(compareModels),
		Variable:   variable,
		Lead:       time.Duration(lead) * time.Hour,
		MaxMembers: members,
	}, nil
}

func modelNames(ids []model.SourceID) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		out = append(out, string(id))
	}
	return out
}

// printNarrative asks Claude for a forecaster's summary of the report. A
// missing API key downgrades to a warning so the tabular output still lands.
func printNarrative(cmd *cobra.Command, renderer *render.Renderer, report *compare.Report) error {
	if cfg.Anthropic.Key == "" {
		zap.L().Warn("WXBENCH_ANTHROPIC_KEY not set, skipping narrative")
		return nil
	}
	client := anthropic.NewClient(cfg.Anthropic.Key)
	text, err := renderer.Narrative(cmd.Context(), client, report, render.NarrativeOptions{
		Model:     cfg.Anthropic.Model,
		MaxTokens: int64(cfg.Anthropic.MaxTokens),
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout)
	fmt.Fprintln(os.Stdout, strings.TrimSpace(text))
	return nil
}
