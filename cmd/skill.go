package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/skill"
	"github.com/windrose-labs/wxbench/internal/units"
)

var (
	skillLat      float64
	skillLon      float64
	skillFrom     string
	skillTo       string
	skillModels   []string
	skillVariable string
	skillDays     int
	skillMembers  int
	skillBands    []float64
	skillBandUnit string
	skillFormat   string
	skillUnits    string
)

var skillCmd = &cobra.Command{
	Use:   "skill",
	Short: "Sweep lead horizons and bucket errors into accuracy bands",
	Long:  "Runs one comparison per lead day over the same set of forecast issues and reports, per model and horizon, the share of instants landing in each accuracy band.",
}

// Assigned in init, not the literal, to avoid an initialization cycle:
// buildSkillRequest reads skillCmd's flags.
func runSkill(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	req, err := buildSkillRequest()
	if err != nil {
		return err
	}

	renderer, err := initRenderer(skillUnits)
	if err != nil {
		return err
	}
	format, err := resolveFormat(skillFormat)
	if err != nil {
		return err
	}

	env, err := initEngine(ctx)
	if err != nil {
		return err
	}
	defer env.Close()

	table, err := skill.Sweep(ctx, env.Engine, req)
	if err != nil {
		return err
	}
	return renderer.SkillTable(os.Stdout, table, format)
}

func init() {
	skillCmd.RunE = runSkill
	skillCmd.Flags().Float64Var(&skillLat, "lat", 0, "target latitude (default from config)")
	skillCmd.Flags().Float64Var(&skillLon, "lon", 0, "target longitude (default from config)")
	skillCmd.Flags().StringVar(&skillFrom, "from", "", "first forecast issue date, YYYY-MM-DD UTC (required)")
	skillCmd.Flags().StringVar(&skillTo, "to", "", "last issue date, inclusive (default same as --from)")
	skillCmd.Flags().StringSliceVar(&skillModels, "models", nil, "models to score (default all)")
	skillCmd.Flags().StringVar(&skillVariable, "variable", string(model.VarTemperature2m), "variable to sweep")
	skillCmd.Flags().IntVar(&skillDays, "days", 0, "lead horizons to sweep, 1..days (default from config)")
	skillCmd.Flags().IntVar(&skillMembers, "members", -1, "ensemble member cap, 0 = source default")
	skillCmd.Flags().Float64SliceVar(&skillBands, "bands", nil, "band thresholds (default 1,3,5 for temperature)")
	skillCmd.Flags().StringVar(&skillBandUnit, "band-unit", "", "unit the thresholds are expressed in")
	skillCmd.Flags().StringVar(&skillFormat, "format", "", "output format: table, json, csv, xlsx")
	skillCmd.Flags().StringVar(&skillUnits, "units", "", "unit system: si, metric, imperial")
	_ = skillCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(skillCmd)
}

func buildSkillRequest() (skill.Request, error) {
	variable, err := model.ParseVariable(skillVariable)
	if err != nil {
		return skill.Request{}, err
	}

	from, err := parseDay(skillFrom)
	if err != nil {
		return skill.Request{}, err
	}
	to := from
	if skillTo != "" {
		if to, err = parseDay(skillTo); err != nil {
			return skill.Request{}, err
		}
	}

	// Changed, not zero value: (0, 0) is a real coordinate.
	lat, lon := cfg.Compare.Lat, cfg.Compare.Lon
	if skillCmd.Flags().Changed("lat") {
		lat = skillLat
	}
	if skillCmd.Flags().Changed("lon") {
		lon = skillLon
	}

	days := skillDays
	if days == 0 {
		days = cfg.Skill.Days
	}

	members := skillMembers
	if members < 0 {
		members = cfg.Compare.MaxMembers
	}

	req := skill.Request{
		Target:     model.GeoPoint{Lat: lat, Lon: lon},
		From:       from,
		To:         to,
		Models:     parseModels(skillModels),
		Variable:   variable,
		Days:       days,
		MaxMembers: members,
	}

	if len(skillBands) > 0 {
		if skillBandUnit == "" {
			return skill.Request{}, eris.New("--band-unit is required with --bands")
		}
		unit, err := units.Parse(skillBandUnit)
		if err != nil {
			return skill.Request{}, err
		}
		bands, err := skill.NewBands(variable, unit, skillBands)
		if err != nil {
			return skill.Request{}, err
		}
		req.Bands = bands
	}
	return req, nil
}
