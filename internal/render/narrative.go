package render

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/windrose-labs/wxbench/internal/compare"
	"github.com/windrose-labs/wxbench/internal/model"
	"github.com/windrose-labs/wxbench/internal/units"
	"github.com/windrose-labs/wxbench/pkg/anthropic"
)

const narrativeSystem = "You are a meteorologist summarizing forecast " +
	"verification results. Write one short paragraph in plain language: " +
	"which models tracked the reference best, by how much, and any caveats " +
	"from skipped models. No markdown, no lists."

// NarrativeOptions configures the model call behind Narrative.
type NarrativeOptions struct {
	Model     string
	MaxTokens int64
}

// Narrative asks the model for a one-paragraph summary of a comparison
// report. The prompt carries per-model aggregate errors in the renderer's
// presentation unit, not raw rows, so long windows stay within budget.
func (r *Renderer) Narrative(ctx context.Context, client anthropic.Client, report *compare.Report, opts NarrativeOptions) (string, error) {
	if opts.Model == "" {
		return "", eris.New("render: narrative model required")
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1024
	}

	prompt, err := r.narrativePrompt(report)
	if err != nil {
		return "", err
	}

	resp, err := client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     opts.Model,
		MaxTokens: opts.MaxTokens,
		System:    narrativeSystem,
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", eris.Wrap(err, "render: narrative")
	}
	resp.Usage.Log(opts.Model)

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", eris.New("render: narrative response was empty")
	}
	return text, nil
}

// narrativePrompt condenses a report into per-model mean/max errors.
func (r *Renderer) narrativePrompt(report *compare.Report) (string, error) {
	doc, unit, err := r.present(report)
	if err != nil {
		return "", err
	}

	type agg struct {
		sum, max float64
		n        int
	}
	byModel := make(map[model.SourceID]*agg)
	for _, row := range doc.Rows {
		a, ok := byModel[row.Model]
		if !ok {
			a = &agg{}
			byModel[row.Model] = a
		}
		a.sum += row.AbsError
		a.n++
		if row.AbsError > a.max {
			a.max = row.AbsError
		}
	}

	ids := make([]model.SourceID, 0, len(byModel))
	for id := range byModel {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var b strings.Builder
	fmt.Fprintf(&b, "Verification of %s at (%.4f, %.4f) against %s, window %s to %s, lead %dh.\n",
		doc.Variable, doc.Target.Lat, doc.Target.Lon, doc.Reference,
		doc.From.Format(timeLayout), doc.To.Format(timeLayout), doc.LeadHours)
	fmt.Fprintf(&b, "Errors in %s over %d scored instants.\n", units.Label(unit), len(doc.Rows))
	for _, id := range ids {
		a := byModel[id]
		fmt.Fprintf(&b, "- %s: mean abs error %.2f, worst %.2f, %d instants\n",
			id, a.sum/float64(a.n), a.max, a.n)
	}
	for _, note := range doc.Notes {
		fmt.Fprintf(&b, "- %s was skipped at the %s stage: %s\n", note.Model, note.Stage, note.Reason)
	}
	return b.String(), nil
}
