package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/windrose-labs/wxbench/internal/catalog"
	"github.com/windrose-labs/wxbench/internal/model"
)

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "List the configured forecast sources",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cat, err := loadCatalog()
		if err != nil {
			return err
		}
		formatSources(os.Stdout, cat)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sourcesCmd)
}

func formatSources(out io.Writer, cat *catalog.Catalog) {
	ids := make([]string, 0, len(cat.Sources))
	for id := range cat.Sources {
		ids = append(ids, string(id))
	}
	sort.Strings(ids)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tBACKEND\tUNIT\tMEMBERS\tGRID\tCOVERAGE")
	for _, id := range ids {
		src := cat.Sources[model.SourceID(id)]
		coverage := "global"
		if src.Coverage != nil {
			coverage = fmt.Sprintf("%.1f..%.1f / %.1f..%.1f",
				src.Coverage.MinLat, src.Coverage.MaxLat,
				src.Coverage.MinLon, src.Coverage.MaxLon)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2f x %.2f\t%s\n",
			id,
			src.Backend,
			src.NativeUnit,
			src.EnsembleMembers,
			src.Grid.LatSpacing,
			src.Grid.LonSpacing,
			coverage,
		)
	}
	_ = w.Flush()
}
