package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/windrose-labs/wxbench/internal/ingest"
	"github.com/windrose-labs/wxbench/internal/model"
)

var ingestSource string

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Load forecast CSV exports into the archive store",
	Long:  "Parses CSV exports in the layout the source's catalog entry declares, validates each row, and upserts into the forecast archive. Re-ingesting the same file is idempotent.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if ingestSource == "" {
			return eris.New("--source is required")
		}
		id := model.SourceID(ingestSource)

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		cat, err := loadCatalog()
		if err != nil {
			return err
		}

		ing := ingest.New(st, cat)
		var parsed int
		var upserted int64
		for _, path := range args {
			res, err := ing.IngestFile(ctx, id, path)
			if err != nil {
				return eris.Wrapf(err, "ingest %s", path)
			}
			parsed += res.Parsed
			upserted += res.Upserted
			zap.L().Info("file ingested",
				zap.String("path", res.Path),
				zap.Int("parsed", res.Parsed),
				zap.Int64("upserted", res.Upserted))
		}

		fmt.Fprintf(os.Stdout, "Ingested %d rows (%d upserted) from %d file(s) into %s.\n",
			parsed, upserted, len(args), id)
		return nil
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "catalog source the files belong to (required)")
	_ = ingestCmd.MarkFlagRequired("source")
	rootCmd.AddCommand(ingestCmd)
}
