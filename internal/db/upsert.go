package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// BulkUpsert merges rows into table inside one transaction: COPY into a
// session temp table, then INSERT ... ON CONFLICT (keys) DO UPDATE refreshing
// every non-key column. Re-ingesting an export file refreshes values without
// duplicating rows, which is what keeps archive loads idempotent.
func BulkUpsert(ctx context.Context, pool Pool, table string, columns, keys []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 || len(keys) == 0 {
		return 0, eris.Errorf("db: upsert into %s: columns and keys required", table)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s: begin", table)
	}
	defer tx.Rollback(ctx)

	staging := "incoming_" + strings.ReplaceAll(table, ".", "_")
	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		ident(staging), ident(table))
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s: create staging table", table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s: stage rows", table)
	}

	tag, err := tx.Exec(ctx, mergeSQL(table, staging, columns, keys))
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s: merge", table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrapf(err, "db: upsert into %s: commit", table)
	}
	return tag.RowsAffected(), nil
}

// mergeSQL builds the staging-to-target INSERT. Non-key columns take the
// staged value on conflict.
func mergeSQL(table, staging string, columns, keys []string) string {
	keySet := make(map[string]bool, len(keys))
	for _, k := range keys {
		keySet[k] = true
	}
	var updates []string
	for _, c := range columns {
		if !keySet[c] {
			updates = append(updates, ident(c)+" = EXCLUDED."+ident(c))
		}
	}

	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) DO UPDATE SET %s",
		ident(table),
		identList(columns),
		identList(columns),
		ident(staging),
		identList(keys),
		strings.Join(updates, ", "),
	)
}

// ident quotes a possibly schema-qualified name.
func ident(name string) string {
	return pgx.Identifier(strings.Split(name, ".")).Sanitize()
}

func identList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = ident(n)
	}
	return strings.Join(quoted, ", ")
}
