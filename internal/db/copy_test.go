package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "forecasts", []string{"source", "value"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"forecasts"}, []string{"source", "value"}).WillReturnResult(3)

	rows := [][]any{{"gencast", 278.15}, {"gencast", 278.65}, {"gencast", 279.15}}
	n, err := CopyFrom(context.Background(), mock, "forecasts", []string{"source", "value"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"forecasts"}, []string{"source", "value"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{"gencast", 278.15}}
	_, err = CopyFrom(context.Background(), mock, "forecasts", []string{"source", "value"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO forecasts")
	assert.NoError(t, mock.ExpectationsWereMet())
}
