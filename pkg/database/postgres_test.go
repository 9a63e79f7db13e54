package database

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateExecutesEmbeddedSchema(t *testing.T) {
	raw, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	defer raw.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS students").WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, Migrate(context.Background(), sqlx.NewDb(raw, "sqlmock")))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSchemaGuardsInvariants(t *testing.T) {
	assert.Contains(t, schema, "enrollments_active_pair_idx")
	assert.Contains(t, schema, "seats_taken <= capacity")
	assert.Contains(t, schema, "WHERE status <> 'DROPPED'")
}
