package migration

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/weaverun/weave/config"
)

func newSQLiteMigrator(t *testing.T) *SQLMigrator {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "weave.db")
	m, err := New(&Config{
		DatabaseType: DatabaseTypeSQLite,
		DatabaseURL:  BuildDatabaseURL(DatabaseTypeSQLite, "", 0, dbPath, "", "", ""),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func sqliteObjects(t *testing.T, m *SQLMigrator, kind string) []string {
	t.Helper()

	rows, err := m.db.Query("SELECT name FROM sqlite_master WHERE type = ?", kind)
	require.NoError(t, err)
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		names = append(names, name)
	}
	require.NoError(t, rows.Err())
	return names
}

func TestParseDatabaseType(t *testing.T) {
	cases := []struct {
		input string
		want  DatabaseType
	}{
		{"postgres", DatabaseTypePostgres},
		{"postgresql", DatabaseTypePostgres},
		{"pg", DatabaseTypePostgres},
		{"POSTGRES", DatabaseTypePostgres},
		{"mysql", DatabaseTypeMySQL},
		{"mariadb", DatabaseTypeMySQL},
		{"sqlite", DatabaseTypeSQLite},
		{"sqlite3", DatabaseTypeSQLite},
	}
	for _, tc := range cases {
		got, err := ParseDatabaseType(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.want, got)
	}

	_, err := ParseDatabaseType("oracle")
	assert.Error(t, err)
}

func TestBuildDatabaseURL(t *testing.T) {
	assert.Equal(t,
		"postgres://u:p@db:5432/weave?sslmode=disable",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "weave", "u", "p", "disable"))

	// Empty sslmode defaults to require.
	assert.Equal(t,
		"postgres://u:p@db:5432/weave?sslmode=require",
		BuildDatabaseURL(DatabaseTypePostgres, "db", 5432, "weave", "u", "p", ""))

	assert.Equal(t,
		"u:p@tcp(db:3306)/weave?parseTime=true&multiStatements=true",
		BuildDatabaseURL(DatabaseTypeMySQL, "db", 3306, "weave", "u", "p", ""))

	assert.Equal(t,
		"file:/var/lib/weave.db?mode=rwc",
		BuildDatabaseURL(DatabaseTypeSQLite, "", 0, "/var/lib/weave.db", "", "", ""))

	assert.Empty(t, BuildDatabaseURL(DatabaseType("oracle"), "", 0, "", "", "", ""))
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config is required")

	_, err = New(&Config{DatabaseType: DatabaseTypeSQLite})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database URL is required")

	_, err = New(&Config{DatabaseType: "oracle", DatabaseURL: "oracle://x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestAvailableMigrations(t *testing.T) {
	for _, dialect := range []DatabaseType{DatabaseTypePostgres, DatabaseTypeMySQL, DatabaseTypeSQLite} {
		files, err := availableMigrations(dialect)
		require.NoError(t, err, dialect)
		require.Len(t, files, 2, dialect)

		assert.Equal(t, uint(1), files[0].version)
		assert.Equal(t, "record_tables", files[0].name)
		assert.Equal(t, uint(2), files[1].version)
		assert.Equal(t, "graph_indexes", files[1].name)
	}
}

func TestMigrator_UpDown(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)

	require.NoError(t, m.Up(ctx))

	version, dirty, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	tables := sqliteObjects(t, m, "table")
	for _, want := range []string{
		"capability_servers", "credential_references",
		"external_agents", "internal_agents", "agent_relations",
	} {
		assert.Contains(t, tables, want)
	}
	assert.Contains(t, sqliteObjects(t, m, "index"), "idx_agent_relations_source_agent_id")

	// Up again is a no-op.
	require.NoError(t, m.Up(ctx))

	require.NoError(t, m.Down(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.NotContains(t, sqliteObjects(t, m, "index"), "idx_agent_relations_graph_id")

	require.NoError(t, m.DownAll(ctx))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.NotContains(t, sqliteObjects(t, m, "table"), "capability_servers")
}

func TestMigrator_StepsGotoForce(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	require.NoError(t, m.Steps(ctx, 1))
	version, _, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)

	require.NoError(t, m.Goto(ctx, 2))
	version, _, err = m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)

	require.NoError(t, m.Force(ctx, 1))
	version, dirty, err := m.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestMigrator_Status(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	statuses, err := m.Status(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.False(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)

	require.NoError(t, m.Steps(ctx, 1))

	statuses, err = m.Status(ctx)
	require.NoError(t, err)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)

	sum, err := m.Summary(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint(1), sum.CurrentVersion)
	assert.Equal(t, 2, sum.Total)
	assert.Equal(t, 1, sum.Applied)
	assert.Equal(t, 1, sum.Pending)
}

func TestFromDatabaseConfig(t *testing.T) {
	t.Run("sqlite path from the name field", func(t *testing.T) {
		m, err := FromDatabaseConfig(appconfig.DatabaseConfig{
			Driver: "sqlite",
			Name:   filepath.Join(t.TempDir(), "weave.db"),
		})
		require.NoError(t, err)
		defer m.Close()

		version, dirty, err := m.Version(context.Background())
		require.NoError(t, err)
		assert.Zero(t, version)
		assert.False(t, dirty)
	})

	t.Run("unknown driver is rejected", func(t *testing.T) {
		_, err := FromDatabaseConfig(appconfig.DatabaseConfig{Driver: "oracle"})
		assert.Error(t, err)
	})

	t.Run("nil config is rejected", func(t *testing.T) {
		_, err := FromConfig(nil)
		assert.Error(t, err)
	})
}

func TestCLI(t *testing.T) {
	m := newSQLiteMigrator(t)
	ctx := context.Background()

	var buf bytes.Buffer
	cli := NewCLI(m)
	cli.SetOutput(&buf)

	require.NoError(t, cli.RunVersion(ctx))
	assert.Contains(t, buf.String(), "No migrations applied yet")

	buf.Reset()
	require.NoError(t, cli.RunUp(ctx))
	assert.Contains(t, buf.String(), "Schema at version 2.")

	buf.Reset()
	require.NoError(t, cli.RunStatus(ctx))
	out := buf.String()
	assert.Contains(t, out, "VERSION")
	assert.Contains(t, out, "record_tables")
	assert.Contains(t, out, "applied")
	assert.Contains(t, out, "Total: 2, applied: 2, pending: 0")

	buf.Reset()
	require.NoError(t, cli.RunSummary(ctx))
	assert.Contains(t, buf.String(), "Current version: 2")

	buf.Reset()
	require.NoError(t, cli.RunDownAll(ctx))
	assert.Contains(t, buf.String(), "Schema empty.")
}
