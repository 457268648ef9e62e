package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDSN(t *testing.T) {
	assert.Equal(t,
		"raffle:pw@tcp(db:3306)/raffle?charset=utf8mb4&parseTime=true&loc=UTC&multiStatements=true",
		DSN("raffle", "pw", "db", "3306", "raffle"))
	assert.True(t, strings.HasPrefix(DSN("root", "", "localhost", "3306", "x"), "root@tcp("))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	require.NoError(t, err)
	require.NotEmpty(t, names)

	ups, downs := 0, 0
	for _, n := range names {
		switch {
		case strings.HasSuffix(n, ".up.sql"):
			ups++
			_, err := fs.Stat(migrationsFS, strings.TrimSuffix(n, ".up.sql")+".down.sql")
			assert.NoError(t, err, "missing down migration for %s", n)
		case strings.HasSuffix(n, ".down.sql"):
			downs++
		}
	}
	assert.Equal(t, ups, downs)
}
