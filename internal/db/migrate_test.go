package db

import (
	"testing"
	"testing/fstest"

	"github.com/jobboard/campaign-portal/migrations"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPendingOrder(t *testing.T) {
	fsys := fstest.MapFS{
		"0010_indexes.up.sql":  {Data: []byte("--")},
		"0002_ledger.up.sql":   {Data: []byte("--")},
		"0002_ledger.down.sql": {Data: []byte("--")},
		"0001_base.up.sql":     {Data: []byte("--")},
		"README.md":            {Data: []byte("notes")},
		"archive/0000.up.sql":  {Data: []byte("--")},
	}

	got, err := pendingOrder(fsys)
	require.NoError(t, err)

	var versions []string
	for _, m := range got {
		versions = append(versions, m.version)
	}
	assert.Equal(t, []string{"0001_base", "0002_ledger", "0010_indexes"}, versions)
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := pendingOrder(migrations.FS)
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, "0001_campaign_portal", got[0].version)
}
