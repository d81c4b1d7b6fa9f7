package migrations

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcare/mcare/internal/platform/db"
)

func TestEmbeddedMigrations(t *testing.T) {
	migs, err := db.NewMigrator(nil, FS, ".").LoadMigrations()
	require.NoError(t, err)
	require.Len(t, migs, 3)

	var all strings.Builder
	for i, m := range migs {
		assert.Equal(t, i+1, m.Version)
		all.WriteString(m.SQL)
	}
	for _, table := range []string{"users", "mothers", "children", "visits", "vaccinations", "clinics", "health_workers", "medical_records", "outbox_events"} {
		assert.Contains(t, all.String(), "CREATE TABLE IF NOT EXISTS "+table+" ", table)
	}
}
