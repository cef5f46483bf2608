package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("JWT_SECRET", "j")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, StoreDriverPostgres, cfg.StoreDriver)
	assert.Equal(t, RendererPDF, cfg.ReportRenderer)
	assert.False(t, cfg.IsProduction())

	cats, err := cfg.Categories()
	require.NoError(t, err)
	assert.Len(t, cats.List(), 14)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("SESSION_SECRET", "s")
	t.Setenv("CSRF_SECRET", "c")
	t.Setenv("JWT_SECRET", "")
	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestCategoriesOverride(t *testing.T) {
	setRequired(t)
	t.Setenv("CATALOG_CATEGORIES", "ad:Hard Drives,NB:Notebooks")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	cats, err := cfg.Categories()
	require.NoError(t, err)
	require.Len(t, cats.List(), 2)
	assert.Equal(t, "Hard Drives", cats.Name("AD"))
}

func TestUnknownDriverRejected(t *testing.T) {
	setRequired(t)
	t.Setenv("STORE_DRIVER", "sqlite")
	_, err := LoadConfig()
	assert.Error(t, err)
}
