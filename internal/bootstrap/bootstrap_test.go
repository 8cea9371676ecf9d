package bootstrap

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bryanwahyu/docrisk/internal/config"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestPipeline_Offline(t *testing.T) {
	cfg := config.Default()
	cfg.OpenAI.APIKey = ""
	cfg.Pipeline.Disabled = []string{"Semantic"}

	orch, c, err := Pipeline(cfg, quiet)
	require.NoError(t, err)
	assert.Nil(t, orch.Semantic)
	assert.Nil(t, orch.Classifier)
	assert.Nil(t, orch.Screener)
	assert.NotNil(t, orch.Format)
	assert.True(t, orch.Options.Disabled["semantic"])
	assert.Nil(t, c.Watchlist)
}

func TestPipeline_Watchlist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "watchlist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
entries:
  - name: Jane Roe
    category: sanction
    risk_level: high
`), 0o600))

	cfg := config.Default()
	cfg.OpenAI.APIKey = "sk-test"
	cfg.Screening.WatchlistPath = path

	orch, c, err := Pipeline(cfg, quiet)
	require.NoError(t, err)
	require.NotNil(t, c.Watchlist)
	assert.Equal(t, 1, c.Watchlist.Len())
	assert.NotNil(t, orch.Semantic)
	assert.NotNil(t, c.OpenAI)

	cfg.Screening.WatchlistPath = filepath.Join(t.TempDir(), "missing.yaml")
	_, _, err = Pipeline(cfg, quiet)
	assert.Error(t, err)
}

func TestDatabase_SQLite(t *testing.T) {
	cfg := config.Default()
	cfg.Database.Driver = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "docrisk.db")

	db, repo, err := Database(context.Background(), cfg)
	require.NoError(t, err)
	defer db.Close()
	assert.NotNil(t, repo)

	cfg.Database.Driver = "oracle"
	_, _, err = Database(context.Background(), cfg)
	assert.ErrorContains(t, err, "oracle")
}
