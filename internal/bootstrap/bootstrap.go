// Package bootstrap builds the pipeline and its storage from configuration
// for the API server and the CLI.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/bryanwahyu/docrisk/internal/application"
	"github.com/bryanwahyu/docrisk/internal/application/pipeline"
	"github.com/bryanwahyu/docrisk/internal/config"
	"github.com/bryanwahyu/docrisk/internal/domain/pixel"
	"github.com/bryanwahyu/docrisk/internal/domain/structural"
	"github.com/bryanwahyu/docrisk/internal/infra/ai/openai"
	"github.com/bryanwahyu/docrisk/internal/infra/db/mysql"
	"github.com/bryanwahyu/docrisk/internal/infra/db/postgres"
	"github.com/bryanwahyu/docrisk/internal/infra/db/sqlite"
	"github.com/bryanwahyu/docrisk/internal/infra/db/sqlstore"
	"github.com/bryanwahyu/docrisk/internal/infra/screening"
	"github.com/bryanwahyu/docrisk/internal/infra/textquality"
)

// Collaborators that outlive a single run.
type Collaborators struct {
	Watchlist *screening.Watchlist
	OpenAI    *openai.Client
}

// Pipeline wires the orchestrator. Without an OpenAI key the semantic and
// classifier stages stay unset and are reported invalid per document;
// without a watchlist path so is screening.
func Pipeline(cfg *config.Config, log *slog.Logger) (*pipeline.Orchestrator, Collaborators, error) {
	var c Collaborators
	orch := &pipeline.Orchestrator{
		Structural: structural.NewAnalyzer(cfg.ToolPolicy()),
		Pixel:      pixel.NewAnalyzer(cfg.Pipeline.ImageWorkers),
		Format:     textquality.Assessor{},
		Clock:      application.SystemClock{},
		Logger:     log,
		Options: pipeline.Options{
			StageTimeout:      cfg.Pipeline.StageTimeout,
			ClassifierTimeout: cfg.Pipeline.ClassifierTimeout,
			RetryBackoff:      cfg.Pipeline.RetryBackoff,
			Disabled:          cfg.DisabledStages(),
		},
	}

	if path := cfg.Screening.WatchlistPath; path != "" {
		wl, err := screening.Load(path, log)
		if err != nil {
			return nil, c, fmt.Errorf("load watchlist: %w", err)
		}
		orch.Screener, c.Watchlist = wl, wl
		log.Info("watchlist loaded", "path", path, "entries", wl.Len())
	} else {
		log.Warn("no watchlist configured; screening stage will be reported invalid")
	}

	if cfg.OpenAI.APIKey != "" {
		cli, err := openai.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Model, cfg.OpenAI.VisionModel)
		if err != nil {
			return nil, c, fmt.Errorf("openai client: %w", err)
		}
		orch.Semantic, orch.Classifier, c.OpenAI = cli, cli, cli
	} else {
		log.Warn("no OpenAI key configured; semantic and visual classification stages will be reported invalid")
	}
	return orch, c, nil
}

// Database opens the configured driver, applies the schema and returns the
// assessment repository over it.
func Database(ctx context.Context, cfg *config.Config) (*sql.DB, *sqlstore.AssessmentRepository, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := mysql.Connect(ctx, cfg.MySQLDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("mysql connect: %w", err)
		}
		if err := mysql.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, mysql.NewAssessmentRepository(db), nil
	case "postgres":
		db, err := postgres.Connect(ctx, cfg.PostgresDSN())
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		if err := postgres.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, nil, err
		}
		return db, postgres.NewAssessmentRepository(db), nil
	case "sqlite":
		db, err := sqlite.Open(ctx, cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return db, sqlite.NewAssessmentRepository(db), nil
	default:
		return nil, nil, fmt.Errorf("database.driver: unsupported %q", cfg.Database.Driver)
	}
}
