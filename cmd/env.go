package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/pointraster/internal/fetcher"
	"github.com/sells-group/pointraster/internal/pipeline"
	"github.com/sells-group/pointraster/internal/store"
)

// pipelineEnv holds the pipeline and the resources it owns.
type pipelineEnv struct {
	Pipeline *pipeline.Pipeline
	Store    store.Store
	Resolver *fetcher.Resolver
	closers  []func()
}

// Close releases resources in reverse order of acquisition.
func (e *pipelineEnv) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// initStore opens and migrates the run manifest.
func initStore(ctx context.Context) (*store.SQLiteStore, error) {
	path := cfg.Manifest.Path
	if path == "" {
		path = "pointraster.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, eris.Wrapf(err, "create manifest dir %s", dir)
		}
	}
	st, err := store.NewSQLite(path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate manifest")
	}
	return st, nil
}

// initPipeline wires the manifest, polygon source and resolver from cfg.
func initPipeline(ctx context.Context) (*pipelineEnv, error) {
	if err := cfg.Validate("run"); err != nil {
		return nil, err
	}
	env := &pipelineEnv{Resolver: fetcherFor()}

	if cfg.Manifest.Enabled {
		st, err := initStore(ctx)
		if err != nil {
			return nil, err
		}
		env.Store = st
		env.closers = append(env.closers, func() {
			if err := st.Close(); err != nil {
				zap.L().Warn("close manifest", zap.Error(err))
			}
		})
	}

	src, closeSrc, err := pipeline.NewSource(ctx, cfg.Polygons, cfg.Pipeline.TempDir)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.closers = append(env.closers, closeSrc)

	env.Pipeline = pipeline.New(cfg, env.Store, src, env.Resolver)
	return env, nil
}

// fetcherFor returns a resolver downloading into the configured temp dir.
func fetcherFor() *fetcher.Resolver {
	return fetcher.NewResolver(cfg.Pipeline.TempDir)
}
