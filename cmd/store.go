package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/collector-cli/internal/store"
)

type migrator interface {
	Migrate(ctx context.Context) error
}

// initStore builds the configured datastore backend and runs migrations
// where the backend owns its schema. Notion schemas are managed in Notion
// itself; only columns are ensured at run time.
func initStore(ctx context.Context) (store.TableStore, error) {
	var (
		st  store.TableStore
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "collector.db"
		}
		st, err = store.NewSQLite(dsn, cfg.Store.Table)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, cfg.Store.Table)
	case "notion":
		if cfg.Notion.Token == "" || cfg.Notion.DatabaseID == "" {
			return nil, eris.New("notion driver needs COLLECTOR_NOTION_TOKEN and COLLECTOR_NOTION_DATABASE_ID")
		}
		st = store.NewNotionStore(store.NewNotionAPI(cfg.Notion.Token), cfg.Notion.DatabaseID)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}

	if m, ok := st.(migrator); ok {
		if err := m.Migrate(ctx); err != nil {
			_ = st.Close()
			return nil, eris.Wrap(err, "migrate store")
		}
	}
	return st, nil
}
