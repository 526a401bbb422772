package main

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmerrifield20/govledger/internal/eventlog"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// openJournal opens the journal backend named by driver. The returned close
// function releases it and is never nil.
func openJournal(ctx context.Context, driver string, logger *zap.Logger) (eventlog.Log, func(), error) {
	switch driver {
	case "memory", "":
		logger.Warn("using in-memory journal; state is lost on restart")
		return eventlog.NewMemoryLog(), func() {}, nil

	case "postgres":
		db, err := pgxpool.New(ctx, viper.GetString("database.url"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("ping postgres: %w", err)
		}
		logger.Info("connected to postgres")
		return eventlog.NewPostgresLog(db, logger.Named("journal")), db.Close, nil

	case "sqlite":
		path := viper.GetString("sqlite.path")
		l, err := eventlog.OpenSQLiteLog(ctx, path, logger.Named("journal"))
		if err != nil {
			return nil, nil, err
		}
		logger.Info("opened sqlite journal", zap.String("path", path))
		return l, func() {
			if err := l.Close(); err != nil {
				logger.Warn("close sqlite journal", zap.Error(err))
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unknown storage.driver %q (want memory, postgres or sqlite)", driver)
	}
}
