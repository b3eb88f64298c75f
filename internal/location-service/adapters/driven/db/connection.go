package db

import (
	"context"
	_ "embed"
	"fmt"
	"time"

	"bus-tracker/internal/config"
	"bus-tracker/internal/mylogger"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

type DataBase struct {
	pool *pgxpool.Pool
	log  mylogger.Logger
}

// ConnectDB opens a pool against the configured database, retrying with a
// linear backoff, and applies the schema.
func ConnectDB(ctx context.Context, cfg *config.DBconfig, log mylogger.Logger) (*DataBase, error) {
	dsn := fmt.Sprintf(
		"postgres://%v:%v@%v:%v/%v?sslmode=disable",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
	return Connect(ctx, dsn, cfg.MaxRetries, cfg.MaxConns, log)
}

func Connect(ctx context.Context, dsn string, maxRetries int, maxConns int32, log mylogger.Logger) (*DataBase, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}
	if maxRetries < 1 {
		maxRetries = 1
	}

	log = log.Action("db_connect")
	var lastErr error
	for i := 0; i < maxRetries; i++ {
		pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
		if err == nil {
			err = pool.Ping(ctx)
			if err != nil {
				pool.Close()
			}
		}
		if err != nil {
			lastErr = err
			log.Error(fmt.Sprintf("DB connection attempt %d failed", i+1), err)

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Second * time.Duration(i+1)):
			}
			continue
		}

		if _, err := pool.Exec(ctx, schemaSQL); err != nil {
			pool.Close()
			return nil, fmt.Errorf("apply schema: %w", err)
		}

		log.Info("Successfully connected to the database")
		return &DataBase{pool: pool, log: log}, nil
	}

	return nil, fmt.Errorf("failed to connect to the database after %d attempts: %w", maxRetries, lastErr)
}

func (d *DataBase) Close() {
	d.pool.Close()
}

// IsAlive pings the database through the pool.
func (d *DataBase) IsAlive(ctx context.Context) error {
	if d.pool == nil {
		return fmt.Errorf("DB is not initialized")
	}
	return d.pool.Ping(ctx)
}
