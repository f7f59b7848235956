package db

import (
	"context"
	"database/sql"
)

type Database interface {
	Connect(ctx context.Context) error
	Close() error
	DB() *sql.DB
}
