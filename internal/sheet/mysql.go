package sheet

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// NewMySQLGrid connects to a MySQL-backed grid.
func NewMySQLGrid(dsn string) (*SQLGrid, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}

	g, err := NewSQLGrid(db, MySQLDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	log.Println("[SQLGrid] Initialized MySQL grid")
	return g, nil
}
