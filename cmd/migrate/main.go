package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"
)

const ledgerDDL = `CREATE TABLE IF NOT EXISTS schema_migrations (
	name       TEXT PRIMARY KEY,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// migrate applies the .sql files in a directory (default "migrations") in
// name order. Each file runs in its own transaction together with its
// schema_migrations row, so a file is applied at most once. --list prints
// what has been applied.
func main() {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL is required")
	}

	dir := "migrations"
	listOnly := false
	for _, a := range os.Args[1:] {
		if a == "--list" {
			listOnly = true
		} else {
			dir = a
		}
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("connect: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("ping: %v", err)
	}
	if _, err := db.ExecContext(ctx, ledgerDDL); err != nil {
		log.Fatalf("create schema_migrations: %v", err)
	}

	applied, err := appliedMigrations(ctx, db)
	if err != nil {
		log.Fatalf("read schema_migrations: %v", err)
	}

	if listOnly {
		names := make([]string, 0, len(applied))
		for name := range applied {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s  %s\n", applied[name].Format(time.RFC3339), name)
		}
		fmt.Printf("Total: %d applied\n", len(names))
		return
	}

	files, err := migrationFiles(dir)
	if err != nil {
		log.Fatalf("read migrations dir %s: %v", dir, err)
	}

	var okCount, skipped int
	for _, f := range files {
		if _, done := applied[f]; done {
			skipped++
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, f))
		if err != nil {
			log.Fatalf("read %s: %v", f, err)
		}
		if strings.TrimSpace(string(data)) == "" {
			continue
		}

		fmt.Printf("  %s ... ", f)
		if err := apply(ctx, db, f, string(data)); err != nil {
			fmt.Println("ERROR")
			log.Fatalf("%s: %v", f, err)
		}
		fmt.Println("OK")
		okCount++
	}
	log.Printf("Done: %d applied, %d already present", okCount, skipped)
}

func appliedMigrations(ctx context.Context, db *sql.DB) (map[string]time.Time, error) {
	rows, err := db.QueryContext(ctx, `SELECT name, applied_at FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]time.Time{}
	for rows.Next() {
		var (
			name string
			at   time.Time
		)
		if err := rows.Scan(&name, &at); err != nil {
			return nil, err
		}
		out[name] = at
	}
	return out, rows.Err()
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			files = append(files, e.Name())
		}
	}
	sort.Strings(files)
	return files, nil
}

func apply(ctx context.Context, db *sql.DB, name, content string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, content); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
		return fmt.Errorf("record migration: %w", err)
	}
	return tx.Commit()
}
