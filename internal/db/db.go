package db

import (
	"log"
	"os"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // The database driver
)

// DB is the global database connection.
var DB *sqlx.DB

// InitDB initializes the database connection.
func InitDB() {
	var err error
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	DB, err = sqlx.Connect("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	// Sync workers, the download pool and the HTTP handlers share this
	// connection; keep the pool bounded so Postgres isn't the one enforcing
	// the limit.
	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(5)
	DB.SetConnMaxLifetime(5 * time.Minute)

	if err = DB.Ping(); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}

	log.Println("Database connection established")
}

const (
	backoffAttempts = 5
	backoffBase     = 200 * time.Millisecond
	backoffCap      = 2 * time.Second
)

// WithBackoff retries fn against transient storage contention: up to 5
// attempts with a 200ms base delay doubling per attempt, capped at 2s.
// Status flips and post-download persistence go through this because the
// store may reject concurrent writers.
func WithBackoff(fn func() error) error {
	var err error
	delay := backoffBase
	for attempt := 1; attempt <= backoffAttempts; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if attempt == backoffAttempts {
			break
		}
		log.Printf("db write failed (attempt %d/%d), retrying in %v: %v", attempt, backoffAttempts, delay, err)
		time.Sleep(delay)
		delay *= 2
		if delay > backoffCap {
			delay = backoffCap
		}
	}
	return err
}
