package main

import (
	"context"
	"flag"
	"log"
	"os"

	"gooutlier/adapters/sqlstore"
	"gooutlier/internal/migration"

	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file loaded: %v", err)
	}

	driver := flag.String("driver", envOr("DATABASE_DRIVER", sqlstore.DriverPostgres), "postgres or sqlite3")
	databaseURL := flag.String("database-url", os.Getenv("DATABASE_URL"), "Database connection string")
	reset := flag.Bool("reset", false, "Drop the point and outlier tables before migrating")
	flag.Parse()

	if *databaseURL == "" {
		log.Fatal("Usage: migrate -database-url <url> [-driver postgres|sqlite3] [-reset]")
	}

	ctx := context.Background()
	repo, err := sqlstore.Open(ctx, *driver, *databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer repo.Close()

	runner := migration.NewRunner()
	if *reset {
		log.Println("Resetting database - dropping outlier tables...")
		if err := runner.Reset(ctx, repo.DB()); err != nil {
			log.Fatalf("Failed to reset database: %v", err)
		}
	}

	log.Printf("Running migrations (version %s) on %s", runner.Version(), *driver)
	if err := runner.Run(ctx, repo.DB()); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Println("Migrations complete")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
