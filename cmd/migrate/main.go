package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/artboard/server/internal/shared/config"
	"github.com/artboard/server/internal/shared/database"
	"github.com/golang-migrate/migrate/v4"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Connecting to database: %s@%s:%d/%s",
		cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	m, err := database.NewMigrator(cfg.Database.URL())
	if err != nil {
		log.Fatalf("Failed to initialize migrator: %v", err)
	}
	defer func() {
		if sourceErr, dbErr := m.Close(); sourceErr != nil || dbErr != nil {
			log.Printf("Failed to close migrator: %v, %v", sourceErr, dbErr)
		}
	}()

	switch os.Args[1] {
	case "up":
		err := m.Up()
		switch {
		case errors.Is(err, migrate.ErrNoChange):
			log.Println("No change: database is up to date")
		case err != nil:
			log.Fatalf("Failed to apply migrations: %v", err)
		default:
			log.Println("Migrations applied")
		}

	case "down":
		if err := m.Steps(-1); err != nil {
			log.Fatalf("Failed to roll back last migration: %v", err)
		}
		log.Println("Rolled back last migration")

	case "force":
		if len(os.Args) < 3 {
			log.Fatal("force requires a version number")
		}
		version, err := strconv.Atoi(os.Args[2])
		if err != nil {
			log.Fatalf("Invalid version: %v", err)
		}
		if err := m.Force(version); err != nil {
			log.Fatalf("Failed to force version %d: %v", version, err)
		}
		log.Printf("Forced version %d", version)

	case "version":
		version, dirty, err := m.Version()
		switch {
		case errors.Is(err, migrate.ErrNilVersion):
			log.Println("No migrations applied yet")
		case err != nil:
			log.Fatalf("Failed to read migration version: %v", err)
		default:
			suffix := ""
			if dirty {
				suffix = " (dirty)"
			}
			log.Printf("Current version: %d%s", version, suffix)
		}

	default:
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: migrate <command>")
	fmt.Println("Commands:")
	fmt.Println("  up        apply all pending migrations")
	fmt.Println("  down      roll back the last migration")
	fmt.Println("  force N   set the version without running migrations")
	fmt.Println("  version   print the current version")
}
