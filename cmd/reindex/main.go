package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"camsync/internal/config"
	"camsync/internal/logger"
	"camsync/internal/repository/sqlite"
	"camsync/internal/service/storage"
)

func main() {
	cfg := config.Load()
	recordingDir := flag.String("recordings", cfg.RecordingDir, "Directory containing recorded sessions")
	dbPath := flag.String("db", cfg.DatabasePath, "Database path")
	flag.Parse()

	fmt.Printf("Indexing recordings from %s into database %s\n", *recordingDir, *dbPath)

	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(*dbPath), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	result, err := storage.Reindex(*recordingDir,
		sqlite.NewBundleRepository(db), sqlite.NewFrameRepository(db), logger.NewLogger(cfg))
	if err != nil {
		log.Fatalf("Failed to reindex recordings: %v", err)
	}

	fmt.Printf("Scanned %d sessions\n", result.Sessions)
	fmt.Printf("Indexed %d bundles (%d frames)\n", result.Bundles, result.Frames)
	if result.Skipped > 0 {
		fmt.Printf("Skipped %d files (invalid names or errors)\n", result.Skipped)
	}
}
