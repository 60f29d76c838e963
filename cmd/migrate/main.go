package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"goregime/adapters/postgres"
	"goregime/domain/regime"
	"goregime/internal"
	"goregime/internal/migration"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

func main() {
	importDir := flag.String("import", "", "Directory of saved analysis results (*.json) to load into the run store")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: migrate [--import <dir>] <database_url>")
		flag.PrintDefaults()
	}
	flag.Parse()

	databaseURL := flag.Arg(0)
	if databaseURL == "" {
		databaseURL = os.Getenv("GOREGIME_DATABASE_URL")
	}
	if databaseURL == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := internal.DefaultLogger.With("migrate")
	ctx := context.Background()

	db, err := sqlx.ConnectContext(ctx, "postgres", databaseURL)
	if err != nil {
		logger.Error("failed to connect to database: %v", err)
		os.Exit(1)
	}
	defer db.Close()

	runner := migration.NewRunner()
	if err := runner.Run(ctx, db); err != nil {
		logger.Error("migration failed: %v", err)
		os.Exit(1)
	}
	logger.Info("schema migrated to version %s", runner.Version())

	if *importDir == "" {
		return
	}

	files, err := findResultFiles(*importDir)
	if err != nil {
		logger.Error("failed to list %s: %v", *importDir, err)
		os.Exit(1)
	}
	logger.Info("found %d result files to import", len(files))

	repo := postgres.NewRunRepository(db)
	imported, skipped := 0, 0
	for _, file := range files {
		result, err := loadResult(file)
		if err != nil {
			logger.Warn("skipping %s: %v", file, err)
			skipped++
			continue
		}
		if err := repo.SaveRun(ctx, "import:"+filepath.Base(file), result); err != nil {
			logger.Warn("failed to import %s: %v", file, err)
			skipped++
			continue
		}
		imported++
	}
	logger.Info("import complete: %d imported, %d skipped", imported, skipped)
}

func findResultFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".json") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func loadResult(path string) (*regime.RegimeAnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var result regime.RegimeAnalysisResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("not an analysis result: %w", err)
	}
	if result.RunID == "" {
		return nil, fmt.Errorf("missing run_id")
	}
	return &result, nil
}
