package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/maepena22/receipt/constants"
	"github.com/maepena22/receipt/internal/common"
	"github.com/maepena22/receipt/internal/entity"
	"github.com/maepena22/receipt/internal/export"
	"github.com/maepena22/receipt/internal/llm/openai"
	"github.com/maepena22/receipt/internal/pipeline"
	"github.com/maepena22/receipt/internal/repository"
	"github.com/maepena22/receipt/internal/storage"
	"github.com/maepena22/receipt/internal/vision"
)

func main() {
	var (
		dir      = flag.String("dir", "", "directory of receipt images to process (required)")
		employee = flag.String("employee", "Local Batch", "employee name to attach receipts to (created if missing)")
		typesArg = flag.String("types", "", "comma-separated receipt type ids (default: all types)")
		inmem    = flag.Bool("inmem", false, "use an in-memory SQLite database")
		out      = flag.String("out", "", "export XLSX path (optional; one file per receipt type)")
	)
	flag.Parse()

	if *dir == "" {
		fmt.Fprintln(os.Stderr, "Error: --dir is required")
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	dbCfg := repository.Config{
		Driver:      cfg.Database.Driver,
		DSN:         cfg.Database.DSN,
		MaxConns:    cfg.Database.MaxConns,
		DialTimeout: cfg.Database.DialTimeout,
	}
	if *inmem {
		dbCfg.Driver = repository.DriverSQLite
		dbCfg.DSN = ":memory:"
	}
	db, err := repository.Open(ctx, dbCfg, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if err := repository.Migrate(ctx, db, dbCfg.Driver, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	employees := repository.NewEmployeeRepository(db, logger)
	types := repository.NewReceiptTypeRepository(db, logger)
	receipts := repository.NewReceiptRepository(db, logger)

	empID, err := getOrCreateEmployee(ctx, employees, *employee)
	if err != nil {
		logger.Error("failed to resolve employee", "name", *employee, "error", err)
		os.Exit(1)
	}

	uploads, err := storage.NewFileStore(cfg.Storage.UploadDir, logger)
	if err != nil {
		logger.Error("failed to init upload store", "error", err)
		os.Exit(1)
	}

	ocr := vision.NewClient(vision.Config{
		APIKey:   cfg.Vision.APIKey,
		BaseURL:  cfg.Vision.BaseURL,
		Language: cfg.Vision.Language,
		Timeout:  cfg.Vision.Timeout,
	}, logger)
	extractor := openai.NewClient(openai.Config{
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
	}, logger)

	p := pipeline.New(logger, ocr, extractor, types, employees, receipts, uploads)

	batch := entity.Batch{EmployeeID: empID}
	if ids, err := parseIDs(*typesArg); err != nil {
		logger.Error("invalid --types", "error", err)
		os.Exit(1)
	} else {
		batch.ReceiptTypeIDs = ids
	}
	if batch.Files, err = readImages(*dir); err != nil {
		logger.Error("failed to read images", "dir", *dir, "error", err)
		os.Exit(1)
	}
	if len(batch.Files) == 0 {
		logger.Warn("no image files found", "dir", *dir)
		return
	}

	result, err := p.Run(ctx, batch)
	if err != nil {
		logger.Error("batch failed", "error", err)
		os.Exit(1)
	}
	for _, fr := range result.Results {
		if fr.State == constants.StatePersisted {
			fmt.Printf("ok   %s -> receipt %d\n", fr.OriginalName, fr.ReceiptID)
		} else {
			fmt.Printf("fail %s (%s): %s\n", fr.OriginalName, fr.State, fr.Err)
		}
	}
	fmt.Printf("persisted %d of %d\n", result.Persisted, len(result.Results))

	if *out != "" {
		if err := exportAll(ctx, types, receipts, logger, *out); err != nil {
			logger.Error("export failed", "error", err)
			os.Exit(1)
		}
	}
}

func getOrCreateEmployee(ctx context.Context, repo repository.EmployeeRepository, name string) (int64, error) {
	existing, err := repo.ListEmployees(ctx)
	if err != nil {
		return 0, err
	}
	for _, e := range existing {
		if e.Name == name {
			return e.ID, nil
		}
	}
	return repo.CreateEmployee(ctx, name)
}

func parseIDs(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, part := range parts {
		id, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid id %q: %w", part, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func readImages(dir string) ([]entity.UploadedFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []entity.UploadedFile
	for _, e := range entries {
		if e.IsDir() || !constants.IsAllowedExt(filepath.Ext(e.Name())) {
			continue
		}
		content, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		files = append(files, entity.UploadedFile{
			OriginalName: e.Name(),
			MIMEType:     constants.MIMEForExt(filepath.Ext(e.Name())),
			Content:      content,
		})
	}
	return files, nil
}

func exportAll(ctx context.Context, types repository.ReceiptTypeRepository, receipts repository.ReceiptRepository, logger *slog.Logger, out string) error {
	svc := export.NewService(types, receipts, logger)
	all, err := types.ListReceiptTypes(ctx, nil)
	if err != nil {
		return err
	}
	for _, t := range all {
		buf, err := svc.ExportReceiptsXLSX(ctx, t.ID)
		if err != nil {
			return err
		}
		path := out
		if len(all) > 1 {
			ext := filepath.Ext(out)
			path = strings.TrimSuffix(out, ext) + "-" + strconv.FormatInt(t.ID, 10) + ext
		}
		if err := os.WriteFile(path, buf, 0o644); err != nil {
			return err
		}
		fmt.Printf("exported %s\n", path)
	}
	return nil
}
