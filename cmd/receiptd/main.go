package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/maepena22/receipt/constants"
	"github.com/maepena22/receipt/internal/common"
	"github.com/maepena22/receipt/internal/entity"
	"github.com/maepena22/receipt/internal/ingest"
	"github.com/maepena22/receipt/internal/llm/openai"
	"github.com/maepena22/receipt/internal/pipeline"
	"github.com/maepena22/receipt/internal/repository"
	"github.com/maepena22/receipt/internal/storage"
	"github.com/maepena22/receipt/internal/vision"
)

// receiptd watches an inbox directory and runs every arriving image
// through the digitization pipeline as a single-file batch. A gRPC
// health endpoint reports liveness.
func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Server.EmployeeID == 0 {
		logger.Error("DEFAULT_EMPLOYEE_ID env var is required")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := repository.Open(ctx, repository.Config{
		Driver:      cfg.Database.Driver,
		DSN:         cfg.Database.DSN,
		MaxConns:    cfg.Database.MaxConns,
		DialTimeout: cfg.Database.DialTimeout,
	}, logger)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if err := repository.Migrate(ctx, db, cfg.Database.Driver, logger); err != nil {
		logger.Error("failed to migrate database", "error", err)
		os.Exit(1)
	}

	employees := repository.NewEmployeeRepository(db, logger)
	types := repository.NewReceiptTypeRepository(db, logger)
	receipts := repository.NewReceiptRepository(db, logger)

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

	if err := os.MkdirAll(cfg.Server.InboxDir, 0o755); err != nil {
		logger.Error("failed to create inbox dir", "dir", cfg.Server.InboxDir, "error", err)
		os.Exit(1)
	}
	paths, watchErrs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Root:        cfg.Server.InboxDir,
		InitialScan: true,
	}, logger)
	if err != nil {
		logger.Error("failed to start inbox watcher", "error", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, hs)
	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	reflection.Register(grpcServer)

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("listen failed", "addr", cfg.Server.GRPCAddr, "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("grpc serving", "addr", cfg.Server.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("grpc serve failed", "error", err)
			stop()
		}
	}()

	logger.Info("watching inbox", "dir", cfg.Server.InboxDir, "employee_id", cfg.Server.EmployeeID)

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case err, ok := <-watchErrs:
			if ok && err != nil {
				logger.Error("inbox watcher error", "error", err)
			}
		case path, ok := <-paths:
			if !ok {
				break loop
			}
			processArrival(ctx, p, logger, path, cfg.Server.EmployeeID)
		}
	}

	logger.Info("shutting down")
	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	grpcServer.GracefulStop()
}

// processArrival runs one inbox file through the pipeline against the
// full candidate type set. The source file is removed on success so the
// inbox does not reprocess it after a restart.
func processArrival(ctx context.Context, p *pipeline.Pipeline, logger *slog.Logger, path string, employeeID int64) {
	content, err := os.ReadFile(path)
	if err != nil {
		logger.Error("failed to read inbox file", "path", path, "error", err)
		return
	}

	result, err := p.Run(ctx, entity.Batch{
		EmployeeID: employeeID,
		Files: []entity.UploadedFile{{
			OriginalName: filepath.Base(path),
			MIMEType:     constants.MIMEForExt(filepath.Ext(path)),
			Content:      content,
		}},
	})
	if err != nil {
		logger.Error("inbox batch failed", "path", path, "error", err)
		return
	}

	fr := result.Results[0]
	if fr.State == constants.StatePersisted {
		logger.Info("inbox file digitized",
			"path", path, "receipt_id", fr.ReceiptID, "stored_name", fr.StoredName)
		if err := os.Remove(path); err != nil {
			logger.Warn("failed to remove processed inbox file", "path", path, "error", err)
		}
	} else {
		logger.Warn("inbox file failed",
			"path", path, "state", string(fr.State), "error", fr.Err)
	}
}
