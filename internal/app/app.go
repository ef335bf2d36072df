// Package app boots the service: configuration, database, background
// workers and the admin API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/altpaynet/regreport/internal/cesop"
	"github.com/altpaynet/regreport/internal/cesop/dataset"
	"github.com/altpaynet/regreport/internal/cesop/excel"
	"github.com/altpaynet/regreport/internal/cesop/merchant"
	"github.com/altpaynet/regreport/internal/cesop/qualifying"
	"github.com/altpaynet/regreport/internal/cesop/report"
	"github.com/altpaynet/regreport/internal/cesop/run"
	"github.com/altpaynet/regreport/internal/cesop/xmlgen"
	"github.com/altpaynet/regreport/internal/config"
	"github.com/altpaynet/regreport/internal/db"
	"github.com/altpaynet/regreport/internal/decta"
	internalhttp "github.com/altpaynet/regreport/internal/http"
	"github.com/altpaynet/regreport/internal/logging"
	"github.com/altpaynet/regreport/internal/models"
	"github.com/altpaynet/regreport/internal/notify"
	"github.com/altpaynet/regreport/internal/security"
	"github.com/altpaynet/regreport/internal/transfer"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// App holds the wired service components.
type App struct {
	Config *config.Config
	DB     *gorm.DB

	Runs     *run.Service
	Ingester *decta.Ingester
	Worker   *decta.Worker
	Exporter *decta.Exporter
	Cleaner  *decta.RetentionCleaner
}

// New loads configuration, opens the database, runs migrations and
// wires every component.
func New(configPath string) (*App, error) {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return nil, errLoad
	}
	logging.Setup(cfg.Logging)

	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return nil, errOpen
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return nil, errMigrate
	}

	resolver := merchant.NewResolver(conn, cfg.CESOP.PlaceholderIBAN, cfg.Database.QueryTimeout)
	finder := qualifying.NewFinder(conn, resolver, cfg.CESOP.EUCountries, cfg.Database.QueryTimeout)
	builder := dataset.NewBuilder(conn, cfg.CESOP.EUCountries, cfg.Database.QueryTimeout)
	psp := cesop.PSP{
		BIC:     cfg.CESOP.PSP.BIC,
		Name:    cfg.CESOP.PSP.Name,
		Country: cfg.CESOP.PSP.Country,
		TaxID:   cfg.CESOP.PSP.TaxID,
	}
	assembler := report.NewAssembler(finder, builder, resolver, psp)

	dispatcher := notify.NewDispatcher(conn, notify.LogNotifier{}, cfg.Notify.ThrottleWindow)
	runs := run.NewService(conn, assembler,
		excel.NewWriter(cfg.CESOP.OutputDir),
		xmlgen.NewWriter(cfg.CESOP.OutputDir),
		xmlgen.NewValidatingWriter(cfg.CESOP.OutputDir, nil),
		dispatcher,
	)

	matcher := decta.NewMatcher(conn, cfg.Decta.MaxAttempts)
	source := transfer.NewDirSource(cfg.Decta.SourceDir, cfg.Decta.SourceSuffix)

	return &App{
		Config:   cfg,
		DB:       conn,
		Runs:     runs,
		Ingester: decta.NewIngester(conn, source),
		Worker: decta.NewWorker(conn, matcher, cfg.Decta.WorkerInterval, cfg.Decta.WorkerBatchSize).
			WithDispatcher(dispatcher),
		Exporter: decta.NewExporter(conn, cfg.Decta.ExportChunkSize),
		Cleaner:  decta.NewRetentionCleaner(conn, cfg.Decta.RetentionDays),
	}, nil
}

// Migrate opens the database and runs migrations.
func Migrate(configPath string) error {
	cfg, errLoad := config.Load(config.ResolveConfigPath(configPath))
	if errLoad != nil {
		return errLoad
	}
	conn, errOpen := db.Open(cfg.Database.DSN)
	if errOpen != nil {
		return errOpen
	}
	return db.Migrate(conn)
}

// RunServer starts the background workers and the admin API, and
// blocks until the context is cancelled.
func (a *App) RunServer(ctx context.Context) error {
	a.Worker.Start(ctx)
	a.Cleaner.Start(ctx)

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	internalhttp.RegisterRoutes(engine, internalhttp.Deps{
		DB:       a.DB,
		Config:   a.Config,
		Runs:     a.Runs,
		Ingester: a.Ingester,
		Worker:   a.Worker,
		Exporter: a.Exporter,
	})

	server := &http.Server{
		Addr:              a.Config.Server.Listen,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("listening on %s", a.Config.Server.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if errShutdown := server.Shutdown(shutdownCtx); errShutdown != nil {
			return errShutdown
		}
		return nil
	case errServe := <-errCh:
		if errors.Is(errServe, http.ErrServerClosed) {
			return nil
		}
		return errServe
	}
}

// Generate runs one report generation with the configured deadline and
// logs the outcome.
func (a *App) Generate(ctx context.Context, p run.Params) (run.Outcome, error) {
	if a.Config.CESOP.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.Config.CESOP.Deadline)
		defer cancel()
	}
	outcome, errGenerate := a.Runs.Generate(ctx, p)
	if errGenerate != nil {
		log.WithError(errGenerate).Errorf("report run %s failed", outcome.RunID)
		return outcome, errGenerate
	}
	log.Infof("report run %s finished: %s %s", outcome.RunID, outcome.Status, outcome.Message)
	return outcome, nil
}

// EnsureOperator creates or updates an operator login.
func (a *App) EnsureOperator(ctx context.Context, username, password string) error {
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("app: hash password: %w", errHash)
	}

	var operator models.Operator
	errFind := a.DB.WithContext(ctx).Where("username = ?", username).First(&operator).Error
	switch {
	case errFind == nil:
		return a.DB.WithContext(ctx).Model(&operator).
			Updates(map[string]interface{}{"password_hash": hash, "is_enabled": true}).Error
	case errors.Is(errFind, gorm.ErrRecordNotFound):
		return a.DB.WithContext(ctx).Create(&models.Operator{
			Username: username, PasswordHash: hash, IsEnabled: true,
		}).Error
	default:
		return errFind
	}
}

// ExportCSV streams a Decta export to the given file path.
func (a *App) ExportCSV(ctx context.Context, path, status string) (int, error) {
	file, errCreate := os.Create(path)
	if errCreate != nil {
		return 0, fmt.Errorf("app: create %s: %w", path, errCreate)
	}
	defer func() { _ = file.Close() }()
	return a.Exporter.Export(ctx, file, status)
}
