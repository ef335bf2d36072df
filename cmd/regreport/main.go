package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/altpaynet/regreport/internal/app"
	"github.com/altpaynet/regreport/internal/cesop/run"

	log "github.com/sirupsen/logrus"
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: regreport <command> [flags]

Commands:
  serve      run the admin API and background workers
  migrate    run database migrations and exit
  generate   generate a report for one quarter
  ingest     ingest settlement files from the configured source
  match      run one matching batch over pending records
  export     export records to a CSV file
  operator   create or update an operator login
`)
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	command := os.Args[1]
	flags := flag.NewFlagSet(command, flag.ExitOnError)
	configPath := flags.String("config", "", "path to config.yaml")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch command {
	case "serve":
		_ = flags.Parse(os.Args[2:])
		err = runServe(ctx, *configPath)
	case "migrate":
		_ = flags.Parse(os.Args[2:])
		err = app.Migrate(*configPath)
	case "generate":
		quarter := flags.Int("quarter", 0, "reporting quarter, 1-4")
		year := flags.Int("year", 0, "reporting year")
		threshold := flags.Int("threshold", 0, "qualifying threshold; 0 uses the configured default")
		format := flags.String("format", run.FormatXMLValidated, "xlsx, xml or xml-validated")
		_ = flags.Parse(os.Args[2:])
		err = runGenerate(ctx, *configPath, *quarter, *year, *threshold, *format)
	case "ingest":
		file := flags.String("file", "", "single file to ingest; empty ingests everything listed")
		_ = flags.Parse(os.Args[2:])
		err = runIngest(ctx, *configPath, *file)
	case "match":
		_ = flags.Parse(os.Args[2:])
		err = runMatch(ctx, *configPath)
	case "export":
		out := flags.String("out", "decta_export.csv", "output CSV path")
		status := flags.String("status", "", "filter by record status")
		_ = flags.Parse(os.Args[2:])
		err = runExport(ctx, *configPath, *out, *status)
	case "operator":
		username := flags.String("username", "", "operator login name")
		password := flags.String("password", "", "operator password")
		_ = flags.Parse(os.Args[2:])
		err = runOperator(ctx, *configPath, *username, *password)
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func runServe(ctx context.Context, configPath string) error {
	service, errNew := app.New(configPath)
	if errNew != nil {
		return errNew
	}
	return service.RunServer(ctx)
}

func runGenerate(ctx context.Context, configPath string, quarter, year, threshold int, format string) error {
	if quarter < 1 || quarter > 4 || year == 0 {
		return fmt.Errorf("generate: -quarter and -year are required")
	}
	service, errNew := app.New(configPath)
	if errNew != nil {
		return errNew
	}
	if threshold <= 0 {
		threshold = service.Config.CESOP.DefaultThreshold
	}
	outcome, errGenerate := service.Generate(ctx, run.Params{
		Quarter: quarter, Year: year, Threshold: threshold, Format: format,
	})
	if errGenerate != nil {
		return errGenerate
	}
	if outcome.ArtifactPath != "" {
		fmt.Println(outcome.ArtifactPath)
	}
	return nil
}

func runIngest(ctx context.Context, configPath, file string) error {
	service, errNew := app.New(configPath)
	if errNew != nil {
		return errNew
	}
	if file != "" {
		_, errIngest := service.Ingester.IngestFile(ctx, file)
		return errIngest
	}
	_, errIngest := service.Ingester.IngestAll(ctx)
	return errIngest
}

func runMatch(ctx context.Context, configPath string) error {
	service, errNew := app.New(configPath)
	if errNew != nil {
		return errNew
	}
	stats, errRun := service.Worker.RunOnce(ctx)
	if errRun != nil {
		return errRun
	}
	fmt.Printf("processed=%d matched=%d failed=%d\n", stats.Processed, stats.Matched, stats.Failed)
	return nil
}

func runExport(ctx context.Context, configPath, out, status string) error {
	service, errNew := app.New(configPath)
	if errNew != nil {
		return errNew
	}
	written, errExport := service.ExportCSV(ctx, out, status)
	if errExport != nil {
		return errExport
	}
	fmt.Printf("wrote %d rows to %s\n", written, out)
	return nil
}

func runOperator(ctx context.Context, configPath, username, password string) error {
	if username == "" || password == "" {
		return fmt.Errorf("operator: -username and -password are required")
	}
	service, errNew := app.New(configPath)
	if errNew != nil {
		return errNew
	}
	return service.EnsureOperator(ctx, username, password)
}
