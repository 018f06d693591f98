package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/rs/zerolog"

	"venuematch/internal"
	"venuematch/internal/config"
	"venuematch/internal/fieldmap"
	"venuematch/internal/ingest"
	"venuematch/internal/listener"
	"venuematch/internal/logging"
	"venuematch/internal/reconcile"
	"venuematch/internal/reference"
	"venuematch/internal/server"
	"venuematch/internal/storage"
	"venuematch/internal/vendor"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	registry, err := fieldmap.LoadRegistry(cfg.FieldMapDir)
	must(err)

	reconciler := reconcile.NewService(registry,
		reconcile.WithReferenceProvider(db),
		reconcile.WithRunRecorder(db),
		reconcile.WithWorkers(cfg.MatchWorkers),
		reconcile.WithLogger(logger),
	)
	references := reference.NewSyncService(db, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.ListenAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		if cfg.ReferenceCSVPath != "" {
			importIfEmpty(ctx, references, cfg.ReferenceCSVPath, logger)
		}
		srv := server.New(reconciler, references, vendor.NewFetchService(cfg, logger), db, server.Options{
			Addr:            *addr,
			AllowedOrigin:   cfg.AllowedOrigin(),
			MaxPayloadBytes: cfg.MaxPayloadBytes,
		}, logger)
		must(srv.ListenAndServe(ctx))
	case "reference:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		csvPath := fs.String("csv", cfg.ReferenceCSVPath, "reference table path (csv, xlsx or html)")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*csvPath) == "" {
			must(fmt.Errorf("--csv is required"))
		}
		summary, err := importReference(ctx, references, *csvPath)
		must(err)
		fmt.Printf("reference imported id=%d rows=%d columns=%d\n", summary.ID, summary.Rows, len(summary.Headers))
	case "reference:show":
		summary, err := references.Current(ctx)
		must(err)
		if summary == nil {
			fmt.Println("no reference table imported")
			return
		}
		fmt.Printf("reference id=%d rows=%d source=%s\ncolumns: %s\n", summary.ID, summary.Rows, summary.Source, strings.Join(summary.Headers, ", "))
	case "map":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		vendorID := fs.String("vendor", "", "vendor id")
		input := fs.String("input", "", "raw records file (json, csv, xlsx or html)")
		out := fs.String("out", "", "output csv path (stdout when empty)")
		_ = fs.Parse(os.Args[2:])
		if *vendorID == "" || *input == "" {
			must(fmt.Errorf("--vendor and --input are required"))
		}
		raws, err := ingest.LoadFile(*input)
		must(err)
		text, err := reconciler.MapOnly(ctx, *vendorID, raws)
		must(err)
		must(writeOutput(*out, text))
	case "reconcile":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		vendorID := fs.String("vendor", "", "vendor id")
		input := fs.String("input", "", "raw records file (json, csv, xlsx or html)")
		referencePath := fs.String("reference", "", "reference csv (stored reference when empty)")
		outDir := fs.String("out-dir", cfg.OutputDir, "directory for result csv files")
		xlsx := fs.Bool("xlsx", false, "also write an xlsx workbook")
		_ = fs.Parse(os.Args[2:])
		if *vendorID == "" || *input == "" {
			must(fmt.Errorf("--vendor and --input are required"))
		}

		raws, err := ingest.LoadFile(*input)
		must(err)
		payload := internal.MatchPayload{InputRecords: raws}
		if *referencePath != "" {
			blob, err := os.ReadFile(*referencePath)
			must(err)
			payload.LatestCSV = string(blob)
		}

		result, err := reconciler.Reconcile(ctx, *vendorID, payload)
		must(err)
		must(writeOutput(filepath.Join(*outDir, result.RunID+"_has_match.csv"), result.Response.HasMatchCSV))
		must(writeOutput(filepath.Join(*outDir, result.RunID+"_zero_match.csv"), result.Response.ZeroMatchCSV))
		if *xlsx {
			must(reconcile.ExportXLSX(result, filepath.Join(*outDir, result.RunID+".xlsx")))
		}
		fmt.Printf("reconcile done run=%s has_match=%d zero_match=%d out=%s\n", result.RunID, result.Response.HasMatchCount, result.Response.ZeroMatchCount, *outDir)
	case "vendor:fetch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		vendorID := fs.String("vendor", "skiddle", "vendor id")
		rawParams := fs.String("params", "", "query params, k=v&k2=v2")
		out := fs.String("out", "", "output json path (stdout when empty)")
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("SKIDDLE_API_KEY", cfg.SkiddleAPIKey))
		params, err := vendor.ParseParams(*rawParams)
		must(err)
		result, err := vendor.NewFetchService(cfg, logger).FetchAll(ctx, *vendorID, vendor.Request{Params: params})
		must(err)
		blob, err := json.MarshalIndent(result, "", "  ")
		must(err)
		must(writeOutput(*out, string(blob)+"\n"))
	case "runs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "max runs")
		_ = fs.Parse(os.Args[2:])
		runs, err := db.ListRuns(ctx, *limit)
		must(err)
		for _, run := range runs {
			fmt.Printf("%s  %s  vendor=%s candidates=%d has_match=%d zero_match=%d\n", run.CreatedAt, run.ID, run.Vendor, run.CandidateCount, run.HasMatchCount, run.ZeroMatchCount)
		}
	case "export:xlsx":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		runID := fs.String("run", "", "run id")
		out := fs.String("out", "", "output xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*runID) == "" || strings.TrimSpace(*out) == "" {
			must(fmt.Errorf("--run and --out are required"))
		}
		run, err := db.MustRun(ctx, *runID)
		must(err)
		result, err := reconcile.ResultFromRun(run)
		must(err)
		must(reconcile.ExportXLSX(result, *out))
		fmt.Printf("exported run %s (%d + %d rows) to %s\n", run.ID, run.HasMatchCount, run.ZeroMatchCount, *out)
	case "listen":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		once := fs.Bool("once", false, "run a single cycle and exit")
		_ = fs.Parse(os.Args[2:])
		svc := listener.NewService(vendor.NewFetchService(cfg, logger), reconciler, db, cfg, logger)
		if *once {
			runID, err := svc.RunCycle(ctx)
			must(err)
			fmt.Printf("listener cycle done run=%s\n", runID)
			return
		}
		must(svc.Run(ctx))
	default:
		usage()
		os.Exit(1)
	}
}

func importIfEmpty(ctx context.Context, references *reference.SyncService, path string, logger zerolog.Logger) {
	current, err := references.Current(ctx)
	if err != nil || current != nil {
		return
	}
	if _, err := importReference(ctx, references, path); err != nil {
		logger.Warn().Err(err).Str("path", path).Msg("reference seed import failed")
	}
}

// importReference stores csv files as they are; spreadsheets and html tables are converted first.
func importReference(ctx context.Context, references *reference.SyncService, path string) (reference.Summary, error) {
	format, err := ingest.DetectFormat(path)
	if err != nil {
		return reference.Summary{}, err
	}
	if format == ingest.FormatCSV {
		return references.ImportFile(ctx, path)
	}
	records, err := ingest.LoadFile(path)
	if err != nil {
		return reference.Summary{}, err
	}
	text, err := ingest.EncodeCSV(records)
	if err != nil {
		return reference.Summary{}, err
	}
	return references.Import(ctx, text, filepath.Base(path))
}

func writeOutput(path, text string) error {
	if path == "" {
		_, err := fmt.Print(text)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}

func usage() {
	fmt.Println("usage: venuematch <command>")
	fmt.Println("commands:")
	fmt.Println("  serve [--addr=:3000]")
	fmt.Println("  reference:import --csv=./data/Liverpool.csv")
	fmt.Println("  reference:show")
	fmt.Println("  map --vendor=skiddle --input=records.json [--out=mapped.csv]")
	fmt.Println("  reconcile --vendor=skiddle --input=records.json [--reference=ref.csv] [--out-dir=./out] [--xlsx]")
	fmt.Println("  vendor:fetch --vendor=skiddle [--params=latitude=53.4&longitude=-2.98&radius=5] [--out=records.json]")
	fmt.Println("  runs:list [--limit=20]")
	fmt.Println("  export:xlsx --run=<id> --out=./out/result.xlsx")
	fmt.Println("  listen [--once]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
