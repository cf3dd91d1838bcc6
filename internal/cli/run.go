package cli

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"harmonycore/internal/blob"
	"harmonycore/internal/catalogue"
	"harmonycore/internal/config"
	"harmonycore/internal/core"
	"harmonycore/internal/enrich"
	"harmonycore/internal/entitymodel"
	"harmonycore/internal/etl"
	"harmonycore/internal/logging"
	"harmonycore/internal/observability"
	"harmonycore/internal/transform"
	"harmonycore/internal/warehouse"
	"harmonycore/pkg/domain"
)

// RunOptions holds the run command's flags.
type RunOptions struct {
	Catalogue   string
	Input       string
	Fixtures    string
	Storage     string
	SQLitePath  string
	PostgresDSN string
	Workers     int
	Actor       string
	Archive     bool
	MetricsAddr string
}

// NewRunCommand processes one batch.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a batch of raw fields into the warehouse",
		Long: `Run reads tab-separated (source_file_id, field_key, value) rows, stages
every field, classifies and enriches it, and writes the resulting records.
Per-field failures are reported and audited without stopping the batch.

Configuration comes from HARMONYCORE_* environment variables; flags take
precedence.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "configuration", err)
			}
			applyRunFlags(cmd, opts, rootOpts, &cfg)
			if err := cfg.Validate(); err != nil {
				return WrapExitError(ExitCommandError, "configuration", err)
			}
			return runBatch(cmd.Context(), cmd, rootOpts, opts, cfg)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Catalogue, "catalogue", "", "catalogue file (default: built-in)")
	f.StringVarP(&opts.Input, "input", "i", "-", "TSV input file, - for stdin")
	f.StringVar(&opts.Fixtures, "fixtures", "", "YAML file of enrichment fixtures per family")
	f.StringVar(&opts.Storage, "storage", "", "storage driver (memory|sqlite|postgres)")
	f.StringVar(&opts.SQLitePath, "sqlite-path", "", "SQLite database path")
	f.StringVar(&opts.PostgresDSN, "postgres-dsn", "", "PostgreSQL connection string")
	f.IntVarP(&opts.Workers, "workers", "w", 0, "concurrent fields")
	f.StringVar(&opts.Actor, "actor", "", "actor recorded in the activity log")
	f.BoolVar(&opts.Archive, "archive", false, "archive the raw batch and report to blob storage")
	f.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve metrics on this address while running")
	return cmd
}

func applyRunFlags(cmd *cobra.Command, opts *RunOptions, rootOpts *RootOptions, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("storage") {
		cfg.Storage.Driver = opts.Storage
	}
	if f.Changed("sqlite-path") {
		cfg.Storage.SQLitePath = opts.SQLitePath
	}
	if f.Changed("postgres-dsn") {
		cfg.Storage.PostgresDSN = opts.PostgresDSN
	}
	if f.Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if f.Changed("actor") {
		cfg.Actor = opts.Actor
	}
	if rootOpts.LogLevel != "" {
		cfg.LogLevel = rootOpts.LogLevel
	}
	if rootOpts.LogFormat != "" {
		cfg.LogFormat = rootOpts.LogFormat
	}
	if opts.MetricsAddr != "" && cfg.Metrics == config.MetricsNone {
		cfg.Metrics = config.MetricsPrometheus
	}
}

func runBatch(ctx context.Context, cmd *cobra.Command, rootOpts *RootOptions, opts *RunOptions, cfg config.Config) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := logging.New(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, Output: cmd.ErrOrStderr()})
	if err != nil {
		return WrapExitError(ExitCommandError, "logging", err)
	}

	schema := entitymodel.Default()
	registry := transform.NewRegistry()
	rules, err := loadRules(opts.Catalogue, schema, registry)
	if err != nil {
		return WrapExitError(ExitFailure, "load catalogue", err)
	}
	fields, err := readInput(cmd, opts.Input)
	if err != nil {
		return WrapExitError(ExitCommandError, "read input", err)
	}
	providers, err := openProviders(opts.Fixtures, cfg.LookupCache)
	if err != nil {
		return WrapExitError(ExitCommandError, "enrichment fixtures", err)
	}

	reg := prometheus.NewRegistry()
	recorder, err := observability.NewRecorder(cfg.Metrics, reg)
	if err != nil {
		return WrapExitError(ExitCommandError, "metrics", err)
	}
	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr, cfg.Metrics, reg, logger)
		if err != nil {
			return WrapExitError(ExitCommandError, "metrics listener", err)
		}
		defer stop()
	}

	store, err := core.OpenPersistentStore(cfg.Storage, schema)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}
	defer func() {
		if cerr := store.Close(); cerr != nil {
			logger.Warn("close store", slog.Any("error", cerr))
		}
	}()

	pipelineOpts := []transform.Option{
		transform.WithRetryPolicy(retryPolicy(cfg)),
		transform.WithLogger(logger),
	}
	runnerOpts := []etl.Option{etl.WithWorkers(cfg.Workers), etl.WithActor(cfg.Actor), etl.WithLogger(logger)}
	if recorder != nil {
		pipelineOpts = append(pipelineOpts, transform.WithObserver(recorder))
		runnerOpts = append(runnerOpts, etl.WithRecorder(recorder))
	}
	runner, err := etl.New(rules, transform.NewPipeline(registry, providers, pipelineOpts...), store, runnerOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "runner", err)
	}

	report, runErr := runner.Run(ctx, fields)
	if report != nil && opts.Archive {
		if err := archive(ctx, cfg.Blob, fields, report, logger); err != nil {
			logger.Error("archive failed", slog.String(logging.KeyBatch, report.BatchID), slog.Any("error", err))
			if runErr == nil {
				runErr = err
			}
		}
	}
	if report != nil {
		if err := printReport(printer{format: rootOpts.Format, w: cmd.OutOrStdout()}, report); err != nil {
			return err
		}
	}
	if runErr != nil {
		if catalogue.IsCatalogueError(runErr) || warehouse.IsFatal(runErr) {
			return WrapExitError(ExitFailure, "batch aborted", runErr)
		}
		return WrapExitError(ExitFailure, "run", runErr)
	}
	return nil
}

func readInput(cmd *cobra.Command, path string) ([]domain.RawField, error) {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		// #nosec G304 -- input path is supplied by the operator
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	return etl.ReadFields(r)
}

func openProviders(path string, cacheSize int) (enrich.Directory, error) {
	dir := enrich.Directory{}
	if path != "" {
		var err error
		if dir, err = enrich.LoadFixtures(path); err != nil {
			return nil, err
		}
	}
	if cacheSize <= 0 {
		return dir, nil
	}
	return enrich.CacheDirectory(dir, cacheSize)
}

func retryPolicy(cfg config.Config) transform.RetryPolicy {
	p := transform.DefaultRetryPolicy()
	p.MaxAttempts = cfg.RetryAttempts
	p.Backoff = transform.ExponentialBackoff(cfg.RetryBackoff, 5*time.Second)
	return p
}

func serveMetrics(addr, kind string, reg *prometheus.Registry, logger *slog.Logger) (func(), error) {
	mux := http.NewServeMux()
	switch kind {
	case config.MetricsExpvar:
		mux.Handle("/debug/vars", expvar.Handler())
	default:
		mux.Handle("/metrics", observability.Handler(reg))
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server", slog.Any("error", err))
		}
	}()
	logger.Info("serving metrics", slog.String("addr", ln.Addr().String()), slog.String("exporter", kind))
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}

func openBlob(ctx context.Context, cfg config.Blob) (blob.Store, error) {
	return blob.Open(ctx, blob.Config{
		Driver: blob.Driver(cfg.Driver),
		FSRoot: cfg.FSRoot,
		S3: blob.S3Config{
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			Endpoint:  cfg.S3Endpoint,
			Prefix:    cfg.S3Prefix,
			PathStyle: cfg.S3PathStyle,
		},
	})
}

func archive(ctx context.Context, cfg config.Blob, fields []domain.RawField, report *etl.Report, logger *slog.Logger) error {
	store, err := openBlob(ctx, cfg)
	if err != nil {
		return err
	}
	infos, err := etl.Archive(ctx, store, fields, report)
	if err != nil {
		return err
	}
	for _, info := range infos {
		logger.Info("archived", slog.String(logging.KeyBatch, report.BatchID), slog.String("key", info.Key), slog.Int64("bytes", info.Size))
	}
	return nil
}

func printReport(p printer, report *etl.Report) error {
	if p.format == "json" {
		return p.json(report)
	}
	fmt.Fprintf(p.w, "batch %s: %d fields in %s\n\n", report.BatchID, report.Fields, report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	rows := make([][]any, 0, len(report.Entities)+1)
	for _, name := range report.EntityNames() {
		c := report.Entities[name]
		rows = append(rows, []any{name, c.Classified, c.Enriched, c.Written, c.Unchanged, c.Failed})
	}
	t := report.Totals()
	rows = append(rows, []any{"total", t.Classified, t.Enriched, t.Written, t.Unchanged, t.Failed})
	if err := p.table("ENTITY\tCLASSIFIED\tENRICHED\tWRITTEN\tUNCHANGED\tFAILED", rows); err != nil {
		return err
	}
	fmt.Fprintf(p.w, "\nunrecognized: %d\n", report.Unrecognized)
	if len(report.Failures) == 0 {
		return nil
	}
	fmt.Fprintln(p.w)
	failures := make([][]any, 0, len(report.Failures))
	for _, f := range report.Failures {
		failures = append(failures, []any{f.SourceFileID, f.FieldKey, f.Entity, f.Kind, f.Value})
	}
	return p.table("SOURCE\tKEY\tENTITY\tKIND\tVALUE", failures)
}
