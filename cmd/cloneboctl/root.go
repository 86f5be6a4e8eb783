package main

import (
	"context"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"clonebo/internal/config"
	"clonebo/internal/storage"
	"clonebo/pkg/clonebo"
)

// rootOptions holds the global flags shared by every subcommand.
type rootOptions struct {
	Store   string
	DBPath  string
	Verbose bool
	Trace   bool
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "cloneboctl",
		Short: "Closed-loop Bayesian optimization of antibody sequences",
		Long: `cloneboctl runs antibody design campaigns. Each round proposes variants
with a generative model, ranks them with a Gaussian-process surrogate and an
acquisition function, and spends oracle budget on the best batch.

Campaigns are checkpointed after every round and can be inspected or resumed
by id, or with "latest" for the most recently updated one.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.Store, "store", "", "storage backend (memory|sqlite|badger); defaults to the config file or badger")
	cmd.PersistentFlags().StringVar(&opts.DBPath, "db-path", "", "sqlite file or badger directory")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")
	cmd.PersistentFlags().BoolVar(&opts.Trace, "trace", false, "print OpenTelemetry spans to stderr")

	cmd.AddCommand(newRunCommand(opts))
	cmd.AddCommand(newCampaignsCommand(opts))
	cmd.AddCommand(newTopCommand(opts))
	cmd.AddCommand(newRoundsCommand(opts))
	cmd.AddCommand(newExportCommand(opts))
	cmd.AddCommand(newDeleteCommand(opts))
	cmd.AddCommand(newValidateCommand(opts))

	return cmd
}

// logger writes text to terminals and JSON everywhere else.
func (o *rootOptions) logger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		return slog.New(slog.NewTextHandler(w, handlerOpts))
	}
	return slog.New(slog.NewJSONHandler(w, handlerOpts))
}

// tracerProvider returns nil when tracing is off, leaving the global
// no-op provider in place. The returned shutdown flushes pending spans.
func (o *rootOptions) tracerProvider(w io.Writer) (trace.TracerProvider, func(context.Context) error, error) {
	if !o.Trace {
		return nil, func(context.Context) error { return nil }, nil
	}
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint(), stdouttrace.WithWriter(w))
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)
	return tp, tp.Shutdown, nil
}

// storage picks the backend and path from flags, falling back to cfg.
func (o *rootOptions) storage(cfg config.StorageConfig) (string, string) {
	kind := o.Store
	if kind == "" {
		kind = cfg.Backend
	}
	path := o.DBPath
	if path == "" && kind == cfg.Backend {
		path = cfg.Path
	}
	if path == "" {
		switch kind {
		case storage.BackendSQLite:
			path = "clonebo.db"
		case storage.BackendBadger:
			path = "clonebo-data"
		}
	}
	return kind, path
}

type clientOptions struct {
	storage  config.StorageConfig
	registry prometheus.Registerer
	tracer   trace.TracerProvider
}

func (o *rootOptions) openClient(cmd *cobra.Command, copts clientOptions) (*clonebo.Client, error) {
	kind, path := o.storage(copts.storage)
	logger := o.logger(cmd.ErrOrStderr())
	logger.Debug("opening store", "backend", kind, "path", path)
	return clonebo.New(cmd.Context(), clonebo.Options{
		StoreKind: kind,
		DBPath:    path,
		Logger:    logger,
		Registry:  copts.registry,
		Tracer:    copts.tracer,
	})
}

// openStore opens the client used by the inspection commands.
func (o *rootOptions) openStore(cmd *cobra.Command) (*clonebo.Client, error) {
	return o.openClient(cmd, clientOptions{storage: config.Default().Storage})
}

func closeClient(cmd *cobra.Command, client *clonebo.Client) {
	if err := client.Close(); err != nil {
		cmd.PrintErrln("close store:", err)
	}
}
