package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"clonebo/internal/config"
	"clonebo/internal/storage"
	"clonebo/pkg/clonebo"
)

type runOptions struct {
	*rootOptions
	ConfigPath  string
	Seeds       []string
	Fitness     []float64
	SeedsFrom   string
	Resume      string
	Budget      int
	BatchSize   int
	RandomSeed  int64
	MetricsAddr string
}

func newRunCommand(root *rootOptions) *cobra.Command {
	opts := &runOptions{rootOptions: root}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a new campaign or resume a stored one",
		Long: `Run drives a campaign until it converges, exhausts its oracle budget or is
interrupted. Interrupted campaigns keep their last checkpoint and can be
continued with --resume.

Example:
  cloneboctl run --config campaign.yaml --seed-seq EVQLVES... --seed-fitness 0.5
  cloneboctl run --config campaign.yaml --seeds-from previous.jsonl
  cloneboctl run --config campaign.yaml --resume latest --budget 200`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCampaign(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "campaign YAML file; defaults apply when omitted")
	cmd.Flags().StringArrayVar(&opts.Seeds, "seed-seq", nil, "seed sequence (repeatable)")
	cmd.Flags().Float64SliceVar(&opts.Fitness, "seed-fitness", nil, "measured fitness for each --seed-seq, in order")
	cmd.Flags().StringVar(&opts.SeedsFrom, "seeds-from", "", "seed from the candidates of an export file, keeping their fitness")
	cmd.Flags().StringVar(&opts.Resume, "resume", "", "campaign id or latest to continue")
	cmd.Flags().IntVar(&opts.Budget, "budget", 0, "override campaign.oracle_budget")
	cmd.Flags().IntVar(&opts.BatchSize, "batch-size", 0, "override campaign.batch_size")
	cmd.Flags().Int64Var(&opts.RandomSeed, "random-seed", 0, "override campaign.seed")
	cmd.Flags().StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")

	return cmd
}

func (o *runOptions) loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return cfg, err
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("budget") {
		cfg.Campaign.OracleBudget = o.Budget
	}
	if cmd.Flags().Changed("batch-size") {
		cfg.Campaign.BatchSize = o.BatchSize
	}
	if cmd.Flags().Changed("random-seed") {
		cfg.Campaign.Seed = o.RandomSeed
	}
	return cfg, cfg.Validate()
}

func (o *runOptions) seeds() ([]clonebo.SeedSequence, error) {
	if len(o.Fitness) > 0 && len(o.Fitness) != len(o.Seeds) {
		return nil, config.Errorf("seed-fitness", "got %d values for %d seed sequences", len(o.Fitness), len(o.Seeds))
	}
	out := make([]clonebo.SeedSequence, len(o.Seeds))
	for i, seq := range o.Seeds {
		out[i] = clonebo.SeedSequence{Sequence: seq}
		if len(o.Fitness) > 0 {
			fitness := o.Fitness[i]
			out[i].Fitness = &fitness
		}
	}
	if o.SeedsFrom == "" {
		return out, nil
	}
	f, err := os.Open(o.SeedsFrom)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	records, err := storage.ReadCandidatesJSONL(f)
	if err != nil {
		return nil, fmt.Errorf("read seeds from %s: %w", o.SeedsFrom, err)
	}
	for _, rec := range records {
		out = append(out, clonebo.SeedSequence{Sequence: rec.Sequence, Fitness: rec.OracleFitness})
	}
	return out, nil
}

func runCampaign(cmd *cobra.Command, opts *runOptions) error {
	cfg, err := opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	seeds, err := opts.seeds()
	if err != nil {
		return err
	}
	if opts.Resume != "" && len(seeds) > 0 {
		return config.Errorf("resume", "cannot be combined with seed sequences")
	}

	tp, shutdown, err := opts.tracerProvider(cmd.ErrOrStderr())
	if err != nil {
		return fmt.Errorf("start tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(ctx); err != nil {
			cmd.PrintErrln("flush traces:", err)
		}
	}()

	reg := prometheus.NewRegistry()
	if opts.MetricsAddr != "" {
		stop, err := serveMetrics(opts.MetricsAddr, reg)
		if err != nil {
			return err
		}
		defer stop()
	}

	client, err := opts.openClient(cmd, clientOptions{storage: cfg.Storage, registry: reg, tracer: tp})
	if err != nil {
		return err
	}
	defer closeClient(cmd, client)

	summary, err := client.Run(cmd.Context(), clonebo.RunRequest{Config: cfg, Seeds: seeds, ResumeID: opts.Resume})
	if summary.CampaignID != "" {
		printSummary(cmd.OutOrStdout(), summary)
	}
	return err
}

func serveMetrics(addr string, reg *prometheus.Registry) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		_ = srv.Serve(ln)
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = srv.Close()
		}
	}, nil
}

func printSummary(w io.Writer, s clonebo.RunSummary) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	status := string(s.Status)
	if s.TerminalReason != "" {
		status += " (" + s.TerminalReason + ")"
	}
	fmt.Fprintf(tw, "campaign\t%s\n", s.CampaignID)
	fmt.Fprintf(tw, "status\t%s\n", status)
	fmt.Fprintf(tw, "rounds\t%s\n", humanize.Comma(int64(s.Rounds)))
	fmt.Fprintf(tw, "oracle calls\t%s\n", humanize.Comma(int64(s.OracleCalls)))
	fmt.Fprintf(tw, "pool\t%s candidates\n", humanize.Comma(int64(s.PoolSize)))
	if s.BestFitness != nil {
		fmt.Fprintf(tw, "best fitness\t%s\n", formatFitness(*s.BestFitness))
		fmt.Fprintf(tw, "best sequence\t%s\n", s.BestSequence)
	}
	_ = tw.Flush()
}

func formatFitness(f float64) string {
	return humanize.FtoaWithDigits(f, 4)
}
