package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"clonebo/internal/model"
	"clonebo/pkg/clonebo"
)

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
}

func campaignArg(args []string) string {
	if len(args) == 0 {
		return clonebo.Latest
	}
	return args[0]
}

func newCampaignsCommand(root *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "campaigns",
		Short: "List stored campaigns, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := root.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeClient(cmd, client)

			summaries, err := client.Campaigns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(summaries) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no campaigns")
				return nil
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ID\tSTATUS\tROUNDS\tORACLE\tCANDIDATES\tBEST\tUPDATED")
			for _, s := range summaries {
				best := "-"
				if s.BestFitness != nil {
					best = formatFitness(*s.BestFitness)
				}
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\t%s\t%s\n",
					s.ID, s.Status, s.Rounds,
					humanize.Comma(int64(s.OracleCalls)),
					humanize.Comma(int64(s.Candidates)),
					best, humanize.Time(s.UpdatedAt))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum campaigns to list; 0 lists all")
	return cmd
}

func newTopCommand(root *rootOptions) *cobra.Command {
	var k int
	cmd := &cobra.Command{
		Use:   "top [campaign-id|latest]",
		Short: "Show the best evaluated candidates of a campaign",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeClient(cmd, client)

			top, err := client.Top(cmd.Context(), campaignArg(args), k)
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "RANK\tFITNESS\tROUND\tOPERATION\tID\tSEQUENCE")
			for i, c := range top {
				fitness, _ := c.Fitness()
				fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%s\t%s\n",
					i+1, formatFitness(fitness), c.Provenance.Round, c.Provenance.Operation, c.ID, c.Sequence())
			}
			return tw.Flush()
		},
	}
	cmd.Flags().IntVarP(&k, "k", "k", 10, "number of candidates")
	return cmd
}

func newRoundsCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rounds [campaign-id|latest]",
		Short: "Show the round history of a campaign",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeClient(cmd, client)

			rounds, err := client.Rounds(cmd.Context(), campaignArg(args))
			if err != nil {
				return err
			}
			tw := newTable(cmd.OutOrStdout())
			fmt.Fprintln(tw, "ROUND\tPROPOSED\tINVALID\tDUPLICATE\tSELECTED\tEVALUATED\tBEST\tRUNNING\tFLAGS\tTOOK")
			for _, r := range rounds {
				fmt.Fprintf(tw, "%d\t%d\t%d\t%d\t%d\t%d\t%s\t%s\t%s\t%s\n",
					r.Index, r.Proposed, r.Invalid, r.Duplicates, len(r.Selected), len(r.Evaluated),
					formatFitness(r.BestFitness), formatFitness(r.RunningBest), roundFlags(r),
					r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
			}
			return tw.Flush()
		},
	}
}

func roundFlags(r model.Round) string {
	var flags []string
	if r.ColdStart {
		flags = append(flags, "cold")
	}
	if r.Partial {
		flags = append(flags, "partial")
	}
	if r.Exhausted {
		flags = append(flags, "exhausted")
	}
	if len(flags) == 0 {
		return "-"
	}
	return strings.Join(flags, ",")
}

func newExportCommand(root *rootOptions) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export [campaign-id|latest]",
		Short: "Write every candidate of a campaign as JSON lines",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeClient(cmd, client)

			if out == "" || out == "-" {
				return client.Export(cmd.Context(), campaignArg(args), cmd.OutOrStdout())
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := client.Export(cmd.Context(), campaignArg(args), f); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			cmd.PrintErrln("wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file; stdout when empty")
	return cmd
}

func newDeleteCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <campaign-id|latest>",
		Short: "Remove a stored campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := root.openStore(cmd)
			if err != nil {
				return err
			}
			defer closeClient(cmd, client)

			if err := client.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "deleted", args[0])
			return nil
		},
	}
}
