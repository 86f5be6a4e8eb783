package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"clonebo/internal/config"
	"clonebo/pkg/clonebo"
)

func newValidateCommand(_ *rootOptions) *cobra.Command {
	var (
		configPath string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "validate <sequence>",
		Short: "Number a sequence and print its regions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Default()
			if configPath != "" {
				loaded, err := config.Load(configPath)
				if err != nil {
					return err
				}
				cfg = loaded
			}
			v, err := clonebo.NewValidator(cfg.Sequence)
			if err != nil {
				return err
			}
			numbered, err := v.Validate(args[0])
			if err != nil {
				return err
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(numbered)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "chain %s, scheme %s, %d residues\n", numbered.Chain, numbered.Scheme, len(numbered.Sequence))
			tw := newTable(out)
			fmt.Fprintln(tw, "REGION\tSTART\tEND\tLABELS\tRESIDUES")
			for _, span := range numbered.Regions {
				labels := numbered.Positions[span.Start].Label + "-" + numbered.Positions[span.End-1].Label
				fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n",
					span.Region, span.Start, span.End, labels, numbered.Sequence[span.Start:span.End])
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "campaign YAML file for alphabet, lengths and scheme")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the full numbering as JSON")
	return cmd
}
