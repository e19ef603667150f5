package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"feedwire/internal/config"
	"feedwire/internal/infra/scraper"
	"feedwire/internal/usecase/fetch"
)

func feedsCmd(g *globalFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feeds",
		Short: "Inspect the configured feed sources",
	}
	cmd.AddCommand(feedsListCmd(g), feedsCheckCmd(g))
	return cmd
}

func feedsListCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List feed sources and whether they pass validation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig(g.logger())
			if err != nil {
				return err
			}
			provider := config.NewFileProvider(cfg.FeedsConfig)
			sources, err := provider.Sources(cmd.Context())
			if err != nil {
				return err
			}
			keywords, err := provider.Keywords(cmd.Context())
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tCATEGORY\tKEYWORDS\tURL\tSTATUS")
			invalid := 0
			for _, src := range sources {
				status := "ok"
				if err := src.Validate(); err != nil {
					status = "invalid: " + err.Error()
					invalid++
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
					src.Name, src.Category, len(keywords.For(src.Category)), src.URL, status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if invalid > 0 {
				return fmt.Errorf("%d of %d feed source(s) invalid", invalid, len(sources))
			}
			return nil
		},
	}
}

func feedsCheckCmd(g *globalFlags) *cobra.Command {
	var (
		output    string
		perSecond float64
	)
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Fetch every feed once and report its health",
		Long: `Fetches each configured feed once, without retries or circuit breakers,
and reports the HTTP status, item count and newest entry. Exits non-zero
when any feed is not OK.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != "json" && output != "text" {
				return fmt.Errorf("unknown output format %q", output)
			}
			cfg, err := g.loadConfig(g.logger())
			if err != nil {
				return err
			}
			sources, err := config.NewFileProvider(cfg.FeedsConfig).Sources(cmd.Context())
			if err != nil {
				return err
			}

			fetcher := scraper.NewRSSFetcher(nil, scraper.DefaultRSSConfig())
			diags := fetch.Diagnose(cmd.Context(), fetcher, sources, cfg.FetchTimeout, perSecond)

			if output == "json" {
				if err := writeJSON(cmd.OutOrStdout(), diags); err != nil {
					return err
				}
			} else if err := writeDiagnostics(cmd, diags); err != nil {
				return err
			}

			bad := 0
			for _, d := range diags {
				if d.Status != fetch.DiagOK {
					bad++
				}
			}
			if bad > 0 {
				return fmt.Errorf("%d of %d feed(s) unhealthy", bad, len(sources))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text or json")
	cmd.Flags().Float64Var(&perSecond, "rate", 2, "maximum probes per second (0 = unthrottled)")
	return cmd
}

func writeDiagnostics(cmd *cobra.Command, diags []fetch.Diagnostic) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "NAME\tSTATUS\tITEMS\tLATEST\tTIME\tDETAIL")
	for _, d := range diags {
		latest := "-"
		if !d.Latest.IsZero() {
			latest = d.Latest.Format(time.DateOnly)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%dms\t%s\n",
			d.Name, d.Status, d.ItemCount, latest, d.ResponseTime, d.ErrorMessage)
	}
	return tw.Flush()
}
