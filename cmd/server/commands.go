package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/severalx/site/internal/config"
	"github.com/severalx/site/internal/content"
	"github.com/severalx/site/internal/domain"
	"github.com/severalx/site/internal/store"
)

// newPublicationsCmd fetches publications through the running site's relay,
// the same path the front end uses.
func newPublicationsCmd() *cobra.Command {
	var (
		collection string
		limit      int
		siteURL    string
	)

	cmd := &cobra.Command{
		Use:   "publications",
		Short: "Show the home page publications list or one collection",
		Long: "Without --collection, runs the featured/recent merge and prints the list the home page shows.\n" +
			"With --collection, prints that collection as returned by the relay.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if siteURL == "" {
				siteURL = cfg.SiteURL
			}
			client := content.NewClient(siteURL)

			if collection == "" {
				list := content.NewAggregator(client, limit).Compose(cmd.Context())
				if err := writeJSON(cmd.OutOrStdout(), list); err != nil {
					return err
				}
				if len(list.Items) == 0 && list.Error != "" {
					return fmt.Errorf("no publications: %s", list.Error)
				}
				return nil
			}

			name, ok := domain.ParseCollection(collection)
			if !ok {
				return fmt.Errorf("invalid collection %q: must be one of featured, recent, case-studies", collection)
			}
			result := client.FetchCollection(cmd.Context(), name, limit)
			if result == nil {
				return fmt.Errorf("collection %s is unavailable", name)
			}
			return writeJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().StringVarP(&collection, "collection", "c", "", "collection to fetch (featured, recent, case-studies)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "maximum number of posts")
	cmd.Flags().StringVar(&siteURL, "site-url", "", "site origin hosting the relay (default SITE_URL)")

	return cmd
}

// newLeadsCmd gives operators read access to stored contact submissions.
func newLeadsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leads",
		Short: "Inspect contact form submissions",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List the most recent leads",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			repo, err := store.NewSQLite(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() { _ = repo.Close() }()

			leads, err := repo.ListLeads(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return writeLeads(cmd.OutOrStdout(), leads)
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of leads to show")

	cmd.AddCommand(listCmd)
	return cmd
}

func writeLeads(out io.Writer, leads []*domain.Lead) error {
	if len(leads) == 0 {
		_, err := fmt.Fprintln(out, "No leads yet.")
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RECEIVED\tNAME\tEMAIL\tSERVICE\tNOTIFIED")
	for _, l := range leads {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\n",
			l.CreatedAt.Local().Format(time.DateTime), l.Name, l.Email, l.ServiceOrDefault(), l.AdminNotified)
	}
	return tw.Flush()
}

// newConfigCmd reports which integrations the environment enables.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Validate configuration and report missing integrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			writeConfigReport(cmd.OutOrStdout(), cfg)
			return nil
		},
	}

	cmd.AddCommand(checkCmd)
	return cmd
}

func writeConfigReport(out io.Writer, cfg *config.Config) {
	status := func(ok bool) string {
		if ok {
			return "configured"
		}
		return "missing"
	}

	fmt.Fprintf(out, "Port:          %s\n", cfg.Port)
	fmt.Fprintf(out, "Site URL:      %s\n", cfg.SiteURL)
	fmt.Fprintf(out, "Database:      %s\n", cfg.DBPath)
	fmt.Fprintf(out, "Ghost:         %s\n", status(cfg.Ghost.URL != "" && cfg.Ghost.Key != ""))
	fmt.Fprintf(out, "Chat:          %s\n", status(cfg.Chat.BaseURL != ""))

	if missing := cfg.MissingSMTP(); len(missing) > 0 {
		fmt.Fprintf(out, "SMTP:          missing %s\n", strings.Join(missing, ", "))
	} else if cfg.SMTP.UseMock {
		fmt.Fprintln(out, "SMTP:          mock (emails are logged, not sent)")
	} else {
		fmt.Fprintln(out, "SMTP:          configured")
	}

	limiter := "in-process"
	if cfg.Redis.Addr != "" {
		limiter = "redis " + cfg.Redis.Addr
	}
	fmt.Fprintf(out, "Rate limit:    %d per %s (%s)\n", cfg.RateLimit.Requests, cfg.RateLimit.Window, limiter)
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
