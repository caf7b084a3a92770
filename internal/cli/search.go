package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/core"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/services"
)

func newSearchCmd() *cobra.Command {
	var (
		agent     string
		topK      int
		maxTokens int
	)
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a retrieval query against an agent's knowledge",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			results, err := svc.Retrieval.Search(cmd.Context(), services.SearchRequest{
				TenantID:  tenant,
				AgentID:   agent,
				Query:     strings.Join(args, " "),
				TopK:      topK,
				MaxTokens: maxTokens,
			})
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(out(cmd), "No results found.")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(out(cmd), "%d. [%.3f] %s (%s)\n", i+1, r.Score, preview(r.Content, 100), r.SourceID)
				if verbose {
					fmt.Fprintf(out(cmd), "   section=%s url=%s lang=%s tokens=%d\n",
						r.Metadata.Section, r.Metadata.URL, r.Metadata.Language, r.TokenCount)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id")
	cmd.Flags().IntVarP(&topK, "top-k", "k", core.DefaultSearchTopK, "max results")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", core.DefaultSearchMaxTokens, "token budget")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Platform ingestion settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "get",
		Short: "Print current settings",
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := svc.Settings.MaxCrawlPages(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "max_crawl_pages=%d\n", n)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "set-max-pages <n>",
		Short: fmt.Sprintf("Set the crawl page limit (1-%d)", core.CrawlPagesCeiling),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid page count %q", args[0])
			}
			if err := svc.Settings.SetMaxCrawlPages(cmd.Context(), n); err != nil {
				return err
			}
			fmt.Fprintf(out(cmd), "max_crawl_pages=%d\n", n)
			return nil
		},
	})
	return cmd
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
