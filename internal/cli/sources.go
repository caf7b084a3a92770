package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/models"
	"github.com/Guntherdrb30/TrendsTech.com-sub000/internal/services"
)

func newIngestCmd() *cobra.Command {
	var (
		agent    string
		title    string
		section  string
		textFlag string
		sync     bool
	)
	cmd := &cobra.Command{
		Use:   "ingest <url|file.pdf|->",
		Short: "Create a knowledge source",
		Long: `Create a knowledge source and queue it for ingestion.

The argument is a URL, a path to a PDF file, or "-" together with --text.
With --sync the pipeline runs in this process and the final status is printed.

Examples:
  knowctl ingest -t acme --agent support https://acme.example/help
  knowctl ingest -t acme --agent support ./manual.pdf --sync
  knowctl ingest -t acme --agent support - --text "Abrimos de 9 a 18."`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			req, err := buildIngestRequest(args[0], textFlag)
			if err != nil {
				return err
			}
			req.TenantID, req.AgentID, req.Title, req.Section = tenant, agent, title, section

			if sync {
				src, err := svc.Sources.CreateAndIngest(cmd.Context(), req)
				if src != nil {
					printSource(cmd, src)
				}
				return err
			}
			src, job, err := svc.Sources.Create(cmd.Context(), req)
			if err != nil {
				return err
			}
			printSource(cmd, src)
			if job != nil {
				fmt.Fprintf(out(cmd), "job %s %s\n", job.Key, job.State)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "agent id")
	cmd.Flags().StringVar(&title, "title", "", "source title")
	cmd.Flags().StringVar(&section, "section", "", "section label for text sources")
	cmd.Flags().StringVar(&textFlag, "text", "", "raw text when the argument is -")
	cmd.Flags().BoolVar(&sync, "sync", false, "run the pipeline inline")
	_ = cmd.MarkFlagRequired("agent")
	return cmd
}

func buildIngestRequest(arg, text string) (services.CreateSourceRequest, error) {
	switch {
	case arg == "-":
		return services.CreateSourceRequest{Kind: models.SourceKindText, RawText: text}, nil
	case strings.HasPrefix(arg, "http://") || strings.HasPrefix(arg, "https://"):
		return services.CreateSourceRequest{Kind: models.SourceKindURL, URL: arg}, nil
	default:
		data, err := os.ReadFile(arg)
		if err != nil {
			return services.CreateSourceRequest{}, fmt.Errorf("read %s: %w", arg, err)
		}
		return services.CreateSourceRequest{
			Kind:     models.SourceKindPDF,
			FileName: filepath.Base(arg),
			FileData: data,
		}, nil
	}
}

func newReindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex <source-id>...",
		Short: "Queue sources for a full re-ingestion",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			for _, id := range args {
				src, job, err := svc.Sources.Reindex(cmd.Context(), tenant, id, "knowctl")
				if err != nil {
					return fmt.Errorf("reindex %s: %w", id, err)
				}
				fmt.Fprintf(out(cmd), "%s %s job=%s\n", src.ID, src.Status, job.State)
			}
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <source-id>",
		Short: "Show a source's status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			src, err := svc.Sources.Get(cmd.Context(), tenant, args[0])
			if err != nil {
				return err
			}
			printSource(cmd, src)
			return nil
		},
	}
}

func newLogsCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "logs <source-id>",
		Short: "Show recent ingestion events, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			events, err := svc.Sources.Logs(cmd.Context(), tenant, args[0], limit)
			if err != nil {
				return err
			}
			for _, ev := range events {
				line := fmt.Sprintf("%s %3d%% %-9s %s", ev.CreatedAt.Format("15:04:05"), ev.Progress, ev.Stage, ev.Message)
				if ev.Error != "" && ev.Error != ev.Message {
					line += " (" + ev.Error + ")"
				}
				fmt.Fprintln(out(cmd), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", services.DefaultLogLimit, "max events")
	return cmd
}

func newListCmd() *cobra.Command {
	var agent string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List a tenant's sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			list, err := svc.Sources.List(cmd.Context(), tenant, agent)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(out(cmd), "No sources found.")
				return nil
			}
			for i := range list {
				printSource(cmd, &list[i])
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&agent, "agent", "", "only this agent")
	return cmd
}

func printSource(cmd *cobra.Command, src *models.KnowledgeSource) {
	label := src.Title
	if label == "" {
		label = src.OriginURL
	}
	if label == "" {
		label = src.FileName
	}
	fmt.Fprintf(out(cmd), "%s %-4s %-10s %s\n", src.ID, src.Kind, src.Status, label)
}
