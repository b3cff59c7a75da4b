package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"statuslink/internal/digest"
	"statuslink/internal/domain"
	"statuslink/internal/fragment"
	"statuslink/internal/reassembly"
	"statuslink/internal/report"
	"statuslink/internal/storage/sqlite"
	"statuslink/internal/weekly"
)

func addMerge(topLevel *cobra.Command, ro *rootOptions) {
	var (
		mode     string
		app      string
		showTags bool
		asHTML   bool
	)
	cmd := &cobra.Command{
		Use:   "merge [file]",
		Short: "Merge the status links of a team into one update.",
		Example: `
pbpaste | statuslink merge
statuslink merge links.txt --mode person-wise --app Billing
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			entries := reassembly.ReassembleText(text, cfg.Origin)
			if len(entries) == 0 {
				return reassembly.ErrNoPayloads
			}
			merged := report.RenderTeamHTML(entries, report.ParseMergeMode(mode), app, showTags)
			for _, line := range fragment.InvalidLines(text) {
				faint.Fprintf(cmd.ErrOrStderr(), "skipped: %s\n", line)
			}
			if asHTML {
				fmt.Fprintln(cmd.OutOrStdout(), merged)
				return nil
			}
			out := report.PlainText(merged)
			if !showTags {
				out = report.RemoveStatusTags(out)
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", string(report.AppWise), "Grouping: app-wise or person-wise.")
	cmd.Flags().StringVar(&app, "app", report.AllApps, "Only include this application.")
	cmd.Flags().BoolVar(&showTags, "tags", false, "Keep [STATUS] tags.")
	cmd.Flags().BoolVar(&asHTML, "html", false, "Print HTML instead of plain text.")
	topLevel.AddCommand(cmd)
}

func addEditMerge(topLevel *cobra.Command, ro *rootOptions) {
	var links bool
	cmd := &cobra.Command{
		Use:   "edit-merge [file]",
		Short: "Fold one person's links (including split parts) into a single editable payload.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			merged, err := reassembly.MergeTextForEditing(text, cfg.Origin)
			if err != nil {
				return err
			}
			if links {
				res, err := newSplitter(cfg, 0).Split(merged)
				if err != nil {
					return err
				}
				printLinks(cmd, cfg.BaseURL, res.Fragments)
				return nil
			}
			out, err := json.MarshalIndent(merged, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().BoolVar(&links, "links", false, "Print the merged status as links instead of JSON.")
	topLevel.AddCommand(cmd)
}

type weeklyOptions struct {
	App       string
	From      string
	To        string
	Name      string
	LinksFile string
	Markdown  bool
	HTML      bool
	ShowTags  bool
	Summarize bool
	Out       string
	ListApps  bool
}

func addWeekly(topLevel *cobra.Command, ro *rootOptions) {
	wo := &weeklyOptions{}
	cmd := &cobra.Command{
		Use:   "weekly",
		Short: "Build the weekly report of one application.",
		Long: `Build the weekly report of one application from the saved history, or from
a file of links with --links. Items are tracked by their list item id across
the week; items that disappeared before the last day count as deployed.`,
		Example: `
statuslink weekly --app Billing
statuslink weekly --app Billing --from 2024-03-04 --to 2024-03-08 --markdown
statuslink weekly --links week.txt --app Billing --out ./reports
statuslink weekly --list
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()

			from, to := digest.ReportWeek(cfg, time.Now())
			if wo.From != "" {
				from = wo.From
			}
			if wo.To != "" {
				to = wo.To
			}

			var payloads []domain.StatusPayload
			if wo.LinksFile != "" {
				text, err := readInput(cmd, []string{wo.LinksFile})
				if err != nil {
					return err
				}
				payloads = reassembly.ReassemblePayloads(fragment.Extract(text, cfg.Origin))
			} else {
				db, err := sqlite.InitDB(cfg.DBPath)
				if err != nil {
					return err
				}
				defer db.Close()
				snaps, err := sqlite.GetSnapshotsByDateRange(db, from, to, wo.Name)
				if err != nil {
					return err
				}
				payloads = sqlite.Payloads(snaps)
			}

			if wo.ListApps || wo.App == "" {
				apps := weekly.ExtractAppNames(payloads)
				if len(apps) == 0 {
					warn.Fprintf(cmd.ErrOrStderr(), "no applications found between %s and %s\n", from, to)
					return nil
				}
				if !wo.ListApps {
					warn.Fprintln(cmd.ErrOrStderr(), "--app is required; applications found:")
				}
				for _, a := range apps {
					fmt.Fprintln(cmd.OutOrStdout(), a)
				}
				return nil
			}

			res, err := digest.BuildFromPayloads(cfg, payloads, wo.App, from, to)
			if err != nil {
				return err
			}
			if wo.ShowTags {
				res.Markdown = report.RenderWeeklyMarkdown(res.Title, res.Reports, true)
			}
			if wo.Summarize {
				if !cfg.LLMConfigured() {
					return fmt.Errorf("--summarize needs anthropic_api_key")
				}
				digest.Summarize(context.Background(), cfg, &res)
				if res.Summary != "" {
					res.Markdown += "\n### Summary\n" + res.Summary + "\n"
				}
			}

			if wo.Out != "" {
				return writeWeeklyFiles(cmd, wo.Out, res)
			}
			switch {
			case wo.HTML:
				fmt.Fprintln(cmd.OutOrStdout(), report.RenderWeeklyHTML(res.Reports, wo.ShowTags))
			case wo.Markdown:
				fmt.Fprint(cmd.OutOrStdout(), res.Markdown)
			default:
				width := report.TerminalWidth(os.Getenv("COLUMNS"), 100)
				fmt.Fprintln(cmd.OutOrStdout(), report.RenderTerminal(res.Markdown, width))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&wo.App, "app", "", "Application to report on.")
	cmd.Flags().StringVar(&wo.From, "from", "", "First date (YYYY-MM-DD); defaults to the report week's Monday.")
	cmd.Flags().StringVar(&wo.To, "to", "", "Last date (YYYY-MM-DD); defaults to the report week's Sunday.")
	cmd.Flags().StringVar(&wo.Name, "name", "", "Only use one person's history.")
	cmd.Flags().StringVar(&wo.LinksFile, "links", "", "Read status links from this file (\"-\" for stdin) instead of the history.")
	cmd.Flags().BoolVar(&wo.Markdown, "markdown", false, "Print raw Markdown.")
	cmd.Flags().BoolVar(&wo.HTML, "html", false, "Print HTML.")
	cmd.Flags().BoolVar(&wo.ShowTags, "tags", false, "Keep [STATUS] tags.")
	cmd.Flags().BoolVar(&wo.Summarize, "summarize", false, "Append an LLM summary.")
	cmd.Flags().StringVar(&wo.Out, "out", "", "Write a .md report and an .eml draft into this directory.")
	cmd.Flags().BoolVar(&wo.ListApps, "list", false, "List the applications in range and exit.")
	topLevel.AddCommand(cmd)
}

func writeWeeklyFiles(cmd *cobra.Command, dir string, res digest.Result) error {
	date, err := time.Parse(domain.DateLayout, res.To)
	if err != nil {
		date = time.Now()
	}
	mdPath, err := report.WriteReportFile(res.Markdown, dir, date, res.App+" weekly")
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	emlPath, err := report.WriteEmailDraftFile(res.Markdown, dir, date, res.App+" weekly report")
	if err != nil {
		return fmt.Errorf("write email draft: %w", err)
	}
	good.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filepath.Clean(mdPath))
	good.Fprintf(cmd.OutOrStdout(), "wrote %s\n", filepath.Clean(emlPath))
	return nil
}
