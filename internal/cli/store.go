package cli

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"statuslink/internal/app"
	"statuslink/internal/config"
	"statuslink/internal/digest"
	"statuslink/internal/domain"
	"statuslink/internal/fragment"
	"statuslink/internal/history"
	"statuslink/internal/reassembly"
	"statuslink/internal/report"
	"statuslink/internal/storage/sqlite"
	"statuslink/internal/tags"
	"statuslink/internal/weekly"
)

func openDB(cfg config.Config) (*sql.DB, error) {
	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open history %s: %w", cfg.DBPath, err)
	}
	return db, nil
}

func addSave(topLevel *cobra.Command, ro *rootOptions) {
	var kind string
	cmd := &cobra.Command{
		Use:   "save [file]",
		Short: "Save status links into the local history.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			if kind != domain.KindIndividual && kind != domain.KindTeam {
				return fmt.Errorf("--kind must be %s or %s", domain.KindIndividual, domain.KindTeam)
			}
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			payloads := reassembly.ReassemblePayloads(fragment.Extract(text, cfg.Origin))
			if len(payloads) == 0 {
				return reassembly.ErrNoPayloads
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			total := 0
			for _, p := range payloads {
				n, err := sqlite.SaveDailyStatus(db, p, kind, "cli")
				if err != nil {
					return fmt.Errorf("save %s %s: %w", p.Name, p.Date, err)
				}
				total += n
			}
			good.Fprintf(cmd.OutOrStdout(), "saved %d snapshot(s) from %d status update(s)\n", total, len(payloads))
			return nil
		},
	}
	cmd.Flags().StringVar(&kind, "kind", domain.KindIndividual, "Snapshot kind: individual or team.")
	topLevel.AddCommand(cmd)
}

func addExportWeek(topLevel *cobra.Command, ro *rootOptions) {
	var name, from, to string
	var budget int
	cmd := &cobra.Command{
		Use:   "export-week",
		Short: "Pack a week of saved statuses into as few batch links as fit the budget.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			defFrom, defTo := digest.ReportWeek(cfg, time.Now())
			if from == "" {
				from = defFrom
			}
			if to == "" {
				to = defTo
			}
			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			snaps, err := sqlite.GetSnapshotsByDateRange(db, from, to, name)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				warn.Fprintf(cmd.ErrOrStderr(), "nothing saved between %s and %s\n", from, to)
				return nil
			}
			frags, err := newSplitter(cfg, budget).SplitBatch(regroup(snaps))
			if err != nil {
				return err
			}
			names := history.Names(snaps)
			for i, f := range frags {
				fmt.Fprintln(cmd.OutOrStdout(), history.BatchLabel(names, from, to, i+1, len(frags)))
				fmt.Fprintln(cmd.OutOrStdout(), fragment.LinkFor(cfg.BaseURL, f))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Only export one person.")
	cmd.Flags().StringVar(&from, "from", "", "First date (YYYY-MM-DD).")
	cmd.Flags().StringVar(&to, "to", "", "Last date (YYYY-MM-DD).")
	cmd.Flags().IntVar(&budget, "budget", 0, "Maximum fragment length (defaults to fragment_budget).")
	topLevel.AddCommand(cmd)
}

// regroup folds per-application snapshots back into one payload per person
// and date, keeping the snapshot order.
func regroup(snaps []domain.DailySnapshot) []domain.StatusPayload {
	groups := history.GroupSnapshots(snaps)
	out := make([]domain.StatusPayload, 0, len(groups))
	for _, g := range groups {
		p := domain.StatusPayload{Version: domain.CurrentVersion, Name: g.Name, Date: g.Date}
		for _, s := range g.Snapshots {
			p.Apps = append(p.Apps, s.Payload.Apps...)
			if p.CustomTags == nil {
				p.CustomTags = s.Payload.CustomTags
			}
		}
		out = append(out, p)
	}
	return out
}

func addHistory(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect the saved history.",
	}

	var f sqlite.SnapshotFilter
	list := &cobra.Command{
		Use:   "list",
		Short: "List saved snapshots, newest first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(ro.load())
			if err != nil {
				return err
			}
			defer db.Close()
			snaps, err := sqlite.ListSnapshots(db, f)
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				faint.Fprintln(cmd.OutOrStdout(), "no snapshots")
				return nil
			}
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.AddRow(bold.Sprint("ID"), bold.Sprint("Date"), bold.Sprint("Name"), bold.Sprint("App"), bold.Sprint("Kind"), bold.Sprint("Source"))
			for _, s := range snaps {
				tbl.AddRow(s.ID, s.Date, s.Name, s.AppName, s.Kind, faint.Sprint(s.SourceIdentifier))
			}
			tbl.RightAlign(0)
			fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return nil
		},
	}
	list.Flags().StringVar(&f.Search, "search", "", "Match person, application or content.")
	list.Flags().StringVar(&f.Kind, "kind", "", "individual or team.")
	list.Flags().StringVar(&f.Name, "name", "", "Only one person.")
	list.Flags().StringVar(&f.From, "from", "", "First date (YYYY-MM-DD).")
	list.Flags().StringVar(&f.To, "to", "", "Last date (YYYY-MM-DD).")
	list.Flags().IntVar(&f.Limit, "limit", 50, "Maximum rows; 0 for all.")
	list.Flags().IntVar(&f.Offset, "offset", 0, "Rows to skip.")

	var sf sqlite.SnapshotFilter
	stats := &cobra.Command{
		Use:   "stats",
		Short: "Count done, in-progress and blocked items.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(ro.load())
			if err != nil {
				return err
			}
			defer db.Close()
			sf.Kind = domain.KindIndividual
			snaps, err := sqlite.ListSnapshots(db, sf)
			if err != nil {
				return err
			}
			st := history.ComputeStats(snaps)

			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.AddRow(bold.Sprint("Done"), good.Sprint(st.Done))
			tbl.AddRow(bold.Sprint("In progress"), warn.Sprint(st.InProgress))
			tbl.AddRow(bold.Sprint("Blocked"), bad.Sprint(st.Blocked))
			tbl.AddRow(bold.Sprint("Total"), st.Total)
			fmt.Fprintln(cmd.OutOrStdout(), tbl)

			if len(st.Velocity) > 0 {
				vt := uitable.New()
				vt.Separator = "  "
				for _, d := range st.Velocity {
					vt.AddRow(d.Date, strings.Repeat("#", d.Count), d.Count)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				fmt.Fprintln(cmd.OutOrStdout(), vt)
			}
			return nil
		},
	}
	stats.Flags().StringVar(&sf.Name, "name", "", "Only one person.")
	stats.Flags().StringVar(&sf.From, "from", "", "First date (YYYY-MM-DD).")
	stats.Flags().StringVar(&sf.To, "to", "", "Last date (YYYY-MM-DD).")

	var tlName string
	timeline := &cobra.Command{
		Use:   "timeline <item-id>",
		Short: "Follow one list item through the saved days.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDB(ro.load())
			if err != nil {
				return err
			}
			defer db.Close()
			snaps, err := sqlite.ListSnapshots(db, sqlite.SnapshotFilter{Name: tlName})
			if err != nil {
				return err
			}
			entries := history.Timeline(snaps, args[0])
			if len(entries) == 0 {
				return fmt.Errorf("item %s not found", args[0])
			}
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.MaxColWidth = 80
			tbl.AddRow(bold.Sprint("Date"), bold.Sprint("Status"), bold.Sprint("Item"))
			for _, e := range entries {
				tbl.AddRow(e.Date, e.Status, report.InlineText(e.Content))
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return nil
		},
	}
	timeline.Flags().StringVar(&tlName, "name", "", "Only one person.")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete one snapshot.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid snapshot id %q", args[0])
			}
			db, err := openDB(ro.load())
			if err != nil {
				return err
			}
			defer db.Close()
			if err := sqlite.DeleteSnapshot(db, id); err != nil {
				return err
			}
			good.Fprintf(cmd.OutOrStdout(), "deleted snapshot %d\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, stats, timeline, del)
	topLevel.AddCommand(cmd)
}

func addTags(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "Manage status tags.",
	}
	withRegistry := func(fn func(cmd *cobra.Command, args []string, r *tags.Registry) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			db, err := openDB(ro.load())
			if err != nil {
				return err
			}
			defer db.Close()
			return fn(cmd, args, tags.NewRegistry(sqlite.TagStore{DB: db}))
		}
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List built-in and custom tags.",
		Args:  cobra.NoArgs,
		RunE: withRegistry(func(cmd *cobra.Command, args []string, r *tags.Registry) error {
			all, err := r.All()
			if err != nil {
				return err
			}
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.AddRow(bold.Sprint("Label"), bold.Sprint("Color"), bold.Sprint("Description"), bold.Sprint("ID"))
			for _, t := range all {
				desc := t.Description
				if t.IsCustom {
					desc = warn.Sprint(desc)
				}
				tbl.AddRow("["+t.Label+"]", t.Color, desc, faint.Sprint(t.ID))
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return nil
		}),
	}

	var tagColor string
	add := &cobra.Command{
		Use:   "add <label>",
		Short: "Add a custom tag.",
		Args:  cobra.ExactArgs(1),
		RunE: withRegistry(func(cmd *cobra.Command, args []string, r *tags.Registry) error {
			t, err := r.Add(args[0], tagColor)
			if err != nil {
				return err
			}
			good.Fprintf(cmd.OutOrStdout(), "added [%s] %s\n", t.Label, t.ID)
			return nil
		}),
	}
	add.Flags().StringVar(&tagColor, "color", "", "Hex color, e.g. #336699.")

	remove := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a custom tag.",
		Args:  cobra.ExactArgs(1),
		RunE: withRegistry(func(cmd *cobra.Command, args []string, r *tags.Registry) error {
			if err := r.Remove(args[0]); err != nil {
				return err
			}
			good.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
			return nil
		}),
	}

	cmd.AddCommand(list, add, remove)
	topLevel.AddCommand(cmd)
}

func addCategories(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "categories",
		Short: "Show or edit the weekly report categories.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			configs, err := weekly.LoadCategoryConfigs(cfg.CategoriesPath)
			if err != nil {
				return err
			}
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.AddRow(bold.Sprint("Category"), bold.Sprint("Tags"))
			for _, c := range configs {
				tbl.AddRow(c.Name, strings.Join(c.Tags, " "))
			}
			fmt.Fprintln(cmd.OutOrStdout(), tbl)
			return nil
		},
	}

	addTag := &cobra.Command{
		Use:   "add-tag <category> <tag>",
		Short: "Map a tag to a category in the categories file.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			if cfg.CategoriesPath == "" {
				return fmt.Errorf("categories_path is not set")
			}
			if err := weekly.AppendCategoryTag(cfg.CategoriesPath, args[0], args[1]); err != nil {
				return err
			}
			good.Fprintf(cmd.OutOrStdout(), "%s now includes %s\n", args[0], args[1])
			return nil
		},
	}

	cmd.AddCommand(addTag)
	topLevel.AddCommand(cmd)
}

func addServe(topLevel *cobra.Command, ro *rootOptions) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON API.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunServer(ro.load())
		},
	})
}

func addBot(topLevel *cobra.Command, ro *rootOptions) {
	topLevel.AddCommand(&cobra.Command{
		Use:   "bot",
		Short: "Run the Slack bot and the weekly digest scheduler.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.RunBot(ro.load())
		},
	})
}
