package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/gosuri/uitable"
	"github.com/spf13/cobra"

	"statuslink/internal/codec"
	"statuslink/internal/config"
	"statuslink/internal/domain"
	"statuslink/internal/fragment"
	"statuslink/internal/listid"
	"statuslink/internal/splitter"
)

var (
	warn  = color.New(color.FgYellow)
	bad   = color.New(color.FgRed)
	good  = color.New(color.FgGreen)
	faint = color.New(color.Faint)
	bold  = color.New(color.Bold)
)

// parsePayloads accepts a JSON object or an array of objects.
func parsePayloads(raw string) ([]domain.StatusPayload, error) {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "[") {
		var ps []domain.StatusPayload
		if err := json.Unmarshal([]byte(raw), &ps); err != nil {
			return nil, fmt.Errorf("parse payloads: %w", err)
		}
		return ps, nil
	}
	var p domain.StatusPayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("parse payload: %w", err)
	}
	return []domain.StatusPayload{p}, nil
}

func newSplitter(cfg config.Config, budget int) *splitter.Splitter {
	opts := splitter.Options{
		Budget:        cfg.FragmentBudget,
		ContentBudget: cfg.ContentBudget,
		Chunker:       splitter.NewChunker(cfg.Chunker),
	}
	if budget > 0 {
		opts.Budget, opts.ContentBudget = budget, 0
	}
	return splitter.New(opts)
}

func printLinks(cmd *cobra.Command, baseURL string, frags []string) {
	for _, f := range frags {
		fmt.Fprintln(cmd.OutOrStdout(), fragment.LinkFor(baseURL, f))
	}
}

func addEncode(topLevel *cobra.Command, ro *rootOptions) {
	var assignIDs, stripIDs bool
	cmd := &cobra.Command{
		Use:   "encode [payload.json]",
		Short: "Encode a status payload (or a JSON array of payloads) into a link.",
		Example: `
statuslink encode status.json
echo '{"name":"Ann","date":"2024-03-04","apps":[{"app":"Billing","content":"<p>x</p>"}]}' | statuslink encode
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			ps, err := parsePayloads(raw)
			if err != nil {
				return err
			}
			for i := range ps {
				if stripIDs {
					if ps[i], err = listid.StripPayload(ps[i]); err != nil {
						return err
					}
				}
				if assignIDs {
					if ps[i], err = listid.AssignPayload(ps[i]); err != nil {
						return err
					}
				}
			}
			var frag string
			if len(ps) == 1 {
				frag, err = codec.Encode(ps[0])
			} else {
				frag, err = codec.EncodeBatch(ps)
			}
			if err != nil {
				return err
			}
			printLinks(cmd, cfg.BaseURL, []string{frag})
			if len(frag) > cfg.FragmentBudget {
				warn.Fprintf(cmd.ErrOrStderr(), "fragment is %d characters, over the %d budget; use split\n", len(frag), cfg.FragmentBudget)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&assignIDs, "assign-ids", false, "Give every list item a data-id so weekly reports can track it.")
	cmd.Flags().BoolVar(&stripIDs, "strip-ids", false, "Drop existing list item ids so the items are tracked as new (combine with --assign-ids for fresh ids).")
	topLevel.AddCommand(cmd)
}

func addDecode(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode status links from text into JSON payloads.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			frags := fragment.Extract(text, cfg.Origin)
			if len(frags) == 0 {
				frags = fragment.FindAll(text)
			}
			payloads := codec.Flatten(frags)
			if len(payloads) == 0 {
				return fmt.Errorf("no valid status links found")
			}
			out, err := json.MarshalIndent(payloads, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func addSplit(topLevel *cobra.Command, ro *rootOptions) {
	var budget int
	cmd := &cobra.Command{
		Use:   "split [payload.json]",
		Short: "Encode a payload, splitting it into numbered parts when it is over budget.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			raw, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			ps, err := parsePayloads(raw)
			if err != nil {
				return err
			}
			sp := newSplitter(cfg, budget)
			for _, p := range ps {
				res, err := sp.Split(p)
				if err != nil {
					return err
				}
				printLinks(cmd, cfg.BaseURL, res.Fragments)
				if res.Oversized > 0 {
					warn.Fprintf(cmd.ErrOrStderr(), "%s: %d part(s) still over budget\n", p.Name, res.Oversized)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&budget, "budget", 0, "Maximum fragment length (defaults to fragment_budget).")
	topLevel.AddCommand(cmd)
}

func addExtract(topLevel *cobra.Command, ro *rootOptions) {
	cmd := &cobra.Command{
		Use:   "extract [file]",
		Short: "List the status links found in pasted text.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := ro.load()
			text, err := readInput(cmd, args)
			if err != nil {
				return err
			}
			tbl := uitable.New()
			tbl.Separator = "  "
			tbl.MaxColWidth = 60
			tbl.AddRow(bold.Sprint("#"), bold.Sprint("Name"), bold.Sprint("Date"), bold.Sprint("Apps"), bold.Sprint("Status"))
			for i, f := range fragment.Extract(text, cfg.Origin) {
				d, ok := codec.Decode(f)
				if !ok {
					tbl.AddRow(strconv.Itoa(i+1), "", "", "", bad.Sprint("invalid"))
					continue
				}
				for _, p := range d.Payloads {
					apps := make([]string, 0, len(p.Apps))
					for _, a := range p.Apps {
						apps = append(apps, a.App)
					}
					status := good.Sprint("ok")
					if d.Batch {
						status = good.Sprint("ok (batch)")
					}
					tbl.AddRow(strconv.Itoa(i+1), p.Name, p.Date, strings.Join(apps, ", "), status)
				}
			}
			tbl.RightAlign(0)
			fmt.Fprintln(cmd.OutOrStdout(), tbl)
			for _, line := range fragment.InvalidLines(text) {
				faint.Fprintf(cmd.ErrOrStderr(), "skipped: %s\n", line)
			}
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}
