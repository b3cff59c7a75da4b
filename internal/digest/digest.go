// Package digest builds weekly application reports from stored snapshots and
// posts them to Slack on a cron schedule.
package digest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"

	"statuslink/internal/config"
	"statuslink/internal/domain"
	"statuslink/internal/integrations/llm"
	"statuslink/internal/report"
	"statuslink/internal/storage/sqlite"
	"statuslink/internal/weekly"
)

// Result is the weekly report of one application.
type Result struct {
	App      string
	From     string
	To       string
	Title    string
	Reports  []domain.CategorizedReport
	Items    int
	Markdown string
	Summary  string
}

// Poster is the part of *slack.Client the digest needs.
type Poster interface {
	PostMessage(channelID string, options ...slack.MsgOption) (string, string, error)
}

var summarize = llm.SummarizeWeekly

// BuildWeekly builds the categorized report of app for the report week that
// contains now. It has no Slack dependency so the bot, the scheduler and the
// CLI share it.
func BuildWeekly(cfg config.Config, db *sql.DB, app string, now time.Time) (Result, error) {
	from, to := ReportWeek(cfg, now)
	snaps, err := sqlite.GetSnapshotsByDateRange(db, from, to, "")
	if err != nil {
		return Result{}, fmt.Errorf("load snapshots: %w", err)
	}
	res, err := BuildFromPayloads(cfg, sqlite.Payloads(snaps), app, from, to)
	if err != nil {
		return Result{}, err
	}
	log.Printf("digest build app=%q from=%s to=%s snapshots=%d items=%d", app, from, to, len(snaps), res.Items)
	return res, nil
}

// BuildFromPayloads categorizes payloads already loaded for the from..to range.
func BuildFromPayloads(cfg config.Config, payloads []domain.StatusPayload, app, from, to string) (Result, error) {
	configs, err := weekly.LoadCategoryConfigs(cfg.CategoriesPath)
	if err != nil {
		return Result{}, err
	}
	reports := weekly.GenerateWeeklyReport(payloads, app, configs)
	res := Result{
		App:     app,
		From:    from,
		To:      to,
		Title:   fmt.Sprintf("%s weekly report (%s to %s)", app, from, to),
		Reports: reports,
		Items:   len(weekly.Items(reports)),
	}
	res.Markdown = report.RenderWeeklyMarkdown(res.Title, reports, false)
	return res, nil
}

// AvailableApps lists the applications with snapshots in the report week.
func AvailableApps(cfg config.Config, db *sql.DB, now time.Time) ([]string, error) {
	from, to := ReportWeek(cfg, now)
	snaps, err := sqlite.GetSnapshotsByDateRange(db, from, to, "")
	if err != nil {
		return nil, fmt.Errorf("load snapshots: %w", err)
	}
	return weekly.ExtractAppNames(sqlite.Payloads(snaps)), nil
}

// ReportWeek returns the inclusive YYYY-MM-DD bounds of the report week at now.
func ReportWeek(cfg config.Config, now time.Time) (string, string) {
	if cfg.Location != nil {
		now = now.In(cfg.Location)
	}
	monday, nextMonday := domain.ReportWeekRange(cfg, now)
	return domain.DateRange(monday, nextMonday)
}

// Summarize adds an LLM summary to res when an API key is configured.
// Failures are logged and leave the result unchanged.
func Summarize(ctx context.Context, cfg config.Config, res *Result) {
	if !cfg.LLMConfigured() || res.Items == 0 {
		return
	}
	summary, usage, err := summarize(ctx, cfg, res.App, res.Reports)
	if err != nil {
		log.Printf("digest summary error app=%q: %v", res.App, err)
		return
	}
	log.Printf("digest summary app=%q tokens=%d", res.App, usage.TotalTokens())
	res.Summary = summary
}

// Run builds and posts the digest of every configured application, or of
// every application seen this week when none are configured.
func Run(ctx context.Context, cfg config.Config, db *sql.DB, poster Poster, now time.Time) ([]Result, error) {
	if cfg.ReportChannelID == "" {
		return nil, errors.New("report_channel_id is not set")
	}
	apps := cfg.DigestApps
	if len(apps) == 0 {
		found, err := AvailableApps(cfg, db, now)
		if err != nil {
			return nil, err
		}
		apps = found
	}

	var (
		results []Result
		errs    []error
	)
	for _, app := range apps {
		res, err := BuildWeekly(cfg, db, app, now)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", app, err))
			continue
		}
		if res.Items == 0 {
			log.Printf("digest skip app=%q: no items", app)
			continue
		}
		Summarize(ctx, cfg, &res)
		if _, _, err := poster.PostMessage(cfg.ReportChannelID, slack.MsgOptionText(SlackText(res), false)); err != nil {
			errs = append(errs, fmt.Errorf("%s: post: %w", app, err))
			continue
		}
		results = append(results, res)
	}
	return results, errors.Join(errs...)
}

// SlackText renders a result as Slack mrkdwn: headings become bold lines.
func SlackText(res Result) string {
	var b strings.Builder
	if res.Summary != "" {
		b.WriteString("*Summary*\n" + res.Summary + "\n\n")
	}
	for _, line := range strings.Split(strings.TrimRight(res.Markdown, "\n"), "\n") {
		if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "#") {
			line = "*" + strings.TrimSpace(strings.TrimLeft(trimmed, "#")) + "*"
		}
		b.WriteString(line + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// ParseSchedule parses a standard 5-field cron expression, e.g. "0 16 * * 5"
// for Fridays at 16:00.
func ParseSchedule(spec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return parser.Parse(strings.TrimSpace(spec))
}

// StartScheduler posts the digest on cfg.DigestSchedule until the process
// exits. It returns immediately when the digest is not configured.
func StartScheduler(cfg config.Config, db *sql.DB, api *slack.Client) {
	spec := strings.TrimSpace(cfg.DigestSchedule)
	if spec == "" {
		log.Println("Digest disabled (digest_schedule not set)")
		return
	}
	if cfg.ReportChannelID == "" {
		log.Println("Digest disabled: report_channel_id not set")
		return
	}
	sched, err := ParseSchedule(spec)
	if err != nil {
		log.Printf("Invalid digest_schedule '%s': %v, digest disabled", spec, err)
		return
	}
	log.Printf("Digest scheduled (cron: %s) for %d configured apps", spec, len(cfg.DigestApps))

	loc := cfg.Location
	if loc == nil {
		loc = time.Local
	}
	go func() {
		for {
			now := time.Now().In(loc)
			next := sched.Next(now)
			wait := next.Sub(now)
			log.Printf("Next digest at %s (in %s)", next.Format("Mon Jan 2 15:04"), wait.Round(time.Minute))

			time.Sleep(wait)

			results, err := Run(context.Background(), cfg, db, api, time.Now())
			if err != nil {
				log.Printf("Digest error: %v", err)
			}
			log.Printf("Digest complete: posted=%d", len(results))
		}
	}()
}
