// Package slackbot serves the statuslink slash commands over Socket Mode.
package slackbot

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/socketmode"

	"statuslink/internal/config"
	"statuslink/internal/digest"
	"statuslink/internal/domain"
	"statuslink/internal/report"
)

func StartSlackBot(cfg config.Config, db *sql.DB, api *slack.Client) error {
	client := socketmode.New(api)

	go func() {
		for evt := range client.Events {
			switch evt.Type {
			case socketmode.EventTypeConnecting:
				log.Println("Connecting to Slack with Socket Mode...")
			case socketmode.EventTypeConnectionError:
				log.Println("Slack connection failed, retrying...")
			case socketmode.EventTypeSlashCommand:
				client.Ack(*evt.Request)
				cmd, ok := evt.Data.(slack.SlashCommand)
				if !ok {
					continue
				}
				log.Printf("Slash command received: %s from user=%s channel=%s", cmd.Command, cmd.UserID, cmd.ChannelID)
				go handleSlashCommand(api, db, cfg, cmd)
			}
		}
	}()

	log.Println("Slack bot connected via Socket Mode")
	return client.Run()
}

func handleSlashCommand(api *slack.Client, db *sql.DB, cfg config.Config, cmd slack.SlashCommand) {
	switch cmd.Command {
	case "/status-link":
		handleStatusLink(api, cfg, cmd)
	case "/status-save":
		handleStatusSave(api, db, cfg, cmd)
	case "/status-merge":
		handleStatusMerge(api, cfg, cmd)
	case "/weekly":
		handleWeekly(api, db, cfg, cmd)
	case "/status-help":
		postEphemeral(api, cmd, helpText())
	}
}

func handleStatusLink(api *slack.Client, cfg config.Config, cmd slack.SlashCommand) {
	name := cmd.UserName
	if users, err := getCachedUsers(api); err != nil {
		log.Printf("status-link users error (non-fatal): %v", err)
	} else {
		name = displayName(users, cmd.UserID)
	}

	now := time.Now()
	if cfg.Location != nil {
		now = now.In(cfg.Location)
	}
	p, err := buildStatus(name, now.Format(domain.DateLayout), cmd.Text)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Could not read your status: %v", err))
		return
	}
	links, err := statusLinks(cfg, p)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error creating links: %v", err))
		log.Printf("status-link split error user=%s: %v", cmd.UserID, err)
		return
	}
	log.Printf("status-link user=%s apps=%d links=%d", cmd.UserID, len(p.Apps), len(links))
	postEphemeral(api, cmd, fmt.Sprintf("Your status for %s (%d link(s)):\n%s", p.Date, len(links), strings.Join(links, "\n")))
}

func handleStatusSave(api *slack.Client, db *sql.DB, cfg config.Config, cmd slack.SlashCommand) {
	outcome, err := saveLinks(db, cmd.Text, cfg.Origin, "slack:"+cmd.UserID)
	if errors.Is(err, errNoLinks) {
		postEphemeral(api, cmd, "No status links found. Paste one link per line.")
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error saving status: %v", err))
		log.Printf("status-save error user=%s: %v", cmd.UserID, err)
		return
	}
	log.Printf("status-save user=%s payloads=%d snapshots=%d invalid=%d", cmd.UserID, outcome.Payloads, outcome.Snapshots, outcome.Invalid)
	postEphemeral(api, cmd, formatSaveReply(outcome))
}

func handleStatusMerge(api *slack.Client, cfg config.Config, cmd slack.SlashCommand) {
	text, err := mergeReply(cmd.Text, cfg.Origin)
	if errors.Is(err, errNoLinks) {
		postEphemeral(api, cmd, "No status links found. Paste one link per line.")
		return
	}
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error merging status: %v", err))
		return
	}
	postEphemeral(api, cmd, "```"+text+"```")
}

func handleWeekly(api *slack.Client, db *sql.DB, cfg config.Config, cmd slack.SlashCommand) {
	app := strings.TrimSpace(cmd.Text)
	now := time.Now()
	if app == "" {
		apps, err := digest.AvailableApps(cfg, db, now)
		if err != nil {
			postEphemeral(api, cmd, fmt.Sprintf("Error loading applications: %v", err))
			return
		}
		if len(apps) == 0 {
			postEphemeral(api, cmd, "No status saved for this week yet.")
			return
		}
		postEphemeral(api, cmd, "Usage: `/weekly <app>`. Applications this week: "+strings.Join(apps, ", "))
		return
	}

	postEphemeral(api, cmd, fmt.Sprintf("Building the weekly report for %s...", app))
	res, err := digest.BuildWeekly(cfg, db, app, now)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error building report: %v", err))
		log.Printf("weekly build error app=%q: %v", app, err)
		return
	}
	if res.Items == 0 {
		postEphemeral(api, cmd, fmt.Sprintf("No items with ids found for %s between %s and %s.", app, res.From, res.To))
		return
	}

	monday, err := time.Parse(domain.DateLayout, res.From)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error building report: %v", err))
		return
	}
	filePath, err := report.WriteReportFile(res.Markdown, cfg.ReportOutputDir, domain.FridayOfWeek(monday), app+" weekly")
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error writing report file: %v", err))
		log.Printf("weekly write error: %v", err)
		return
	}
	fi, err := os.Stat(filePath)
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error reading report file: %v", err))
		return
	}
	_, err = api.UploadFileV2(slack.UploadFileV2Parameters{
		File:           filePath,
		FileSize:       int(fi.Size()),
		Filename:       filepath.Base(filePath),
		Channel:        cmd.ChannelID,
		Title:          res.Title,
		InitialComment: fmt.Sprintf("Weekly report for %s (%d items)", app, res.Items),
	})
	if err != nil {
		postEphemeral(api, cmd, fmt.Sprintf("Error uploading report: %v", err))
		log.Printf("weekly upload error: %v", err)
		return
	}
	log.Printf("weekly uploaded app=%q items=%d file=%s", app, res.Items, filePath)
}

func postEphemeral(api *slack.Client, cmd slack.SlashCommand, text string) {
	_, err := api.PostEphemeral(cmd.ChannelID, cmd.UserID, slack.MsgOptionText(text, false))
	if err != nil {
		log.Printf("Error posting ephemeral: %v", err)
	}
}
