package app

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"github.com/slack-go/slack"

	"statuslink/internal/config"
	"statuslink/internal/digest"
	"statuslink/internal/httpx"
	slackbot "statuslink/internal/integrations/slack"
	"statuslink/internal/nudge"
	"statuslink/internal/server"
	"statuslink/internal/storage/sqlite"
	"statuslink/internal/tags"
)

// OpenStore opens the history database and makes sure the report output
// directory exists.
func OpenStore(cfg config.Config) (*sql.DB, error) {
	db, err := sqlite.InitDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	log.Printf("Database initialized at %s", cfg.DBPath)

	if err := os.MkdirAll(cfg.ReportOutputDir, 0755); err != nil {
		db.Close()
		return nil, fmt.Errorf("create report dir: %w", err)
	}
	return db, nil
}

func logConfig(cfg config.Config) {
	appliedHTTPTimeout := httpx.ConfigureExternalHTTPClient(cfg.ExternalHTTPTimeoutSeconds)
	log.Printf(
		"Config loaded. Team=%s BaseURL=%s Budget=%d ContentBudget=%d Chunker=%s Timezone=%s DigestSchedule=%q DigestApps=%d TeamMembers=%d LLM=%t ExternalHTTPTimeout=%s",
		cfg.TeamName,
		cfg.BaseURL,
		cfg.FragmentBudget,
		cfg.ContentBudget,
		cfg.Chunker,
		cfg.Timezone,
		cfg.DigestSchedule,
		len(cfg.DigestApps),
		len(cfg.TeamMembers),
		cfg.LLMConfigured(),
		appliedHTTPTimeout,
	)
}

// RunBot starts the nudge and digest schedulers and blocks on the Slack
// socket-mode loop.
func RunBot(cfg config.Config) error {
	if err := cfg.RequireSlack(); err != nil {
		return err
	}
	logConfig(cfg)

	db, err := OpenStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	api := slack.New(
		cfg.SlackBotToken,
		slack.OptionAppLevelToken(cfg.SlackAppToken),
		slack.OptionHTTPClient(httpx.Client()),
	)

	nudge.StartNudgeScheduler(cfg, db, api)
	digest.StartScheduler(cfg, db, api)

	log.Println("Starting status link bot...")
	if err := slackbot.StartSlackBot(cfg, db, api); err != nil {
		return fmt.Errorf("slack bot: %w", err)
	}
	return nil
}

// RunServer serves the JSON API on cfg.HTTPAddr.
func RunServer(cfg config.Config) error {
	logConfig(cfg)

	db, err := OpenStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	srv := server.New(cfg, db, tags.NewRegistry(sqlite.TagStore{DB: db}))
	log.Printf("Listening on %s", cfg.HTTPAddr)
	return srv.Run()
}
