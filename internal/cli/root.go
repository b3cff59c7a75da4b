// Package cli is the statuslink command line: encoding and decoding status
// links, team and weekly reports, the local history store, and the long
// running server and Slack bot.
package cli

import (
	"errors"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"statuslink/internal/config"
)

var errNoInput = errors.New("no input: pass a file argument or pipe text on stdin")

type rootOptions struct {
	ConfigPath string
}

// New builds the command tree.
func New() *cobra.Command {
	ro := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "statuslink",
		Short: "Share daily status updates as self-contained links.",
		Long: `statuslink encodes a person's daily status into a URL fragment, splits
oversized updates into numbered parts, stitches team updates back together and
builds weekly reports from the history of saved links.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	cmd.PersistentFlags().StringVar(&ro.ConfigPath, "config", "", "Path to config.yaml (defaults to $CONFIG_PATH or ./config.yaml).")

	AddCommands(cmd, ro)
	return cmd
}

func AddCommands(topLevel *cobra.Command, ro *rootOptions) {
	addEncode(topLevel, ro)
	addDecode(topLevel, ro)
	addSplit(topLevel, ro)
	addExtract(topLevel, ro)
	addMerge(topLevel, ro)
	addEditMerge(topLevel, ro)
	addWeekly(topLevel, ro)
	addSave(topLevel, ro)
	addExportWeek(topLevel, ro)
	addHistory(topLevel, ro)
	addTags(topLevel, ro)
	addCategories(topLevel, ro)
	addServe(topLevel, ro)
	addBot(topLevel, ro)
}

// Execute runs the command line.
func Execute() error {
	return New().Execute()
}

func (ro *rootOptions) load() config.Config {
	if ro.ConfigPath != "" {
		os.Setenv("CONFIG_PATH", ro.ConfigPath)
	}
	return config.LoadConfig()
}

// readInput returns the contents of the file named by args[0] ("-" is
// stdin), or stdin when no argument is given.
func readInput(cmd *cobra.Command, args []string) (string, error) {
	var (
		data []byte
		err  error
	)
	if len(args) > 0 && args[0] != "-" {
		data, err = os.ReadFile(args[0])
	} else {
		data, err = io.ReadAll(cmd.InOrStdin())
	}
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(string(data)) == "" {
		return "", errNoInput
	}
	return string(data), nil
}
