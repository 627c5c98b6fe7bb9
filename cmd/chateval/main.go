package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EconCSPKU/ChatEval/cmd/chateval/cmds"
)

var rootCmd = &cobra.Command{
	Use:   "chateval",
	Short: "chateval scores the engagement of chat conversations from screenshots",
	Long: `ChatEval extracts dialogue turns from chat screenshots, scores each
turn's conversational engagement with an external model, and keeps a
per-user history of analyzed sessions.

Run the API server:
  chateval serve --db chateval.db

Analyze a conversation against a running server:
  chateval analyze screenshot1.png screenshot2.png
  chateval history
  chateval show 42`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// reinitialize the logger once --log-level has been parsed
		initLogger()
	},
}

func initLogger() {
	level, err := zerolog.ParseLevel(strings.ToLower(viper.GetString("log-level")))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}

func main() {
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (trace, debug, info, warn, error)")

	viper.SetEnvPrefix("CHATEVAL")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))

	rootCmd.AddCommand(
		cmds.NewServeCommand(),
		cmds.NewAnalyzeCommand(),
		cmds.NewHistoryCommand(),
		cmds.NewShowCommand(),
		cmds.NewDeleteCommand(),
		cmds.NewFeedbackCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
