package cmds

import (
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/EconCSPKU/ChatEval/pkg/extraction"
	"github.com/EconCSPKU/ChatEval/pkg/scoring"
	"github.com/EconCSPKU/ChatEval/pkg/server"
	"github.com/EconCSPKU/ChatEval/pkg/store"
)

// NewServeCommand runs the HTTP API server.
func NewServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the ChatEval API server",
		Long: `Start the HTTP server backing the ChatEval frontend and CLI.

The extraction and scoring models are reached through an OpenAI-compatible
endpoint; configure it with --base-url / --api-key or the matching
CHATEVAL_BASE_URL / CHATEVAL_API_KEY environment variables.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := store.New(viper.GetString("db"))
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			opts := []option.RequestOption{}
			if key := viper.GetString("api-key"); key != "" {
				opts = append(opts, option.WithAPIKey(key))
			}
			if base := viper.GetString("base-url"); base != "" {
				opts = append(opts, option.WithBaseURL(base))
			}
			oc := openai.NewClient(opts...)

			var net *scoring.Network
			if path := viper.GetString("scorer-weights"); path != "" {
				net, err = scoring.LoadNetwork(path)
				if err != nil {
					log.Warn().Err(err).Str("path", path).Msg("scorer weights unavailable, /api/score will return zero scores")
					net = nil
				}
			} else {
				log.Warn().Msg("no scorer weights configured, /api/score will return zero scores")
			}

			srv := server.New(
				server.Settings{Addr: viper.GetString("addr")},
				st,
				extraction.NewService(&oc, viper.GetString("extraction-model")),
				scoring.NewService(&oc, viper.GetString("embedding-model"), net),
			)
			return srv.Run(cmd.Context())
		},
	}

	cmd.Flags().String("addr", ":8000", "Listen address")
	cmd.Flags().String("db", "chateval.db", "Path to the SQLite database")
	cmd.Flags().String("api-key", "", "API key for the model endpoint")
	cmd.Flags().String("base-url", "", "Base URL of the OpenAI-compatible model endpoint")
	cmd.Flags().String("extraction-model", "doubao-seed-1-6-lite-251015", "Multimodal model used for chat extraction")
	cmd.Flags().String("embedding-model", "doubao-embedding-large-text-250515", "Embedding model used for scoring")
	cmd.Flags().String("scorer-weights", "models/scorer.json", "Path to the scorer network weights (JSON export)")

	for _, name := range []string{"addr", "db", "api-key", "base-url", "extraction-model", "embedding-model", "scorer-weights"} {
		_ = viper.BindPFlag(name, cmd.Flags().Lookup(name))
	}
	return cmd
}
