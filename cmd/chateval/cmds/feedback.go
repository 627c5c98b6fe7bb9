package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/EconCSPKU/ChatEval/pkg/client"
)

// NewFeedbackCommand files a rating for a saved session.
func NewFeedbackCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "feedback <session-id>",
		Short: "Rate a saved session's analysis",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			rating, _ := cmd.Flags().GetInt("rating")
			if rating < 1 || rating > 5 {
				return errors.New("rating must be between 1 and 5")
			}
			comment, _ := cmd.Flags().GetString("comment")

			serverURL, _ := cmd.Flags().GetString("server")
			api := client.New(serverURL)
			if err := api.SubmitFeedback(cmd.Context(), id, rating, comment); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Feedback submitted. Thank you!")
			return nil
		},
	}
	addServerFlag(cmd)
	cmd.Flags().Int("rating", 0, "Rating from 1 (poor) to 5 (great)")
	cmd.Flags().String("comment", "", "Optional comment")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}
