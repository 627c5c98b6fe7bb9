package cmds

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/EconCSPKU/ChatEval/pkg/client"
)

// serverFlag is shared by all client-side commands.
func addServerFlag(cmd *cobra.Command) {
	cmd.Flags().String("server", "http://localhost:8000", "Base URL of the ChatEval server")
}

func newController(cmd *cobra.Command) (*client.Controller, error) {
	serverURL, _ := cmd.Flags().GetString("server")
	idFile, err := client.UserIDFile()
	if err != nil {
		return nil, err
	}
	userID, err := client.LoadOrCreateUserID(idFile)
	if err != nil {
		return nil, err
	}
	return client.NewController(client.New(serverURL), userID), nil
}

// NewAnalyzeCommand extracts turns from screenshots, scores them, and prints
// the scored conversation. Scoring triggers an automatic save.
func NewAnalyzeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <image>...",
		Short: "Extract and score a conversation from chat screenshots",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController(cmd)
			if err != nil {
				return err
			}

			images := make([]client.ImageFile, 0, len(args))
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("read %s: %w", path, err)
				}
				images = append(images, client.ImageFile{Name: filepath.Base(path), Data: data})
			}

			fmt.Fprintln(cmd.OutOrStdout(), "Extracting chat from images...")
			if err := ctrl.Extract(cmd.Context(), images); err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), renderView(ctrl.View()))

			skipScore, _ := cmd.Flags().GetBool("no-score")
			if skipScore {
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "\nAnalyzing engagement...")
			if err := ctrl.Analyze(cmd.Context()); err != nil {
				return err
			}

			sess := ctrl.Session()
			fmt.Fprint(cmd.OutOrStdout(), renderTitle(sess.Title))
			fmt.Fprint(cmd.OutOrStdout(), renderView(ctrl.View()))
			if sess.ID != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "\nSaved as session %d\n", *sess.ID)
			}
			return nil
		},
	}
	addServerFlag(cmd)
	cmd.Flags().Bool("no-score", false, "Only extract; skip scoring and autosave")
	return cmd
}

// NewShowCommand loads a saved session and prints it.
func NewShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <session-id>",
		Short: "Show a saved session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			ctrl, err := newController(cmd)
			if err != nil {
				return err
			}
			if err := ctrl.LoadSession(cmd.Context(), id); err != nil {
				return err
			}
			sess := ctrl.Session()
			fmt.Fprint(cmd.OutOrStdout(), renderTitle(sess.Title))
			fmt.Fprint(cmd.OutOrStdout(), renderView(ctrl.View()))
			return nil
		},
	}
	addServerFlag(cmd)
	return cmd
}

// NewDeleteCommand removes a saved session from history.
func NewDeleteCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Remove a saved session from history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseSessionID(args[0])
			if err != nil {
				return err
			}
			ctrl, err := newController(cmd)
			if err != nil {
				return err
			}
			if err := ctrl.DeleteSession(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted session %d\n", id)
			return nil
		},
	}
	addServerFlag(cmd)
	return cmd
}

func parseSessionID(arg string) (int64, error) {
	arg = strings.TrimSpace(arg)
	var id int64
	if _, err := fmt.Sscanf(arg, "%d", &id); err != nil {
		return 0, fmt.Errorf("invalid session id %q", arg)
	}
	return id, nil
}
