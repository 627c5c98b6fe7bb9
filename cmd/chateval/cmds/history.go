package cmds

import (
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
)

var (
	groupHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252"))

	groupCountStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	entryStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			PaddingLeft(2)

	selectedEntryStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("231")).
				PaddingLeft(2)
)

// NewHistoryCommand lists saved sessions, grouped by title and newest first.
func NewHistoryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List saved sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctrl, err := newController(cmd)
			if err != nil {
				return err
			}
			groups, err := ctrl.History(cmd.Context())
			if err != nil {
				return err
			}
			if len(groups) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No saved sessions yet.")
				return nil
			}

			openID, _ := cmd.Flags().GetInt64("open")
			now := time.Now()
			for _, g := range groups {
				header := groupHeaderStyle.Render(g.Title) + " " +
					groupCountStyle.Render(fmt.Sprintf("(%d)", len(g.Entries)))
				fmt.Fprintln(cmd.OutOrStdout(), header)
				for _, e := range g.Entries {
					line := fmt.Sprintf("#%d  %s  %d msgs", e.ID, chat.RelativeTime(e.Date, now), e.MessageCount)
					style := entryStyle
					if openID != 0 && e.ID == openID {
						style = selectedEntryStyle
						line += "  *"
					}
					fmt.Fprintln(cmd.OutOrStdout(), style.Render(line))
				}
			}
			return nil
		},
	}
	addServerFlag(cmd)
	cmd.Flags().Int64("open", 0, "Session id to highlight as currently open")
	return cmd
}
