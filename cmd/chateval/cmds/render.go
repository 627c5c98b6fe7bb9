package cmds

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
)

const viewWidth = 78

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")).
			MarginBottom(1)

	mineSpeakerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("42")).
				Padding(0, 1)

	theirSpeakerStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("250")).
				Background(lipgloss.Color("240")).
				Padding(0, 1)

	scoreLabelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250")).
			Italic(true)

	statsStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243")).
			MarginTop(1)
)

// renderView lays the conversation out as chat bubbles: the user's own turns
// hug the right edge, the other side the left, and scored bubbles take their
// background from the red-to-green score ramp.
func renderView(v chat.View) string {
	var b strings.Builder
	for i, bubble := range v.Bubbles {
		speakerStyle := theirSpeakerStyle
		if bubble.Mine {
			speakerStyle = mineSpeakerStyle
		}

		bubbleStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color(bubble.TextColor)).
			Background(lipgloss.Color(bubble.Background)).
			Padding(0, 1).
			MaxWidth(viewWidth * 2 / 3)

		line := speakerStyle.Render(bubble.Speaker) + " " + bubbleStyle.Render(bubble.Message)
		if bubble.Scored {
			line += " " + scoreLabelStyle.Render("["+bubble.ScoreLabel+"]")
		}
		if bubble.Mine {
			line = lipgloss.PlaceHorizontal(viewWidth, lipgloss.Right, line)
		}
		b.WriteString(line)
		if i < len(v.Bubbles)-1 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(statsStyle.Render(fmt.Sprintf("Turns: %d   Avg score: %s", v.TurnCount, v.AvgLabel)))
	b.WriteString("\n")
	return b.String()
}

func renderTitle(title string) string {
	if title == "" {
		title = chat.UntitledGroup
	}
	return titleStyle.Render(title) + "\n"
}
