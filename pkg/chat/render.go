package chat

import (
	"fmt"

	"github.com/lucasb-eyer/go-colorful"
)

// Score bounds used by the color ramp. Values outside the range are clamped
// at render time only; the store never rejects them.
const (
	ScoreMin = -5.0
	ScoreMax = 5.0
)

// Neutral palette for turns that have not been scored yet (zinc tones).
const (
	unscoredBackground = "#27272a"
	unscoredText       = "#e4e4e7"
	unscoredBorder     = "#3f3f46"
	scoredText         = "#ffffff"
)

// AvgPlaceholder is shown when no turn has a score yet.
const AvgPlaceholder = "--"

// Bubble is the render model for one turn.
type Bubble struct {
	TurnID     string
	Speaker    string
	Message    string
	Mine       bool
	Background string
	Border     string
	TextColor  string
	Scored     bool
	Score      float64
	ScoreLabel string
}

// View is the full render model: one bubble per turn plus the summary stats.
// It is recomputed wholesale on every mutation; turn counts are chat-sized,
// so there is no incremental diffing.
type View struct {
	Bubbles     []Bubble
	TurnCount   int
	ScoredCount int
	Average     float64
	AvgLabel    string
}

// Hue maps a relevance score onto the red-to-green ramp: -5 -> 0 (red),
// 0 -> 60 (yellow), +5 -> 120 (green). Out-of-range scores clamp.
func Hue(score float64) float64 {
	if score < ScoreMin {
		score = ScoreMin
	}
	if score > ScoreMax {
		score = ScoreMax
	}
	return (score - ScoreMin) / (ScoreMax - ScoreMin) * 120
}

// scoreColor renders the ramp at fixed saturation/lightness, hsl(h, 70%, 40%).
func scoreColor(score float64) string {
	return colorful.Hsl(Hue(score), 0.7, 0.4).Hex()
}

// BuildView projects the turn list into its render model. Pure function of
// the input; the average counts scored turns only.
func BuildView(turns []Turn) View {
	v := View{
		Bubbles:   make([]Bubble, 0, len(turns)),
		TurnCount: len(turns),
	}
	total := 0.0
	for _, t := range turns {
		b := Bubble{
			TurnID:     t.ID,
			Speaker:    t.Speaker,
			Message:    t.Message,
			Mine:       IsMine(t.Speaker),
			Background: unscoredBackground,
			Border:     unscoredBorder,
			TextColor:  unscoredText,
		}
		if t.Scored() {
			score := *t.RelevanceScore
			total += score
			v.ScoredCount++
			b.Scored = true
			b.Score = score
			b.ScoreLabel = fmt.Sprintf("%.1f", score)
			b.Background = scoreColor(score)
			b.Border = ""
			b.TextColor = scoredText
		}
		v.Bubbles = append(v.Bubbles, b)
	}
	if v.ScoredCount > 0 {
		v.Average = total / float64(v.ScoredCount)
		v.AvgLabel = fmt.Sprintf("%.1f", v.Average)
	} else {
		v.AvgLabel = AvgPlaceholder
	}
	return v
}

// ChartSeries splits scores into a Me line and a Them line over turn
// positions, with nil gaps where the other side (or an unscored turn) sits.
type ChartSeries struct {
	Labels []int
	Me     []*float64
	Them   []*float64
}

// BuildChart produces the two-line score chart data for a scored session.
func BuildChart(turns []Turn) ChartSeries {
	c := ChartSeries{
		Labels: make([]int, len(turns)),
		Me:     make([]*float64, len(turns)),
		Them:   make([]*float64, len(turns)),
	}
	for i, t := range turns {
		c.Labels[i] = i + 1
		if IsMine(t.Speaker) {
			c.Me[i] = t.RelevanceScore
		} else {
			c.Them[i] = t.RelevanceScore
		}
	}
	return c
}
