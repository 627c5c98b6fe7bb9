// Package scoring assigns each dialogue turn an engagement score in [-5, 5].
// Consecutive turns by the same speaker are merged, each merged group after
// the first is embedded together with its dialogue context through an
// OpenAI-compatible embeddings endpoint, and a small trained network maps
// the embedding to a score. Group scores are then fanned back out to the
// original turns.
package scoring

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
)

const promptTemplate = `
Score the following response given the corresponding dialogue context on a continuous scale from 0 to 100, where a score of zero means 'disengaging' and a score of 100 means 'very engaging'. Assume the response immediately follows the dialogue context.
Dialogue context:
%s
Response:
%s
Score:
`

// Service scores turn lists. A nil network degrades to all-zero scores (with
// a warning) instead of failing the request, matching how the service
// behaves when its model file is missing.
type Service struct {
	client *openai.Client
	model  string
	net    *Network
}

// NewService wraps an embeddings client and a loaded scorer network.
func NewService(client *openai.Client, model string, net *Network) *Service {
	return &Service{client: client, model: model, net: net}
}

// ScoreTurns returns a copy of turns with relevance scores filled in, same
// order as the input. The first merged speaker group has no dialogue context
// and keeps a nil score; when embeddings or the scorer are unavailable every
// turn gets a zero score rather than an error.
func (s *Service) ScoreTurns(ctx context.Context, turns []chat.Turn) ([]chat.Turn, error) {
	if len(turns) == 0 {
		return []chat.Turn{}, nil
	}

	merged := mergeSameSpeaker(turns)
	prompts := buildPrompts(merged)
	if len(prompts) == 0 {
		// Single speaker group: nothing has context to be scored against.
		log.Warn().Int("turns", len(turns)).Msg("no scorable groups, returning zero scores")
		return zeroScores(turns), nil
	}

	if s.net == nil {
		log.Warn().Msg("scorer network not loaded, returning zero scores")
		return zeroScores(turns), nil
	}

	embeddings, err := s.embed(ctx, prompts)
	if err != nil {
		log.Error().Err(err).Msg("embedding request failed, returning zero scores")
		return zeroScores(turns), nil
	}

	// groupScores[k] scores merged group k; index 0 stays unscored.
	groupScores := make([]float64, len(merged))
	for k, emb := range embeddings {
		score, err := s.net.Forward(emb)
		if err != nil {
			return nil, errors.Wrap(err, "score embedding")
		}
		groupScores[k+1] = score
	}

	out := make([]chat.Turn, len(turns))
	copy(out, turns)
	group := 0
	for i := range out {
		if i > 0 && out[i].Speaker != out[i-1].Speaker {
			group++
		}
		if group == 0 {
			out[i].RelevanceScore = nil
			continue
		}
		v := groupScores[group]
		out[i].RelevanceScore = &v
	}
	return out, nil
}

// mergeSameSpeaker collapses consecutive turns by one speaker into a single
// turn, joining messages with ". ".
func mergeSameSpeaker(turns []chat.Turn) []chat.Turn {
	if len(turns) == 0 {
		return nil
	}
	merged := []chat.Turn{{Speaker: turns[0].Speaker, Message: turns[0].Message}}
	for _, t := range turns[1:] {
		last := &merged[len(merged)-1]
		if t.Speaker == last.Speaker {
			last.Message += ". " + t.Message
			continue
		}
		merged = append(merged, chat.Turn{Speaker: t.Speaker, Message: t.Message})
	}
	return merged
}

// buildPrompts renders one scoring prompt per merged group after the first.
// Each prompt carries the full preceding dialogue as context and the group
// itself as the response.
func buildPrompts(merged []chat.Turn) []string {
	prompts := make([]string, 0, len(merged))
	context := ""
	for i, t := range merged {
		response := t.Speaker + ":" + t.Message
		if i > 0 {
			prompts = append(prompts, fmt.Sprintf(promptTemplate, context, response))
			context += "\n"
		}
		context += response
	}
	return prompts
}

func (s *Service) embed(ctx context.Context, prompts []string) ([][]float64, error) {
	resp, err := s.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(s.model),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: prompts},
	})
	if err != nil {
		return nil, errors.Wrap(err, "embeddings request")
	}
	if len(resp.Data) != len(prompts) {
		return nil, errors.Errorf("got %d embeddings for %d prompts", len(resp.Data), len(prompts))
	}
	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

func zeroScores(turns []chat.Turn) []chat.Turn {
	out := make([]chat.Turn, len(turns))
	copy(out, turns)
	for i := range out {
		zero := 0.0
		out[i].RelevanceScore = &zero
	}
	return out
}
