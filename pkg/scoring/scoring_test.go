package scoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
)

func turn(speaker, message string) chat.Turn {
	return chat.Turn{Speaker: speaker, Message: message}
}

func TestMergeSameSpeaker(t *testing.T) {
	merged := mergeSameSpeaker([]chat.Turn{
		turn("Me", "hey"),
		turn("Me", "you there?"),
		turn("Them", "yes"),
		turn("Me", "cool"),
	})
	require.Len(t, merged, 3)
	assert.Equal(t, "hey. you there?", merged[0].Message)
	assert.Equal(t, "Me", merged[0].Speaker)
	assert.Equal(t, "yes", merged[1].Message)
	assert.Equal(t, "cool", merged[2].Message)

	assert.Nil(t, mergeSameSpeaker(nil))
}

func TestBuildPrompts(t *testing.T) {
	prompts := buildPrompts([]chat.Turn{
		turn("Me", "hey"),
		turn("Them", "yes"),
		turn("Me", "cool"),
	})
	require.Len(t, prompts, 2, "one prompt per group after the first")

	assert.Contains(t, prompts[0], "Dialogue context:\nMe:hey\n")
	assert.Contains(t, prompts[0], "Response:\nThem:yes\n")

	// The second prompt's context accumulates the whole dialogue so far.
	assert.Contains(t, prompts[1], "Dialogue context:\nMe:hey\nThem:yes\n")
	assert.Contains(t, prompts[1], "Response:\nMe:cool\n")

	assert.Empty(t, buildPrompts([]chat.Turn{turn("Me", "alone")}))
}

// embeddingsStub serves fixed embeddings in request order.
func embeddingsStub(t *testing.T, embeddings [][]float64) *openai.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data := make([]map[string]any, len(embeddings))
		for i, e := range embeddings {
			data[i] = map[string]any{"object": "embedding", "index": i, "embedding": e}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"model":  "test-embed",
			"data":   data,
			"usage":  map[string]any{"prompt_tokens": 0, "total_tokens": 0},
		})
	}))
	t.Cleanup(srv.Close)
	oc := openai.NewClient(option.WithAPIKey("test-key"), option.WithBaseURL(srv.URL))
	return &oc
}

func passthroughNet(t *testing.T) *Network {
	t.Helper()
	n, err := newNetwork(passthroughWeights())
	require.NoError(t, err)
	return n
}

func TestScoreTurns(t *testing.T) {
	// Four turns, three merged groups (the first two share a speaker), so two
	// prompts get embedded. The passthrough net maps [0,...] to 0 and a large
	// first coordinate to ~5.
	client := embeddingsStub(t, [][]float64{{0, 0}, {100, 0}})
	svc := NewService(client, "test-embed", passthroughNet(t))

	turns := []chat.Turn{
		turn("Me", "hey"),
		turn("Me", "you there?"),
		turn("Them", "yes"),
		turn("Me", "cool"),
	}
	scored, err := svc.ScoreTurns(context.Background(), turns)
	require.NoError(t, err)
	require.Len(t, scored, 4)

	assert.Nil(t, scored[0].RelevanceScore, "first group has no context to score against")
	assert.Nil(t, scored[1].RelevanceScore, "merged turns share the group's fate")
	require.NotNil(t, scored[2].RelevanceScore)
	assert.InDelta(t, 0.0, *scored[2].RelevanceScore, 1e-9)
	require.NotNil(t, scored[3].RelevanceScore)
	assert.InDelta(t, 5.0, *scored[3].RelevanceScore, 1e-6)

	// Input is untouched.
	for _, in := range turns {
		assert.Nil(t, in.RelevanceScore)
	}
}

func TestScoreTurnsEmpty(t *testing.T) {
	svc := NewService(nil, "m", passthroughNet(t))
	scored, err := svc.ScoreTurns(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, scored)
}

func TestScoreTurnsSingleGroupGetsZeros(t *testing.T) {
	// All one speaker: no prompts, no network call, zero scores.
	svc := NewService(nil, "m", passthroughNet(t))
	scored, err := svc.ScoreTurns(context.Background(), []chat.Turn{
		turn("Me", "a"), turn("Me", "b"),
	})
	require.NoError(t, err)
	require.Len(t, scored, 2)
	for _, s := range scored {
		require.NotNil(t, s.RelevanceScore)
		assert.Equal(t, 0.0, *s.RelevanceScore)
	}
}

func TestScoreTurnsNilNetworkGetsZeros(t *testing.T) {
	svc := NewService(nil, "m", nil)
	scored, err := svc.ScoreTurns(context.Background(), []chat.Turn{
		turn("Me", "a"), turn("Them", "b"),
	})
	require.NoError(t, err)
	for _, s := range scored {
		require.NotNil(t, s.RelevanceScore)
		assert.Equal(t, 0.0, *s.RelevanceScore)
	}
}

func TestScoreTurnsEmbeddingFailureGetsZeros(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"message": "bad input"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()
	oc := openai.NewClient(option.WithAPIKey("test-key"), option.WithBaseURL(srv.URL))
	svc := NewService(&oc, "test-embed", passthroughNet(t))

	scored, err := svc.ScoreTurns(context.Background(), []chat.Turn{
		turn("Me", "a"), turn("Them", "b"),
	})
	require.NoError(t, err, "embedding outages degrade to zeros instead of failing")
	for _, s := range scored {
		require.NotNil(t, s.RelevanceScore)
		assert.Equal(t, 0.0, *s.RelevanceScore)
	}
}
