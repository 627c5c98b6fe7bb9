// Package extraction turns chat screenshots into dialogue turns by sending
// them to a multimodal model behind an OpenAI-compatible endpoint and parsing
// the JSON it answers with.
package extraction

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"

	"github.com/openai/openai-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
)

const extractionPrompt = `Please extract all conversational turns from the provided image. For each turn, identify the speaker (group by chat bubble color) and the full text of their message, including any descriptions of stickers or emojis if they convey meaning, ignoring the avatars. Present the extracted content as a list of dictionaries, where each dictionary represents a single chat turn. Each dictionary should have the following keys:

- "speaker": A string identifying the speaker (e.g., "Green Bubble", "White Bubble", "Gray Small Bubble").
- "message": A string containing the full text of the message, with sticker descriptions in parentheses (e.g., "Hello! (waving hand sticker)").

Example output format:

[
    {"speaker": "Green Bubble", "message": "Hi there!"},
    {"speaker": "White Bubble", "message": "How are you? (smiling face emoji)"},
    {"speaker": "Green Bubble", "message": "I'm good, thanks!"}
]
`

const maxAttempts = 3

// Image is one screenshot to extract from. Format is the image subtype used
// in the data URL ("png", "jpeg", ...).
type Image struct {
	Format string
	Data   []byte
}

// Service calls the multimodal extraction model.
type Service struct {
	client *openai.Client
	model  string
}

// NewService wraps an existing OpenAI-compatible client.
func NewService(client *openai.Client, model string) *Service {
	return &Service{client: client, model: model}
}

// ExtractFromImages runs the extraction prompt over all images in one request
// and returns the extracted, unscored turns in conversation order. The model
// gets up to three attempts before the whole call fails; a malformed answer
// never yields partial data.
func (s *Service) ExtractFromImages(ctx context.Context, images []Image) ([]chat.Turn, error) {
	if len(images) == 0 {
		return nil, errors.New("no images provided")
	}

	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(extractionPrompt),
	}
	for _, img := range images {
		url := "data:image/" + img.Format + ";base64," + base64.StdEncoding.EncodeToString(img.Data)
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: url}))
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(s.model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := s.client.Chat.Completions.New(ctx, params)
		if err != nil {
			lastErr = errors.Wrap(err, "chat completion")
			log.Warn().Err(err).Int("attempt", attempt).Msg("extraction model call failed")
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = errors.New("no choices returned")
			continue
		}
		turns, err := parseChatContent(resp.Choices[0].Message.Content)
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", attempt).Msg("could not parse extraction output")
			continue
		}
		if len(turns) > 0 {
			return turns, nil
		}
		lastErr = errors.New("model returned no turns")
	}
	return nil, errors.Wrapf(lastErr, "extraction failed after %d attempts", maxAttempts)
}

// parseChatContent strips markdown fences and decodes the turn list.
func parseChatContent(content string) ([]chat.Turn, error) {
	content = stripFences(content)

	var raw []struct {
		Speaker string `json:"speaker"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, errors.Wrap(err, "decode turn list")
	}

	turns := make([]chat.Turn, 0, len(raw))
	for _, line := range raw {
		speaker := line.Speaker
		if speaker == "" {
			speaker = "Unknown"
		}
		turns = append(turns, chat.NewTurn(normalizeSpeaker(speaker), line.Message))
	}
	return turns, nil
}

// stripFences unwraps a ```json ... ``` (or bare ```) code block if present.
func stripFences(content string) string {
	if idx := strings.Index(content, "```json"); idx >= 0 {
		content = content[idx+len("```json"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	if idx := strings.Index(content, "```"); idx >= 0 {
		content = content[idx+len("```"):]
		if end := strings.Index(content, "```"); end >= 0 {
			content = content[:end]
		}
		return strings.TrimSpace(content)
	}
	return strings.TrimSpace(content)
}

// normalizeSpeaker maps the model's bubble descriptions onto the canonical
// labels: the sender's own bubbles (green, right-aligned) become "Me", the
// other side (white, left-aligned) becomes "Them". Anything else is kept
// as-is so the user can fix it in the editor.
func normalizeSpeaker(speaker string) string {
	switch {
	case strings.Contains(speaker, "Green") || strings.Contains(speaker, "Right"):
		return chat.SpeakerMe
	case strings.Contains(speaker, "White") || strings.Contains(speaker, "Left"):
		return chat.SpeakerThem
	default:
		return speaker
	}
}
