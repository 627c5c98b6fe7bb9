package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
)

// ImageFile is one uploaded screenshot.
type ImageFile struct {
	Name string
	Data []byte
}

// SaveResult is the server's answer to a save request.
type SaveResult struct {
	ConversationID int64
	Title          string
}

// Conversation is a persisted session fetched by id.
type Conversation struct {
	ID       int64       `json:"id"`
	Title    string      `json:"title"`
	Date     string      `json:"date"`
	Messages []chat.Turn `json:"messages"`
}

// Client speaks the ChatEval HTTP API. Every call is a single outstanding
// request/response exchange; there is no retrying and no request dedup.
type Client struct {
	baseURL string
	httpc   *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client (tests, custom timeouts).
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpc = h }
}

// New builds a client for the given server base URL, e.g. "http://localhost:8000".
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpc:   &http.Client{Timeout: 120 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Extract uploads screenshots and returns the extracted, unscored turns.
func (c *Client) Extract(ctx context.Context, images []ImageFile) ([]chat.Turn, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, img := range images {
		fw, err := mw.CreateFormFile("images", img.Name)
		if err != nil {
			return nil, errors.Wrap(err, "build multipart form")
		}
		if _, err := fw.Write(img.Data); err != nil {
			return nil, errors.Wrap(err, "write image to form")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, "close multipart form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/extract", &body)
	if err != nil {
		return nil, errors.Wrap(err, "build extract request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		ChatData []chat.Turn `json:"chat_data"`
	}
	if err := c.do(req, ErrExtractionFailed, &out); err != nil {
		return nil, err
	}
	return out.ChatData, nil
}

// Score sends the full turn list for scoring and returns it with scores
// filled in, same order as the input.
func (c *Client) Score(ctx context.Context, turns []chat.Turn) ([]chat.Turn, error) {
	var out struct {
		ChatData []chat.Turn `json:"chat_data"`
	}
	in := map[string]any{"chat_data": turns}
	if err := c.postJSON(ctx, "/api/score", in, ErrScoringFailed, &out); err != nil {
		return nil, err
	}
	return out.ChatData, nil
}

// Save persists the turn list under the user id. A non-nil conversationID
// asks the server to overwrite that session instead of creating a new one.
func (c *Client) Save(ctx context.Context, userID string, conversationID *int64, turns []chat.Turn) (SaveResult, error) {
	in := map[string]any{
		"user_id":   userID,
		"chat_data": turns,
	}
	if conversationID != nil {
		in["conversation_id"] = *conversationID
	}
	var out struct {
		Success        bool   `json:"success"`
		ConversationID int64  `json:"conversation_id"`
		Title          string `json:"title"`
	}
	if err := c.postJSON(ctx, "/api/save", in, ErrSaveFailed, &out); err != nil {
		return SaveResult{}, err
	}
	if !out.Success {
		return SaveResult{}, errors.Wrap(ErrSaveFailed, "server reported failure")
	}
	return SaveResult{ConversationID: out.ConversationID, Title: out.Title}, nil
}

// History fetches the session listing for a user, newest first.
func (c *Client) History(ctx context.Context, userID string) ([]chat.HistoryEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/history/"+userID, nil)
	if err != nil {
		return nil, errors.Wrap(err, "build history request")
	}
	var out []chat.HistoryEntry
	if err := c.do(req, ErrLoadFailed, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Conversation fetches a persisted session by id.
func (c *Client) Conversation(ctx context.Context, id int64) (Conversation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/conversation/%d", c.baseURL, id), nil)
	if err != nil {
		return Conversation{}, errors.Wrap(err, "build conversation request")
	}
	var out Conversation
	if err := c.do(req, ErrLoadFailed, &out); err != nil {
		return Conversation{}, err
	}
	return out, nil
}

// DeleteConversation removes a persisted session from the listing.
func (c *Client) DeleteConversation(ctx context.Context, id int64) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, fmt.Sprintf("%s/api/conversation/%d", c.baseURL, id), nil)
	if err != nil {
		return errors.Wrap(err, "build delete request")
	}
	return c.do(req, ErrDeleteFailed, nil)
}

// SubmitFeedback files a rating and optional comment for a saved session.
func (c *Client) SubmitFeedback(ctx context.Context, conversationID int64, rating int, comment string) error {
	in := map[string]any{
		"conversation_id": conversationID,
		"rating":          rating,
		"comment":         comment,
	}
	return c.postJSON(ctx, "/api/feedback", in, ErrFeedbackFailed, nil)
}

func (c *Client) postJSON(ctx context.Context, path string, in any, kind error, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return errors.Wrap(err, "encode request")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, kind, out)
}

// do runs one exchange. Transport failures wrap ErrNetwork; non-2xx responses
// wrap the operation's error kind with the server's detail message when
// present.
func (c *Client) do(req *http.Request, kind error, out any) error {
	resp, err := c.httpc.Do(req)
	if err != nil {
		return errors.Wrapf(ErrNetwork, "%s %s: %v", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := readDetail(resp.Body)
		if detail == "" {
			detail = resp.Status
		}
		return errors.Wrap(kind, detail)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errors.Wrapf(kind, "decode response: %v", err)
	}
	return nil
}

func readDetail(r io.Reader) string {
	var body struct {
		Detail string `json:"detail"`
	}
	raw, err := io.ReadAll(io.LimitReader(r, 4096))
	if err != nil {
		return ""
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Detail == "" {
		return strings.TrimSpace(string(raw))
	}
	return body.Detail
}
