package client

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
)

// State tracks where the open session sits in its lifecycle.
type State int

const (
	StateEmpty State = iota
	StateExtracted
	StateScored
	StateSaved
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateExtracted:
		return "extracted"
	case StateScored:
		return "scored"
	case StateSaved:
		return "saved"
	default:
		return "unknown"
	}
}

// Controller orchestrates the session lifecycle against the remote API:
// extract, analyze (score + autosave), save, load, delete. It owns the
// TurnStore and an explicit Session instead of ambient globals, so multiple
// controllers can coexist and tests can drive one in isolation.
//
// All operations serialize on an internal mutex: a second user action issued
// while one is in flight waits instead of racing. Remote failures leave the
// prior store contents untouched.
type Controller struct {
	mu      sync.Mutex
	api     *Client
	userID  string
	store   *chat.TurnStore
	session chat.Session
	state   State

	// onChange fires after every store mutation, in call order, so the
	// rendering side can re-project the whole list (mutate, then render).
	onChange func()
}

// ControllerOption configures a Controller.
type ControllerOption func(*Controller)

// WithOnChange installs the re-render hook.
func WithOnChange(fn func()) ControllerOption {
	return func(c *Controller) { c.onChange = fn }
}

// NewController builds a controller for one user against one server.
func NewController(api *Client, userID string, opts ...ControllerOption) *Controller {
	c := &Controller{
		api:    api,
		userID: userID,
		store:  chat.NewTurnStore(),
		state:  StateEmpty,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a snapshot of the open session, turns included.
func (c *Controller) Session() chat.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	s.Turns = c.store.Turns()
	return s
}

// View projects the current turn list into its render model.
func (c *Controller) View() chat.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chat.BuildView(c.store.Turns())
}

// TurnCount returns the number of turns in the open session.
func (c *Controller) TurnCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Len()
}

// Extract sends the screenshots off for turn extraction and, on success,
// replaces the open session wholesale with the unscored result. On failure
// nothing changes.
func (c *Controller) Extract(ctx context.Context, images []ImageFile) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	turns, err := c.api.Extract(ctx, images)
	if err != nil {
		log.Error().Err(err).Int("images", len(images)).Msg("extraction failed")
		return err
	}
	c.store.ReplaceAll(turns)
	c.session = chat.Session{}
	c.state = StateExtracted
	c.notify()
	log.Info().Int("turns", len(turns)).Msg("extracted chat from images")
	return nil
}

// Analyze scores the current turn list. No-op when the session is empty. On
// success the store is replaced with the scored turns and an automatic save
// runs; an autosave failure is logged and swallowed so it never blocks the
// flow. On scoring failure the previous (unscored or stale-scored) turns
// stay as they were.
func (c *Controller) Analyze(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.store.Len() == 0 {
		return nil
	}
	scored, err := c.api.Score(ctx, c.store.Turns())
	if err != nil {
		log.Error().Err(err).Msg("scoring failed")
		return err
	}
	c.store.ReplaceAll(scored)
	c.state = StateScored
	c.notify()

	if err := c.save(ctx); err != nil {
		// Soft-fail: the analysis result is on screen, the save can be redone.
		log.Warn().Err(err).Msg("autosave after scoring failed")
	}
	return nil
}

// Save persists the open session. With silent set, failures are logged but
// not returned, mirroring the autosave path.
func (c *Controller) Save(ctx context.Context, silent bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.save(ctx)
	if err != nil && silent {
		log.Warn().Err(err).Msg("silent save failed")
		return nil
	}
	return err
}

// save must be called with the mutex held. It sends the recorded session id,
// if any, so the server overwrites instead of duplicating, and records the
// id and title the server hands back.
func (c *Controller) save(ctx context.Context) error {
	if c.store.Len() == 0 {
		return nil
	}
	res, err := c.api.Save(ctx, c.userID, c.session.ID, c.store.Turns())
	if err != nil {
		return err
	}
	id := res.ConversationID
	c.session.ID = &id
	if res.Title != "" {
		c.session.Title = res.Title
	}
	c.state = StateSaved
	c.notify()
	log.Info().Int64("conversation_id", id).Msg("session saved")
	return nil
}

// LoadSession replaces the open session with a persisted one. On failure the
// prior state is untouched.
func (c *Controller) LoadSession(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	conv, err := c.api.Conversation(ctx, id)
	if err != nil {
		log.Error().Err(err).Int64("conversation_id", id).Msg("load failed")
		return err
	}
	c.store.ReplaceAll(conv.Messages)
	convID := conv.ID
	c.session = chat.Session{ID: &convID, Title: conv.Title}
	c.state = StateExtracted
	for _, t := range conv.Messages {
		if t.Scored() {
			c.state = StateScored
			break
		}
	}
	c.notify()
	return nil
}

// DeleteSession removes a persisted session. Deleting the one currently open
// resets the controller to empty.
func (c *Controller) DeleteSession(ctx context.Context, id int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.api.DeleteConversation(ctx, id); err != nil {
		log.Error().Err(err).Int64("conversation_id", id).Msg("delete failed")
		return err
	}
	if c.session.ID != nil && *c.session.ID == id {
		c.store.Clear()
		c.session = chat.Session{}
		c.state = StateEmpty
		c.notify()
	}
	return nil
}

// SubmitFeedback files feedback for the open session; it must be saved first.
func (c *Controller) SubmitFeedback(ctx context.Context, rating int, comment string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session.ID == nil {
		return ErrFeedbackFailed
	}
	return c.api.SubmitFeedback(ctx, *c.session.ID, rating, comment)
}

// History fetches and groups the saved-session listing for this user.
func (c *Controller) History(ctx context.Context) ([]chat.HistoryGroup, error) {
	entries, err := c.api.History(ctx, c.userID)
	if err != nil {
		return nil, err
	}
	return chat.GroupHistory(entries), nil
}

// Local edit operations. Each one mutates the store and triggers a re-render;
// none of them can fail beyond a silent no-op on a stale index.

func (c *Controller) InsertAt(index int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.InsertAt(index, text)
	c.notify()
}

func (c *Controller) MoveBy(index, direction int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.MoveBy(index, direction) {
		c.notify()
	}
}

func (c *Controller) DeleteAt(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.DeleteAt(index) {
		c.notify()
	}
}

func (c *Controller) SetText(index int, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.SetText(index, text)
}

func (c *Controller) ToggleSpeaker(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.store.ToggleSpeaker(index) {
		c.notify()
	}
}

func (c *Controller) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}
