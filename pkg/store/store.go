package store

import (
	"context"
	"database/sql"
	_ "embed"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned for lookups and deletes of unknown conversations.
var ErrNotFound = errors.New("conversation not found")

// naiveTimeLayout matches the timestamps the original deployment wrote:
// UTC without a zone suffix. Clients append "Z" before parsing, so changing
// this would silently shift every stored date for them.
const naiveTimeLayout = "2006-01-02T15:04:05.999999"

// Store is the SQLite persistence layer for sessions and feedback.
type Store struct {
	db *sql.DB
}

// New opens (and if needed creates) the database at path.
func New(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite")
	}
	s := &Store{db: db}
	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "init schema")
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func now() string { return time.Now().UTC().Format(naiveTimeLayout) }

// SaveConversation persists a full turn list for a user. With existingID set
// and pointing at one of the user's conversations, that conversation is
// overwritten (title and messages replaced, timestamp bumped); otherwise a
// new one is created. Returns the conversation id and the title in effect.
//
// An empty title defaults to the first message truncated to 30 characters.
func (s *Store) SaveConversation(ctx context.Context, userID, title string, turns []chat.Turn, existingID *int64) (int64, string, error) {
	if title == "" && len(turns) > 0 {
		title = defaultTitle(turns[0].Message)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, "", errors.Wrap(err, "begin save")
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO users(id, created_at) VALUES(?,?)", userID, now()); err != nil {
		return 0, "", errors.Wrap(err, "ensure user")
	}

	var convID int64
	overwrite := false
	if existingID != nil {
		var owner string
		err := tx.QueryRowContext(ctx, "SELECT user_id FROM conversations WHERE id=?", *existingID).Scan(&owner)
		switch {
		case err == sql.ErrNoRows:
			// stale id from a deleted-elsewhere session; fall through to create
		case err != nil:
			return 0, "", errors.Wrap(err, "look up conversation")
		case owner == userID:
			overwrite = true
			convID = *existingID
		}
	}

	if overwrite {
		if _, err := tx.ExecContext(ctx, "UPDATE conversations SET title=?, created_at=?, is_deleted=0 WHERE id=?", title, now(), convID); err != nil {
			return 0, "", errors.Wrap(err, "update conversation")
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM messages WHERE conversation_id=?", convID); err != nil {
			return 0, "", errors.Wrap(err, "clear messages")
		}
	} else {
		res, err := tx.ExecContext(ctx, "INSERT INTO conversations(user_id, created_at, title) VALUES(?,?,?)", userID, now(), title)
		if err != nil {
			return 0, "", errors.Wrap(err, "insert conversation")
		}
		convID, err = res.LastInsertId()
		if err != nil {
			return 0, "", errors.Wrap(err, "conversation id")
		}
	}

	for i, t := range turns {
		var score any
		if t.RelevanceScore != nil {
			score = *t.RelevanceScore
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages(conversation_id, speaker, content, relevance_score, sequence_num) VALUES(?,?,?,?,?)",
			convID, t.Speaker, t.Message, score, i); err != nil {
			return 0, "", errors.Wrap(err, "insert message")
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, "", errors.Wrap(err, "commit save")
	}
	return convID, title, nil
}

// History lists a user's non-deleted conversations, newest first, with
// message counts.
func (s *Store) History(ctx context.Context, userID string) ([]chat.HistoryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.id, COALESCE(c.title, ''), c.created_at, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id
		WHERE c.user_id = ? AND c.is_deleted = 0
		GROUP BY c.id
		ORDER BY c.created_at DESC`, userID)
	if err != nil {
		return nil, errors.Wrap(err, "query history")
	}
	defer func() { _ = rows.Close() }()

	entries := []chat.HistoryEntry{}
	for rows.Next() {
		var e chat.HistoryEntry
		if err := rows.Scan(&e.ID, &e.Title, &e.Date, &e.MessageCount); err != nil {
			return nil, errors.Wrap(err, "scan history row")
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// PersistedConversation is a stored session with its messages.
type PersistedConversation struct {
	ID    int64
	Title string
	Date  string
	Turns []chat.Turn
}

// GetConversation loads a session by id, messages in sequence order.
// Soft-deleted conversations stay loadable; they just vanish from History.
func (s *Store) GetConversation(ctx context.Context, id int64) (PersistedConversation, error) {
	var conv PersistedConversation
	err := s.db.QueryRowContext(ctx,
		"SELECT id, COALESCE(title, ''), created_at FROM conversations WHERE id=?", id).
		Scan(&conv.ID, &conv.Title, &conv.Date)
	if err == sql.ErrNoRows {
		return PersistedConversation{}, ErrNotFound
	}
	if err != nil {
		return PersistedConversation{}, errors.Wrap(err, "query conversation")
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT speaker, content, relevance_score FROM messages WHERE conversation_id=? ORDER BY sequence_num", id)
	if err != nil {
		return PersistedConversation{}, errors.Wrap(err, "query messages")
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var t chat.Turn
		var score sql.NullFloat64
		if err := rows.Scan(&t.Speaker, &t.Message, &score); err != nil {
			return PersistedConversation{}, errors.Wrap(err, "scan message")
		}
		if score.Valid {
			v := score.Float64
			t.RelevanceScore = &v
		}
		conv.Turns = append(conv.Turns, t)
	}
	return conv, rows.Err()
}

// SoftDelete hides a conversation from History without dropping its rows.
func (s *Store) SoftDelete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "UPDATE conversations SET is_deleted=1 WHERE id=?", id)
	if err != nil {
		return errors.Wrap(err, "soft delete")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "soft delete result")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveFeedback records a rating and optional comment for a conversation.
func (s *Store) SaveFeedback(ctx context.Context, conversationID int64, rating int, comment string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO feedbacks(conversation_id, rating, comment, created_at) VALUES(?,?,?,?)",
		conversationID, rating, comment, now())
	return errors.Wrap(err, "insert feedback")
}

func defaultTitle(first string) string {
	r := []rune(first)
	if len(r) > 30 {
		return string(r[:30]) + ".."
	}
	return first
}
