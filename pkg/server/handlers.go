package server

import (
	"encoding/json"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/EconCSPKU/ChatEval/pkg/chat"
	"github.com/EconCSPKU/ChatEval/pkg/extraction"
	"github.com/EconCSPKU/ChatEval/pkg/store"
)

// maxUploadBytes bounds one extraction request (all screenshots together).
const maxUploadBytes = 32 << 20

type scoreRequest struct {
	ChatData []chat.Turn `json:"chat_data"`
}

type saveRequest struct {
	UserID string      `json:"user_id"`
	Title  string      `json:"title"`
	// ConversationID, when set, overwrites that session instead of creating
	// a new one. Old clients omit it and always get a fresh session.
	ConversationID *int64      `json:"conversation_id"`
	ChatData       []chat.Turn `json:"chat_data"`
}

type feedbackRequest struct {
	ConversationID int64  `json:"conversation_id"`
	Rating         int    `json:"rating"`
	Comment        string `json:"comment"`
}

func (s *Server) handleExtract(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no images provided")
		return
	}

	images := make([]extraction.Image, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read upload")
			return
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			writeError(w, http.StatusBadRequest, "could not read upload")
			return
		}
		images = append(images, extraction.Image{Format: imageFormat(fh.Filename), Data: data})
	}

	turns, err := s.extractor.ExtractFromImages(r.Context(), images)
	if err != nil {
		log.Error().Err(err).Int("images", len(images)).Msg("extraction failed")
		writeError(w, http.StatusInternalServerError, "Failed to extract chat from images")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_data": turns})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var req scoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	scored, err := s.scorer.ScoreTurns(r.Context(), req.ChatData)
	if err != nil {
		log.Error().Err(err).Msg("scoring failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"chat_data": scored})
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "missing user_id")
		return
	}
	id, title, err := s.store.SaveConversation(r.Context(), req.UserID, req.Title, req.ChatData, req.ConversationID)
	if err != nil {
		log.Error().Err(err).Str("user_id", req.UserID).Msg("save failed")
		writeError(w, http.StatusInternalServerError, "failed to save conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":         true,
		"conversation_id": id,
		"title":           title,
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.History(r.Context(), r.PathValue("userID"))
	if err != nil {
		log.Error().Err(err).Msg("history query failed")
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	conv, err := s.store.GetConversation(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("conversation_id", id).Msg("conversation query failed")
		writeError(w, http.StatusInternalServerError, "failed to load conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       conv.ID,
		"title":    conv.Title,
		"date":     conv.Date,
		"messages": conv.Turns,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation id")
		return
	}
	err = s.store.SoftDelete(r.Context(), id)
	if err == store.ErrNotFound {
		writeError(w, http.StatusNotFound, "Conversation not found")
		return
	}
	if err != nil {
		log.Error().Err(err).Int64("conversation_id", id).Msg("delete failed")
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.store.SaveFeedback(r.Context(), req.ConversationID, req.Rating, req.Comment); err != nil {
		log.Error().Err(err).Int64("conversation_id", req.ConversationID).Msg("feedback save failed")
		writeError(w, http.StatusInternalServerError, "failed to save feedback")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response failed")
	}
}

// writeError mirrors the {"detail": ...} error body the original deployment
// emitted, which existing clients parse.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func imageFormat(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	switch ext {
	case "jpg":
		return "jpeg"
	case "":
		return "png"
	default:
		return ext
	}
}

// statusRecorder captures the response code for access logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags each request with an id and logs one line per exchange.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		reqID := uuid.NewString()
		next.ServeHTTP(rec, r)
		log.Debug().
			Str("request_id", reqID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
