package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"offline-chat/internal/authtoken"
	"offline-chat/internal/backup"
	"offline-chat/internal/message"
	"offline-chat/internal/session"
)

type ctxUserKey struct{}

type tokenRequest struct {
	UserID string `json:"user_id"`
}

type tokenResponse struct {
	Token  string `json:"token"`
	UserID string `json:"user_id"`
}

type sendRequest struct {
	Content string `json:"content"`
}

type mediaRequest struct {
	Kind     message.Kind `json:"kind"`
	MediaURL string       `json:"media_url"`
	Caption  string       `json:"caption"`
	FileName string       `json:"file_name"`
	Duration float64      `json:"duration"`
}

type scheduleRequest struct {
	Content   string    `json:"content"`
	DeliverAt time.Time `json:"deliver_at"`
}

type editRequest struct {
	Content string `json:"content"`
}

type reactRequest struct {
	Reaction string `json:"reaction"`
}

type forwardRequest struct {
	To string `json:"to"`
}

type restoreRequest struct {
	Path string `json:"path"`
}

type queuePayload struct {
	Pending []message.Message `json:"pending"`
	Failed  []message.Message `json:"failed"`
}

type healthPayload struct {
	Status         string `json:"status"`
	ArchiveEnabled bool   `json:"archive_enabled"`
	Message        string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("response write error: %v", err)
	}
}

func (s *Server) tokenHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req tokenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			http.Error(w, "user_id required", http.StatusBadRequest)
			return
		}
		token, err := authtoken.Issue(req.UserID)
		if err != nil {
			http.Error(w, "token error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, tokenResponse{Token: token, UserID: req.UserID})
	}
}

func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.HealthChecks.Add(1)
		payload := healthPayload{Status: "ok", ArchiveEnabled: s.archive.Enabled(), Message: "ok"}
		if s.archive.Enabled() {
			if err := s.archive.Ping(r.Context()); err != nil {
				payload.Status = "error"
				payload.Message = err.Error()
				writeJSON(w, http.StatusServiceUnavailable, payload)
				return
			}
		}
		writeJSON(w, http.StatusOK, payload)
	}
}

func (s *Server) metricsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"http":     s.metrics.Snapshot(),
			"delivery": s.queue.MetricsSnapshot(),
		})
	}
}

func (s *Server) timelineHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, s.controller.Timeline())
	}
}

func (s *Server) loadMoreHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := s.controller.LoadMore()
		if err != nil {
			http.Error(w, "load failed", http.StatusInternalServerError)
			return
		}
		if page == nil {
			page = []message.Message{}
		}
		writeJSON(w, http.StatusOK, page)
	}
}

func (s *Server) sendHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Sends.Add(1)
		var req sendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
			http.Error(w, "content required", http.StatusBadRequest)
			return
		}
		msg, err := s.controller.Send(r.Context(), req.Content)
		if err != nil {
			http.Error(w, "send failed", http.StatusInternalServerError)
			return
		}
		s.archiveAsync(msg)
		writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) sendMediaHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Sends.Add(1)
		var req mediaRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.MediaURL == "" {
			http.Error(w, "media_url required", http.StatusBadRequest)
			return
		}
		var body message.Body
		switch req.Kind {
		case message.KindImage:
			body = message.ImageBody{MediaURL: req.MediaURL, Caption: req.Caption}
		case message.KindFile:
			body = message.FileBody{MediaURL: req.MediaURL, FileName: req.FileName}
		case message.KindVoice:
			body = message.VoiceBody{MediaURL: req.MediaURL, Duration: req.Duration}
		default:
			http.Error(w, "unsupported media kind", http.StatusBadRequest)
			return
		}
		msg, err := s.controller.SendMedia(r.Context(), body)
		if err != nil {
			http.Error(w, "send failed", http.StatusInternalServerError)
			return
		}
		if s.media != nil {
			if err := s.media.Add(req.MediaURL); err != nil {
				log.Printf("cataloguing media %s: %v", req.MediaURL, err)
			}
		}
		s.archiveAsync(msg)
		writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) scheduleHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req scheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
			http.Error(w, "content required", http.StatusBadRequest)
			return
		}
		if !req.DeliverAt.After(time.Now()) {
			http.Error(w, "deliver_at must be in the future", http.StatusBadRequest)
			return
		}
		msg, err := s.controller.Schedule(req.Content, req.DeliverAt.UTC())
		if err != nil {
			http.Error(w, "schedule failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) editHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req editRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Content == "" {
			http.Error(w, "content required", http.StatusBadRequest)
			return
		}
		id := chi.URLParam(r, "id")
		if err := s.controller.Edit(id, req.Content); err != nil {
			if errors.Is(err, session.ErrMessageNotFound) {
				http.Error(w, "message not found", http.StatusNotFound)
				return
			}
			http.Error(w, "edit failed", http.StatusInternalServerError)
			return
		}
		msg, err := s.controller.Get(id)
		if err != nil {
			http.Error(w, "message not found", http.StatusNotFound)
			return
		}
		s.archiveAsync(msg)
		writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) reactHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user := r.Context().Value(ctxUserKey{}).(string)
		var req reactRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Reaction == "" {
			http.Error(w, "reaction required", http.StatusBadRequest)
			return
		}
		id := chi.URLParam(r, "id")
		if err := s.controller.React(id, user, req.Reaction); err != nil {
			if errors.Is(err, session.ErrMessageNotFound) {
				http.Error(w, "message not found", http.StatusNotFound)
				return
			}
			http.Error(w, "reaction failed", http.StatusInternalServerError)
			return
		}
		msg, _ := s.controller.Get(id)
		writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) forwardHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req forwardRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.To == "" {
			http.Error(w, "to required", http.StatusBadRequest)
			return
		}
		msg, err := s.controller.Forward(r.Context(), chi.URLParam(r, "id"), req.To)
		if err != nil {
			if errors.Is(err, session.ErrMessageNotFound) {
				http.Error(w, "message not found", http.StatusNotFound)
				return
			}
			http.Error(w, "forward failed", http.StatusInternalServerError)
			return
		}
		s.archiveAsync(msg)
		writeJSON(w, http.StatusOK, msg)
	}
}

func (s *Server) queueHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		pending, err := s.queue.Pending()
		if err != nil {
			http.Error(w, "queue read failed", http.StatusInternalServerError)
			return
		}
		failed, err := s.queue.Failed()
		if err != nil {
			http.Error(w, "queue read failed", http.StatusInternalServerError)
			return
		}
		if pending == nil {
			pending = []message.Message{}
		}
		if failed == nil {
			failed = []message.Message{}
		}
		writeJSON(w, http.StatusOK, queuePayload{Pending: pending, Failed: failed})
	}
}

func (s *Server) syncHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.queue.SyncPending(r.Context()); err != nil {
			http.Error(w, "sync failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) redriveHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.queue.RedriveFailed(r.Context()); err != nil {
			http.Error(w, "redrive failed", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) createBackupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Backups.Add(1)
		msgs, err := s.store.AllMessages()
		if err != nil {
			http.Error(w, "reading history failed", http.StatusInternalServerError)
			return
		}
		var refs []string
		if s.media != nil {
			refs, err = s.media.Refs()
			if err != nil {
				http.Error(w, "reading media catalog failed", http.StatusInternalServerError)
				return
			}
		}
		meta, err := s.engine.Create(r.Context(), msgs, refs)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, meta)
	}
}

func (s *Server) restoreBackupHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.metrics.Restores.Add(1)
		var req restoreRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
			http.Error(w, "path required", http.StatusBadRequest)
			return
		}
		msgs, mediaFiles, err := s.engine.Restore(r.Context(), req.Path, s.media)
		if err != nil {
			switch {
			case errors.Is(err, backup.ErrBackupNotFound):
				http.Error(w, err.Error(), http.StatusNotFound)
			case errors.Is(err, backup.ErrInvalidBackup):
				http.Error(w, err.Error(), http.StatusUnprocessableEntity)
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		for _, msg := range msgs {
			if err := s.store.PutMessage(msg); err != nil {
				http.Error(w, "restoring timeline failed", http.StatusInternalServerError)
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"messages":    len(msgs),
			"media_files": mediaFiles,
		})
	}
}

func (s *Server) historyHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.archive.Enabled() {
			http.Error(w, "archive unavailable: set DATABASE_URL to enable", http.StatusServiceUnavailable)
			return
		}
		user := r.Context().Value(ctxUserKey{}).(string)
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		records, err := s.archive.History(r.Context(), user, limit)
		if err != nil {
			http.Error(w, "query failed", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// archiveAsync mirrors a message into the long-term archive without
// blocking the request.
func (s *Server) archiveAsync(msg message.Message) {
	if !s.archive.Enabled() {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.archive.Store(ctx, msg); err != nil {
			log.Printf("archive store %s: %v", msg.ID, err)
		}
	}()
}
