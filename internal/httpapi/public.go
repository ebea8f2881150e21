package httpapi

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"bouwsite/internal/chatbot"
	"bouwsite/internal/leads"
	"bouwsite/internal/store"
)

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	cs, err := s.cfg.Chat.StartSession(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, cs)
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := s.cfg.Chat.Send(r.Context(), chi.URLParam(r, "id"), clientIP(r), req.Message)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, reply)
	case errors.Is(err, chatbot.ErrEmptyMessage):
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, chatbot.ErrRateLimited):
		s.respondError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, chatbot.ErrSessionClosed):
		s.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, chatbot.ErrCanceled):
		// superseded by a newer message or the client went away
		s.respondError(w, http.StatusConflict, err.Error())
	default:
		s.respondStoreError(w, err)
	}
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request) {
	cs, err := s.cfg.Chat.Close(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cs)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	var form leads.ContactForm
	if err := decodeJSON(w, r, &form); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lead, err := s.cfg.Intake.Submit(r.Context(), form)
	var verr *leads.ValidationError
	if errors.As(err, &verr) {
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": verr.Fields,
		})
		return
	}
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusCreated, map[string]string{"id": lead.ID})
}

func (s *Server) handlePublishedPage(w http.ResponseWriter, r *http.Request) {
	page, err := s.stores.Pages.BySlug(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	if page.Status != store.PagePublished {
		s.respondError(w, http.StatusNotFound, "not found")
		return
	}
	s.respondJSON(w, http.StatusOK, page)
}
