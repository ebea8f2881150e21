package httpapi

import (
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/samber/lo"

	"bouwsite/internal/leads"
	"bouwsite/internal/store"
)

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	st, err := s.stores.Settings.Get(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var st store.Settings
	if err := decodeJSON(w, r, &st); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !st.ActiveProvider.Valid() {
		s.respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation failed",
			"fields": map[string]string{"activeProvider": fmt.Sprintf("unknown provider %q", st.ActiveProvider)},
		})
		return
	}
	if err := s.stores.Settings.Save(r.Context(), st); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.audit(r, "settings.update", "settings", map[string]any{"activeProvider": st.ActiveProvider, "botName": st.BotName})

	saved, err := s.stores.Settings.Get(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	prompt, err := s.stores.Settings.FullSystemPrompt(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"prompt": prompt})
}

type knowledgeRequest struct {
	Name    string `json:"name"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

func (s *Server) handleAddKnowledge(w http.ResponseWriter, r *http.Request) {
	var req knowledgeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Name) == "" || strings.TrimSpace(req.Content) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "name and content are required")
		return
	}
	if req.Type == "" {
		req.Type = "text/plain"
	}

	doc := store.KnowledgeDocument{
		ID:         store.NewID(),
		Name:       strings.TrimSpace(req.Name),
		Content:    req.Content,
		Type:       req.Type,
		UploadedAt: s.now().UTC(),
	}
	_, err := s.stores.Settings.Update(r.Context(), func(st *store.Settings) error {
		st.KnowledgeBase = append(st.KnowledgeBase, doc)
		return nil
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.audit(r, "knowledge.add", doc.ID, map[string]any{"name": doc.Name})
	s.respondJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleDeleteKnowledge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	_, err := s.stores.Settings.Update(r.Context(), func(st *store.Settings) error {
		kept := lo.Reject(st.KnowledgeBase, func(d store.KnowledgeDocument, _ int) bool { return d.ID == id })
		if len(kept) == len(st.KnowledgeBase) {
			return store.ErrNotFound
		}
		st.KnowledgeBase = kept
		return nil
	})
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.audit(r, "knowledge.delete", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleListSessions returns sessions with the most recent activity first.
func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.stores.Sessions.All(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	slices.SortStableFunc(sessions, func(a, b store.ChatSession) int {
		return b.LastMessageTime.Compare(a.LastMessageTime)
	})
	s.respondJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	cs, err := s.stores.Sessions.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, cs)
}

func (s *Server) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	if err := s.stores.Sessions.Clear(r.Context()); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.audit(r, "sessions.clear", "chat_sessions", nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := s.stores.Pages.All(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, pages)
}

func (s *Server) handlePutPage(w http.ResponseWriter, r *http.Request) {
	var page store.Page
	if err := decodeJSON(w, r, &page); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	page.Slug = strings.Trim(strings.TrimSpace(page.Slug), "/")
	if page.Slug == "" || strings.TrimSpace(page.Title) == "" {
		s.respondError(w, http.StatusUnprocessableEntity, "slug and title are required")
		return
	}
	if page.Status == "" {
		page.Status = store.PageDraft
	}
	if page.Status != store.PageDraft && page.Status != store.PagePublished {
		s.respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid page status %q", page.Status))
		return
	}
	if page.ID == "" {
		page.ID = store.NewID()
	}

	if other, err := s.stores.Pages.BySlug(r.Context(), page.Slug); err == nil && other.ID != page.ID {
		s.respondError(w, http.StatusConflict, fmt.Sprintf("slug %q is already used", page.Slug))
		return
	}
	page.UpdatedAt = s.now().UTC()
	if err := s.stores.Pages.Save(r.Context(), page); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.audit(r, "page.save", page.ID, map[string]any{"slug": page.Slug, "status": page.Status})
	s.respondJSON(w, http.StatusOK, page)
}

func (s *Server) handleDeletePage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.stores.Pages.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.audit(r, "page.delete", id, nil)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) filteredLeads(r *http.Request) ([]store.Lead, error) {
	all, err := s.stores.Leads.All(r.Context())
	if err != nil {
		return nil, err
	}
	q := r.URL.Query()
	out := leads.Filter(all, leads.Query{
		Search: q.Get("q"),
		Status: store.LeadStatus(q.Get("status")),
	})
	slices.SortStableFunc(out, func(a, b store.Lead) int {
		return b.Date.Compare(a.Date)
	})
	return out, nil
}

func (s *Server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	list, err := s.filteredLeads(r)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	s.respondJSON(w, http.StatusOK, leads.Paginate(list, page))
}

func (s *Server) handleExportLeads(w http.ResponseWriter, r *http.Request) {
	list, err := s.filteredLeads(r)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	filename := fmt.Sprintf("leads-%s.csv", s.now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(leads.CSV(list)))
}

type leadStatusRequest struct {
	Status store.LeadStatus `json:"status"`
}

func (s *Server) handleLeadStatus(w http.ResponseWriter, r *http.Request) {
	var req leadStatusRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Status.Valid() {
		s.respondError(w, http.StatusUnprocessableEntity, fmt.Sprintf("invalid lead status %q", req.Status))
		return
	}
	id := chi.URLParam(r, "id")
	lead, err := s.stores.Leads.SetStatus(r.Context(), id, req.Status)
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.audit(r, "lead.status", id, map[string]any{"status": req.Status})
	s.respondJSON(w, http.StatusOK, lead)
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Audit == nil {
		s.respondJSON(w, http.StatusOK, []any{})
		return
	}
	limit, _ := strconv.ParseUint(r.URL.Query().Get("limit"), 10, 64)
	if limit > 500 {
		limit = 500
	}
	entries, err := s.cfg.Audit.ListActions(r.Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("list audit entries failed")
		s.respondError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.respondJSON(w, http.StatusOK, entries)
}
