package httpapi

import (
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-chi/chi/v5"

	"bouwsite/internal/store"
)

func (s *Server) handleListMedia(w http.ResponseWriter, r *http.Request) {
	items, err := s.stores.Media.All(r.Context())
	if err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, items)
}

type externalMediaRequest struct {
	Name string          `json:"name"`
	URL  string          `json:"url"`
	Type store.MediaType `json:"type"`
}

// handleUploadMedia accepts a multipart "file" upload, stored inline as a
// data URL, or a JSON body pointing at an external URL.
func (s *Server) handleUploadMedia(w http.ResponseWriter, r *http.Request) {
	var (
		item store.MediaItem
		err  error
	)
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		item, err = s.readUpload(w, r)
	} else {
		item, err = s.readExternal(w, r)
	}
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	item.ID = store.NewID()
	item.UploadedAt = s.now().UTC()
	if err := s.stores.Media.Save(r.Context(), item); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.audit(r, "media.add", item.ID, map[string]any{"name": item.Name, "size": item.Size})
	s.respondJSON(w, http.StatusCreated, item)
}

func (s *Server) readUpload(w http.ResponseWriter, r *http.Request) (store.MediaItem, error) {
	limit := int64(s.cfg.MediaMaxBytes)
	if limit <= 0 {
		limit = 4 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+1<<20)

	file, header, err := r.FormFile("file")
	if err != nil {
		return store.MediaItem{}, fmt.Errorf("file field missing: %w", err)
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return store.MediaItem{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(data)) > limit {
		return store.MediaItem{}, &http.MaxBytesError{Limit: limit}
	}
	if len(data) == 0 {
		return store.MediaItem{}, errors.New("file is empty")
	}

	mt := mimetype.Detect(data)
	return store.MediaItem{
		Name: path.Base(header.Filename),
		URL:  "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data),
		Size: int64(len(data)),
		Type: mediaTypeOf(mt),
	}, nil
}

func (s *Server) readExternal(w http.ResponseWriter, r *http.Request) (store.MediaItem, error) {
	var req externalMediaRequest
	if err := decodeJSON(w, r, &req); err != nil {
		return store.MediaItem{}, errors.New("invalid request body")
	}
	u, err := url.Parse(strings.TrimSpace(req.URL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return store.MediaItem{}, errors.New("url must be an absolute http(s) url")
	}
	if req.Type == "" {
		req.Type = store.MediaDocument
		if strings.HasPrefix(mimeByExt(path.Ext(u.Path)), "image/") {
			req.Type = store.MediaImage
		}
	}
	if req.Type != store.MediaImage && req.Type != store.MediaDocument {
		return store.MediaItem{}, fmt.Errorf("invalid media type %q", req.Type)
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = path.Base(u.Path)
	}
	return store.MediaItem{Name: name, URL: u.String(), Type: req.Type}, nil
}

func mediaTypeOf(mt *mimetype.MIME) store.MediaType {
	for m := mt; m != nil; m = m.Parent() {
		if strings.HasPrefix(m.String(), "image/") {
			return store.MediaImage
		}
	}
	return store.MediaDocument
}

func mimeByExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".svg":
		return "image/svg+xml"
	case ".pdf":
		return "application/pdf"
	}
	return ""
}

func (s *Server) handleDeleteMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.stores.Media.Delete(r.Context(), id); err != nil {
		s.respondStoreError(w, err)
		return
	}
	s.audit(r, "media.delete", id, nil)
	w.WriteHeader(http.StatusNoContent)
}
