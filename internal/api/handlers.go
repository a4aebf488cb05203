package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/auth"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/pipeline"
	"github.com/anshika-patel383/AI-Powered-Multi-Camera-Face-Tracker/internal/store"
)

// maxUploadSize bounds identity enrollment photos
const maxUploadSize = 10 << 20

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	healthy := true
	if _, err := s.client.Health(r.Context()); err != nil {
		healthy = false
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]bool{"ok": healthy})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	token, expiresAt, err := s.authenticator.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrAuthDisabled) {
			writeError(w, http.StatusNotImplemented, "authentication is disabled")
			return
		}
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":      token,
		"expires_at": expiresAt,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, err := s.client.Health(r.Context())
	backend := map[string]interface{}{"healthy": err == nil}
	if info != nil {
		backend["status"] = info.Status
		backend["device"] = info.Device
		backend["model_loaded"] = info.ModelLoaded
		backend["embedding_dim"] = info.EmbeddingDim
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"cameras":           s.manager.CameraStatuses(),
		"stats":             s.manager.Stats(),
		"alerts_suppressed": s.manager.Suppressed(),
		"backend":           backend,
		"ws_clients":        s.hub.ClientCount(),
	})
}

func (s *Server) handleCameras(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.CameraStatuses())
}

func (s *Server) handleEnableCamera(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.manager.EnableCamera(s.runCtx, id); err != nil {
		var cfgErr *pipeline.ConfigError
		if errors.As(err, &cfgErr) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"camera_id": id, "status": "enabled"})
}

func (s *Server) handleDisableCamera(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.manager.DisableCamera(id)
	writeJSON(w, http.StatusOK, map[string]string{"camera_id": id, "status": "disabled"})
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	q := store.AlertQuery{
		CameraID:   r.URL.Query().Get("camera_id"),
		IdentityID: r.URL.Query().Get("identity_id"),
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		q.Since = t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		q.Until = t
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		q.Limit = n
	}

	alerts, err := s.store.ListAlerts(q)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if alerts == nil {
		alerts = []*store.AlertRecord{}
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (s *Server) handleListIdentities(w http.ResponseWriter, r *http.Request) {
	type identityView struct {
		ID         string `json:"id"`
		Name       string `json:"name"`
		Embeddings int    `json:"embeddings"`
	}
	identities := s.matcher.Identities()
	out := make([]identityView, 0, len(identities))
	for _, id := range identities {
		out = append(out, identityView{ID: id.ID, Name: id.Name, Embeddings: len(id.Embeddings)})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleAddIdentity enrolls an identity from an uploaded photo. The photo
// runs through the same inference backend as live frames; the strongest
// detected face supplies the reference embedding.
func (s *Server) handleAddIdentity(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	name := r.FormValue("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	id := r.FormValue("id")
	if id == "" {
		id = uuid.New().String()
	}

	file, _, err := r.FormFile("photo")
	if err != nil {
		writeError(w, http.StatusBadRequest, "photo is required")
		return
	}
	defer file.Close()
	photo, err := io.ReadAll(io.LimitReader(file, maxUploadSize))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read photo")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	faces, err := s.client.Detect(ctx, photo)
	if err != nil {
		writeError(w, http.StatusBadGateway, "detection failed: "+err.Error())
		return
	}
	if len(faces) == 0 {
		writeError(w, http.StatusUnprocessableEntity, "no face found in photo")
		return
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}

	if err := s.store.SaveFace(&store.FaceRecord{ID: id, Name: name, Embedding: best.Embedding}); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	// Rebuild from the store so repeated enrollments accumulate embeddings
	identities, err := s.store.LoadIdentities()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.matcher.SetIdentities(identities); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": id, "name": name})
}

func (s *Server) handleRemoveIdentity(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.store.DeleteFaces(id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.matcher.RemoveIdentity(id)
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "removed"})
}

func (s *Server) handleTelegramTest(w http.ResponseWriter, r *http.Request) {
	if s.bot == nil || !s.bot.IsEnabled() {
		writeError(w, http.StatusNotImplemented, "telegram is not enabled")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()
	if err := s.bot.SendTestMessage(ctx); err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}
