package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/voice-emotion-api/internal/model"
	"github.com/maauso/voice-emotion-api/internal/session"
)

// defaultMaxUploadBytes bounds uploads when no limit is configured.
const defaultMaxUploadBytes = 200 << 20

// multipartMemory is the in-memory share of a parsed multipart form; the
// rest spills to temporary files.
const multipartMemory = 32 << 20

// ModelStatuser reports model load status.
type ModelStatuser interface {
	Status() []model.Status
}

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service        *session.Service
	models         ModelStatuser
	validator      *validator.Validate
	logger         *slog.Logger
	maxUploadBytes int64
}

// HandlerOption is a function that configures a Handlers instance.
type HandlerOption func(*Handlers)

// WithMaxUploadBytes limits the size of uploaded request bodies.
func WithMaxUploadBytes(n int64) HandlerOption {
	return func(h *Handlers) {
		if n > 0 {
			h.maxUploadBytes = n
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *session.Service, models ModelStatuser, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:        service,
		models:         models,
		validator:      validator.New(),
		logger:         logger,
		maxUploadBytes: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Models handles GET /models requests.
func (h *Handlers) Models(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ModelsResponse{Models: h.models.Status()})
}

// CreateSession handles POST /sessions requests.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	sess, err := h.service.Upload(r.Context(), up.name, up.data)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, toSessionResponse(sess))
}

// GetSession handles GET /sessions/{id} requests.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.service.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// ReplaceAudio handles PUT /sessions/{id}/audio requests.
func (h *Handlers) ReplaceAudio(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	sess, err := h.service.Replace(r.Context(), r.PathValue("id"), up.name, up.data)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

// DeleteSession handles DELETE /sessions/{id} requests.
func (h *Handlers) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), r.PathValue("id")); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetWaveform handles GET /sessions/{id}/waveform requests.
func (h *Handlers) GetWaveform(w http.ResponseWriter, r *http.Request) {
	var q waveformQuery
	if raw := r.URL.Query().Get("max_points"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "max_points must be an integer", "VALIDATION_ERROR")
			return
		}
		q.MaxPoints = n
	}
	if err := h.validator.Struct(q); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	wf, err := h.service.Waveform(r.Context(), r.PathValue("id"), q.MaxPoints)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

// CreatePrediction handles POST /sessions/{id}/predictions requests.
func (h *Handlers) CreatePrediction(w http.ResponseWriter, r *http.Request) {
	var req PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}
	req.Model = strings.ToLower(strings.TrimSpace(req.Model))

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	sessionID := r.PathValue("id")
	out, err := h.service.Classify(r.Context(), sessionID, model.Variant(req.Model))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPredictionResponse(sessionID, out))
}

// Classify handles POST /classify: a one-shot upload and prediction.
func (h *Handlers) Classify(w http.ResponseWriter, r *http.Request) {
	up, ok := h.readUpload(w, r)
	if !ok {
		return
	}

	form := classifyForm{Model: strings.ToLower(strings.TrimSpace(r.FormValue("model")))}
	if err := h.validator.Struct(form); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	out, err := h.service.Analyze(r.Context(), up.name, up.data, model.Variant(form.Model))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toPredictionResponse("", out))
}

type upload struct {
	name string
	data []byte
}

// readUpload parses the multipart "file" field under the size limit. It
// writes the error response itself and reports whether to continue.
func (h *Handlers) readUpload(w http.ResponseWriter, r *http.Request) (upload, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		if isTooLarge(err) {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("upload exceeds %d bytes", h.maxUploadBytes), "UPLOAD_TOO_LARGE")
			return upload{}, false
		}
		writeError(w, http.StatusBadRequest, "expected multipart/form-data body", "INVALID_UPLOAD")
		return upload{}, false
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing form file \"file\"", "INVALID_UPLOAD")
		return upload{}, false
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		h.logger.Warn("failed to read upload", slog.String("error", err.Error()))
		writeError(w, http.StatusBadRequest, "failed to read upload", "INVALID_UPLOAD")
		return upload{}, false
	}
	return upload{name: header.Filename, data: data}, true
}

// isTooLarge reports whether err came from the MaxBytesReader. The
// multipart reader does not always wrap it, so the message is checked too.
func isTooLarge(err error) bool {
	var tooLarge *http.MaxBytesError
	return errors.As(err, &tooLarge) || strings.Contains(err.Error(), "request body too large")
}

// writeServiceError maps a service error to its response, logging server faults.
func (h *Handlers) writeServiceError(w http.ResponseWriter, err error) {
	status, resp := mapError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			slog.String("code", resp.Code),
			slog.String("stage", resp.Stage),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, resp)
}

func toSessionResponse(s *session.Session) SessionResponse {
	resp := SessionResponse{
		ID:          s.ID,
		State:       string(s.GetState()),
		HasFeatures: s.Features != nil,
		Invocations: make([]string, 0, len(s.Invocations)),
		CreatedAt:   s.CreatedAt,
		UpdatedAt:   s.UpdatedAt,
	}
	for _, v := range s.Invocations {
		resp.Invocations = append(resp.Invocations, string(v))
	}
	if clip := s.GetClip(); clip != nil {
		resp.FileName = clip.Name()
		resp.SampleRate = clip.SampleRate()
		resp.SampleCount = clip.Len()
		resp.DurationSeconds = clip.Duration()
	}
	return resp
}

func toPredictionResponse(sessionID string, out *session.Outcome) PredictionResponse {
	return PredictionResponse{
		SessionID: sessionID,
		Payload:   out.Payload,
		Features:  out.Features.Slice(),
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
