package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/martpet/hotspace-aws/internal/config"
	"github.com/martpet/hotspace-aws/internal/entities"
	"github.com/martpet/hotspace-aws/internal/queue"
	use_case "github.com/martpet/hotspace-aws/internal/use-case"
	"github.com/martpet/hotspace-aws/internal/video"
)

type UseCase interface {
	EnqueueJob(ctx context.Context, env queue.Envelope) (string, error)
	SubmitVideo(ctx context.Context, req video.SubmitRequest) (string, error)
	CancelVideo(ctx context.Context, jobID string) error
	ForwardVideoEvent(ctx context.Context, raw []byte) (bool, error)
	ListDeadLetters(ctx context.Context, limit int) ([]entities.DeadLetter, error)
}

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	useCase   UseCase
	cfg       *config.Config
	validator *validator.Validate
	checks    map[string]Pinger
}

func New(useCase UseCase, cfg *config.Config, checks map[string]Pinger) *Handler {
	return &Handler{
		useCase:   useCase,
		cfg:       cfg,
		validator: validator.New(),
		checks:    checks,
	}
}

func (h *Handler) maxBody() int64 {
	if kb := h.cfg.Server.MaxRequestBodyKB; kb > 0 {
		return kb << 10
	}
	return 256 << 10
}

// EnqueueJob accepts a job envelope and appends it to its family's stream.
func (h *Handler) EnqueueJob(w http.ResponseWriter, r *http.Request) {
	var env queue.Envelope
	if !h.decode(w, r, &env) {
		return
	}

	id, err := h.useCase.EnqueueJob(r.Context(), env)
	if err != nil {
		log.Printf("[http] enqueue failed: %v", err)
		writeJSONError(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{ID: id, Kind: string(env.Kind)})
}

// SubmitVideo starts a transcoding job.
func (h *Handler) SubmitVideo(w http.ResponseWriter, r *http.Request) {
	var req video.SubmitRequest
	if !h.decode(w, r, &req) {
		return
	}

	jobID, err := h.useCase.SubmitVideo(r.Context(), req)
	if err != nil {
		if errors.Is(err, use_case.ErrVideoDisabled) {
			writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		log.Printf("[http] video submit failed inode=%s: %v", req.InodeID, err)
		writeJSONError(w, "failed to submit transcoding job", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusAccepted, SubmitVideoResponse{JobID: jobID})
}

// CancelVideo stops the transcoding job named in the path.
func (h *Handler) CancelVideo(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")

	err := h.useCase.CancelVideo(r.Context(), jobID)
	switch {
	case errors.Is(err, use_case.ErrVideoDisabled):
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, video.ErrJobNotFound):
		writeJSONError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, video.ErrJobFinished):
		writeJSONError(w, err.Error(), http.StatusConflict)
	case err != nil:
		log.Printf("[http] video cancel failed job=%s: %v", jobID, err)
		writeJSONError(w, "failed to cancel transcoding job", http.StatusBadGateway)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// VideoEvent relays a MediaConvert job state change.
func (h *Handler) VideoEvent(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.maxBody()))
	if err != nil {
		writeBodyError(w, err)
		return
	}

	forwarded, err := h.useCase.ForwardVideoEvent(r.Context(), raw)
	switch {
	case errors.Is(err, use_case.ErrVideoDisabled):
		writeJSONError(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, video.ErrNotLifecycleEvent):
		writeJSONError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		log.Printf("[http] video event relay failed: %v", err)
		// 5xx makes the sender redeliver.
		writeJSONError(w, "failed to forward event", http.StatusBadGateway)
	default:
		writeJSON(w, http.StatusOK, ForwardResponse{Forwarded: forwarded})
	}
}

// ListDeadLetters shows the newest dead letters, ?limit=N (max 500).
func (h *Handler) ListDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit := parseInt64Default(r.URL.Query().Get("limit"), 50)
	if limit < 1 || limit > 500 {
		writeJSONError(w, "limit must be between 1 and 500", http.StatusBadRequest)
		return
	}

	letters, err := h.useCase.ListDeadLetters(r.Context(), int(limit))
	if err != nil {
		log.Printf("[http] list dead letters failed: %v", err)
		writeJSONError(w, "failed to list dead letters", http.StatusInternalServerError)
		return
	}
	if letters == nil {
		letters = []entities.DeadLetter{}
	}
	writeJSON(w, http.StatusOK, letters)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Checks: map[string]string{}}
	code := http.StatusOK
	for name, c := range h.checks {
		if err := c.Ping(ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		resp.Checks[name] = "ok"
	}
	writeJSON(w, code, resp)
}

// decode reads a JSON body into dst and validates it, writing the error
// response itself when it returns false.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody()))
	if err := dec.Decode(dst); err != nil {
		writeBodyError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, validationErrorsToMap(err))
		return false
	}
	return true
}
