package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/hackgods/kiosk-checkin/pkg/logging"
)

const maxBodyBytes = 1 << 20

type challengeResponse struct {
	SecretToken string `json:"secret_token"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// Handler multiplexes the webhook endpoint by method: GET answers the
// registration challenge, POST ingests an event, anything else is a 400.
type Handler struct {
	ingestor *Ingestor
	logger   *logging.Logger
}

func NewHandler(ingestor *Ingestor, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{ingestor: ingestor, logger: logger}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	defer func() {
		h.ingestor.metrics.ObserveWebhookLatency(r.Method, time.Since(start).Seconds())
	}()

	switch r.Method {
	case http.MethodGet:
		h.challenge(w, r)
	case http.MethodPost:
		h.event(w, r)
	default:
		writeError(w, http.StatusBadRequest, "unsupported_method", r.Method+" is not supported")
	}
}

func (h *Handler) challenge(w http.ResponseWriter, r *http.Request) {
	msgs, ok := r.URL.Query()["msg"]
	if !ok || len(msgs) == 0 {
		writeError(w, http.StatusBadRequest, "missing_msg", ErrMissingMessage.Error())
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{SecretToken: h.ingestor.Challenge(msgs[0])})
}

func (h *Handler) event(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not read body")
		return
	}

	_, err = h.ingestor.Ingest(
		r.Context(),
		r.Header.Get(h.ingestor.SignatureHeader()),
		r.Header.Get(h.ingestor.EventHeader()),
		body,
	)
	if err != nil {
		if IsValidation(err) {
			h.logger.Warn().Err(err).Str("remote_addr", r.RemoteAddr).Msg("rejected webhook")
			writeError(w, http.StatusBadRequest, "invalid_webhook", err.Error())
			return
		}
		h.logger.Error().Err(err).Msg("webhook ingest failed")
		writeError(w, http.StatusInternalServerError, "internal_error", "could not store event")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, errorResponse{Error: code, Details: details})
}
