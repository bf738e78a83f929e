package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/xraph/callrelay"
	"github.com/xraph/callrelay/signature"
	"github.com/xraph/callrelay/subscription"
)

// readBody reads the capped request body. The raw bytes are needed as-is
// for signature verification.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	defer r.Body.Close()
	return io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
}

// triggerWebhook applies a subscription lifecycle event.
func (h *Handler) triggerWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	transition, err := h.relay.HandleLifecycle(r.Context(), raw)
	if err != nil {
		var ve *subscription.ValidationError
		switch {
		case errors.Is(err, callrelay.ErrMalformedPayload):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.As(err, &ve):
			writeError(w, http.StatusBadRequest, ve.Error())
		default:
			writeError(w, http.StatusInternalServerError, "failed to persist subscription")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"transition": transition,
	})
}

// callWebhook acknowledges a call event and processes it in the background.
// The acknowledgement is flushed before processing starts, so slow
// subscribers never delay the platform.
func (h *Handler) callWebhook(w http.ResponseWriter, r *http.Request) {
	raw, err := readBody(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "unable to read request body")
		return
	}

	receipt, err := h.relay.Ingest(raw, r.Header.Get(signature.Header))
	if err != nil {
		switch {
		case errors.Is(err, callrelay.ErrInvalidSignature):
			h.logger.WarnContext(r.Context(), "call webhook rejected: invalid signature",
				"remote_addr", r.RemoteAddr)
			writeError(w, http.StatusUnauthorized, "Invalid signature")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"received": true,
		"eventId":  receipt.EventID,
	})
	if err := http.NewResponseController(w).Flush(); err != nil {
		h.logger.DebugContext(r.Context(), "flush not supported", "error", err)
	}

	if err := h.relay.ProcessAsync(r.Context(), receipt); err != nil {
		h.logger.WarnContext(r.Context(), "call event dropped",
			"event_id", receipt.EventID, "error", err)
	}
}
