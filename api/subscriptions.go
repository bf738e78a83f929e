package api

import "net/http"

// listSubscriptions returns a snapshot of a tenant's subscriptions.
func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	tenantID := r.PathValue("tenantId")

	subs, err := h.relay.Registry().ListByTenant(r.Context(), tenantID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list subscriptions failed",
			"tenant_id", tenantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list subscriptions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tenantId":      tenantID,
		"subscriptions": subs,
	})
}
