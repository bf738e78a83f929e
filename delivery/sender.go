package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/xraph/callrelay/event"
	"github.com/xraph/callrelay/id"
	"github.com/xraph/callrelay/subscription"
)

const (
	maxResponseBody = 1024 // 1KB cap on response body storage

	// DefaultUserAgent is sent when no user agent is configured.
	DefaultUserAgent = "CallRelay/1.0"

	// DefaultRequestTimeout bounds an attempt when no timeout is configured.
	DefaultRequestTimeout = 10 * time.Second
)

// Payload is the JSON body POSTed to a subscription's target URL.
// locationId mirrors tenantId for receivers built against the platform's
// naming.
type Payload struct {
	EventID        string    `json:"eventId"`
	TenantID       string    `json:"tenantId"`
	LocationID     string    `json:"locationId"`
	SubscriptionID string    `json:"subscriptionId"`
	WorkflowID     string    `json:"workflowId,omitempty"`
	CallDuration   float64   `json:"callDuration"`
	CallStatus     string    `json:"callStatus"`
	Direction      string    `json:"direction"`
	ContactID      *string   `json:"contactId"`
	From           *string   `json:"from"`
	To             *string   `json:"to"`
	ConversationID *string   `json:"conversationId"`
	MessageID      *string   `json:"messageId"`
	DateAdded      time.Time `json:"dateAdded"`
}

// NewPayload builds the delivery body for one subscription.
func NewPayload(eventID id.ID, evt event.CallEvent, sub subscription.Subscription) Payload {
	return Payload{
		EventID:        eventID.String(),
		TenantID:       evt.TenantID,
		LocationID:     evt.TenantID,
		SubscriptionID: sub.ID,
		WorkflowID:     sub.WorkflowID,
		CallDuration:   evt.CallDuration,
		CallStatus:     evt.CallStatus,
		Direction:      evt.Direction,
		ContactID:      evt.ContactID,
		From:           evt.From,
		To:             evt.To,
		ConversationID: evt.ConversationID,
		MessageID:      evt.MessageID,
		DateAdded:      evt.DateAdded,
	}
}

// Sender performs HTTP trigger delivery.
type Sender struct {
	client    *http.Client
	timeout   time.Duration
	userAgent string
}

// NewSender creates a sender that bounds every attempt by timeout. A
// non-positive timeout falls back to DefaultRequestTimeout.
func NewSender(timeout time.Duration, userAgent string) *Sender {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &Sender{
		client:    &http.Client{},
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Send POSTs p to targetURL and returns the result. It never returns an
// error; transport and status failures are reported in Result.
func (s *Sender) Send(ctx context.Context, targetURL string, p Payload, deliveryID id.ID) Result {
	body, err := json.Marshal(p)
	if err != nil {
		return Result{Error: fmt.Sprintf("marshal payload: %v", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(body))
	if err != nil {
		return Result{Error: fmt.Sprintf("create request: %v", err)}
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("X-CallRelay-Event-ID", p.EventID)
	req.Header.Set("X-CallRelay-Delivery-ID", deliveryID.String())

	start := time.Now()
	resp, err := s.client.Do(req) //nolint:gosec // G704: URL is a subscriber-registered trigger destination.
	latency := time.Since(start).Milliseconds()

	if err != nil {
		return Result{
			Error:     err.Error(),
			LatencyMs: int(latency),
		}
	}
	defer resp.Body.Close()

	respBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	// Drain the rest so the connection can be reused.
	_, _ = io.Copy(io.Discard, resp.Body)

	res := Result{
		StatusCode: resp.StatusCode,
		Response:   string(respBody),
		LatencyMs:  int(latency),
	}
	switch {
	case readErr != nil:
		res.Error = fmt.Sprintf("read response: %v", readErr)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		res.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return res
}
