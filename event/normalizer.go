package event

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xraph/callrelay/internal/fields"
)

var (
	// ErrNotApplicable is returned for payloads that are not call events.
	ErrNotApplicable = errors.New("event: not a call event")

	// ErrMissingTenant is returned for call events without a tenant ID.
	ErrMissingTenant = errors.New("event: missing tenant id")
)

const unknown = "unknown"

// Extraction rules, evaluated in order: typed field, legacy name, nested
// location. The first non-empty match wins; otherwise the default applies.
var (
	discriminatorRule  = fields.NewRule("type", "messageType", "data.messageType", "type", "eventType", "data.type", "data.eventType")
	tenantRule         = fields.NewRule("tenantId", "locationId", "tenantId", "data.locationId", "data.tenantId")
	callDurationRule   = fields.NewRule("callDuration", "callDuration", "data.callDuration")
	callStatusRule     = fields.NewRule("callStatus", "callStatus", "status", "data.callStatus", "data.status")
	directionRule      = fields.NewRule("direction", "direction", "data.direction")
	contactIDRule      = fields.NewRule("contactId", "contactId", "data.contactId")
	fromRule           = fields.NewRule("from", "from", "data.from")
	toRule             = fields.NewRule("to", "to", "data.to")
	conversationIDRule = fields.NewRule("conversationId", "conversationId", "data.conversationId")
	messageIDRule      = fields.NewRule("messageId", "messageId", "data.messageId")
	dateAddedRule      = fields.NewRule("dateAdded", "dateAdded", "data.dateAdded")
)

// IsCall reports whether the payload's discriminator marks a call event.
func IsCall(doc map[string]any) bool {
	t, ok := discriminatorRule.String(doc)
	return ok && strings.EqualFold(strings.TrimSpace(t), CallType)
}

// Normalize builds a CallEvent from a decoded payload. receivedAt is used
// when the payload has no usable dateAdded. It has no side effects.
func Normalize(doc map[string]any, receivedAt time.Time) (CallEvent, error) {
	if !IsCall(doc) {
		return CallEvent{}, ErrNotApplicable
	}

	tenantID, ok := tenantRule.String(doc)
	if !ok {
		return CallEvent{}, ErrMissingTenant
	}

	return CallEvent{
		TenantID:       tenantID,
		CallDuration:   duration(doc),
		CallStatus:     callStatusRule.StringOr(doc, unknown),
		Direction:      directionRule.StringOr(doc, unknown),
		ContactID:      optional(contactIDRule, doc),
		From:           optional(fromRule, doc),
		To:             optional(toRule, doc),
		ConversationID: optional(conversationIDRule, doc),
		MessageID:      optional(messageIDRule, doc),
		DateAdded:      dateAdded(doc, receivedAt),
	}, nil
}

func optional(rule fields.Rule, doc map[string]any) *string {
	s, ok := rule.String(doc)
	if !ok {
		return nil
	}
	return &s
}

func duration(doc map[string]any) float64 {
	v, ok := callDurationRule.Value(doc)
	if !ok {
		return 0
	}

	var d float64
	switch n := v.(type) {
	case float64:
		d = n
	case int:
		d = float64(n)
	case int64:
		d = float64(n)
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0
		}
		d = parsed
	default:
		return 0
	}

	if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

func dateAdded(doc map[string]any, receivedAt time.Time) time.Time {
	if s, ok := dateAddedRule.String(doc); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC()
		}
	}
	return receivedAt.UTC()
}
