package billing

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"proofwork/internal/types"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// webhookEnvelope is the JSON:API document the provider posts for every event.
// Data is decoded lazily because its shape depends on the event name.
type webhookEnvelope struct {
	Meta webhookMeta     `json:"meta"`
	Data json.RawMessage `json:"data"`
}

type webhookMeta struct {
	EventName  string      `json:"event_name" validate:"required"`
	TestMode   bool        `json:"test_mode"`
	CustomData *customData `json:"custom_data"`
}

// customData is round-tripped from the checkout we created.
type customData struct {
	UserID flexString `json:"user_id"`
}

type subscriptionResource struct {
	Type       string                 `json:"type"`
	ID         flexString             `json:"id" validate:"required"`
	Attributes subscriptionAttributes `json:"attributes"`
}

type subscriptionAttributes struct {
	CustomerID flexString `json:"customer_id"`
	VariantID  flexString `json:"variant_id" validate:"required"`
	Status     string     `json:"status" validate:"required"`
	RenewsAt   *string    `json:"renews_at"`
	UpdatedAt  *string    `json:"updated_at"`
}

// flexString accepts a JSON string, number or null. The provider emits numeric
// ids for most resources, but ids echoed from elsewhere may be strings.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", b)
	}
	*f = flexString(n.String())
	return nil
}

// ParseEvent decodes a verified webhook body into a BillingEvent.
//
// Unrecognized event names yield an EventUnknown event without further field
// checks. For subscription events the subscription id, variant id and status
// are required, and the status must be one the provider documents.
func ParseEvent(rawBody []byte) (*types.BillingEvent, error) {
	var env webhookEnvelope
	if err := json.Unmarshal(rawBody, &env); err != nil {
		return nil, malformed("body is not a valid webhook document", err, nil)
	}
	if err := validate.Struct(env.Meta); err != nil {
		return nil, malformed("missing required event fields", err, fieldDetails(err, "meta"))
	}

	ev := &types.BillingEvent{
		Kind:         types.ParseEventKind(env.Meta.EventName),
		RawEventName: env.Meta.EventName,
		TestMode:     env.Meta.TestMode,
	}
	if env.Meta.CustomData != nil {
		ev.CorrelatedUserID = string(env.Meta.CustomData.UserID)
	}
	if ev.Kind == types.EventUnknown {
		return ev, nil
	}

	if len(env.Data) == 0 || bytes.Equal(bytes.TrimSpace(env.Data), []byte("null")) {
		return nil, malformed("missing subscription data", nil, map[string]any{"fields": []string{"data"}})
	}
	var sub subscriptionResource
	if err := json.Unmarshal(env.Data, &sub); err != nil {
		return nil, malformed("subscription data has unexpected shape", err, nil)
	}
	if err := validate.Struct(sub); err != nil {
		return nil, malformed("missing required subscription fields", err, fieldDetails(err, "data"))
	}

	status, ok := types.ParseSubscriptionStatus(sub.Attributes.Status)
	if !ok {
		return nil, malformed("unrecognized subscription status", nil, map[string]any{"status": sub.Attributes.Status})
	}

	renewsAt, err := parseTimestamp(sub.Attributes.RenewsAt)
	if err != nil {
		return nil, malformed("renews_at is not a valid timestamp", err, nil)
	}
	occurredAt, err := parseTimestamp(sub.Attributes.UpdatedAt)
	if err != nil {
		return nil, malformed("updated_at is not a valid timestamp", err, nil)
	}

	ev.SubscriptionID = string(sub.ID)
	ev.CustomerID = string(sub.Attributes.CustomerID)
	ev.PlanID = string(sub.Attributes.VariantID)
	ev.Status = status
	ev.RenewsAt = renewsAt
	ev.OccurredAt = occurredAt
	return ev, nil
}

func parseTimestamp(s *string) (*time.Time, error) {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(*s))
	if err != nil {
		return nil, err
	}
	t = t.UTC()
	return &t, nil
}

func malformed(msg string, err error, details map[string]any) *types.AppError {
	return types.NewAppErrorWithDetails(types.ErrCodeValidationMalformedPayload, msg, err, details)
}

// fieldDetails lists the JSON paths that failed validation.
func fieldDetails(err error, prefix string) map[string]any {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, prefix+"."+jsonPath(fe.StructNamespace()))
	}
	return map[string]any{"fields": fields}
}

var jsonNames = map[string]string{
	"EventName":  "event_name",
	"ID":         "id",
	"Attributes": "attributes",
	"VariantID":  "variant_id",
	"Status":     "status",
}

// jsonPath turns "subscriptionResource.Attributes.VariantID" into
// "attributes.variant_id".
func jsonPath(ns string) string {
	parts := strings.Split(ns, ".")
	if len(parts) > 1 {
		parts = parts[1:]
	}
	for i, p := range parts {
		if n, ok := jsonNames[p]; ok {
			parts[i] = n
		}
	}
	return strings.Join(parts, ".")
}
