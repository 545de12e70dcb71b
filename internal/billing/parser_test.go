package billing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"proofwork/internal/types"
)

const subscriptionCreatedBody = `{
  "meta": {
    "event_name": "subscription_created",
    "test_mode": true,
    "custom_data": {"user_id": "u1"}
  },
  "data": {
    "type": "subscriptions",
    "id": "1",
    "attributes": {
      "store_id": 42,
      "customer_id": 9001,
      "variant_id": 12345,
      "status": "active",
      "renews_at": "2026-11-19T10:00:00.000000Z",
      "updated_at": "2026-10-19T10:00:00.000000Z",
      "user_email": "dev@example.com"
    }
  }
}`

func TestParseEvent_SubscriptionCreated(t *testing.T) {
	ev, err := ParseEvent([]byte(subscriptionCreatedBody))
	require.NoError(t, err)

	assert.Equal(t, types.EventSubscriptionCreated, ev.Kind)
	assert.Equal(t, "subscription_created", ev.RawEventName)
	assert.Equal(t, "1", ev.SubscriptionID)
	assert.Equal(t, "9001", ev.CustomerID)
	assert.Equal(t, "12345", ev.PlanID)
	assert.Equal(t, types.SubStatusActive, ev.Status)
	assert.Equal(t, "u1", ev.CorrelatedUserID)
	assert.True(t, ev.TestMode)

	require.NotNil(t, ev.RenewsAt)
	assert.True(t, ev.RenewsAt.Equal(time.Date(2026, 11, 19, 10, 0, 0, 0, time.UTC)))
	require.NotNil(t, ev.OccurredAt)
	assert.True(t, ev.OccurredAt.Equal(time.Date(2026, 10, 19, 10, 0, 0, 0, time.UTC)))
}

func TestParseEvent_StringIDsAndNullOptionals(t *testing.T) {
	body := `{
	  "meta": {"event_name": "subscription_updated", "custom_data": null},
	  "data": {"id": "sub_77", "attributes": {"variant_id": "pro-plan", "status": "past_due", "renews_at": null, "customer_id": null}}
	}`

	ev, err := ParseEvent([]byte(body))
	require.NoError(t, err)

	assert.Equal(t, "sub_77", ev.SubscriptionID)
	assert.Equal(t, "pro-plan", ev.PlanID)
	assert.Equal(t, types.SubStatusPastDue, ev.Status)
	assert.Empty(t, ev.CustomerID)
	assert.Empty(t, ev.CorrelatedUserID)
	assert.False(t, ev.HasCorrelation())
	assert.Nil(t, ev.RenewsAt)
	assert.Nil(t, ev.OccurredAt)
}

func TestParseEvent_NumericUserID(t *testing.T) {
	body := `{"meta":{"event_name":"subscription_resumed","custom_data":{"user_id":17}},
	  "data":{"id":2,"attributes":{"variant_id":3,"status":"active"}}}`

	ev, err := ParseEvent([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, "17", ev.CorrelatedUserID)
	assert.Equal(t, "2", ev.SubscriptionID)
}

func TestParseEvent_UnknownKindSkipsFieldChecks(t *testing.T) {
	body := `{"meta":{"event_name":"order_created","custom_data":{"user_id":"u1"}},
	  "data":{"type":"orders","id":5,"attributes":{"status":{"nested":"shape"}}}}`

	ev, err := ParseEvent([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, types.EventUnknown, ev.Kind)
	assert.Equal(t, "order_created", ev.RawEventName)
	assert.Empty(t, ev.SubscriptionID)
}

func TestParseEvent_EventNameIsCaseSensitive(t *testing.T) {
	body := `{"meta":{"event_name":"SUBSCRIPTION_CREATED"},"data":null}`

	ev, err := ParseEvent([]byte(body))
	require.NoError(t, err)
	assert.Equal(t, types.EventUnknown, ev.Kind)
}

func TestParseEvent_Malformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"not json", `event_name=subscription_created`},
		{"empty body", ``},
		{"json array", `[]`},
		{"missing event name", `{"meta":{},"data":{"id":"1","attributes":{"variant_id":1,"status":"active"}}}`},
		{"missing data", `{"meta":{"event_name":"subscription_created"}}`},
		{"null data", `{"meta":{"event_name":"subscription_created"},"data":null}`},
		{"missing subscription id", `{"meta":{"event_name":"subscription_created"},"data":{"attributes":{"variant_id":1,"status":"active"}}}`},
		{"missing variant id", `{"meta":{"event_name":"subscription_created"},"data":{"id":"1","attributes":{"status":"active"}}}`},
		{"missing status", `{"meta":{"event_name":"subscription_created"},"data":{"id":"1","attributes":{"variant_id":1}}}`},
		{"unknown status", `{"meta":{"event_name":"subscription_created"},"data":{"id":"1","attributes":{"variant_id":1,"status":"Active"}}}`},
		{"bad renews_at", `{"meta":{"event_name":"subscription_created"},"data":{"id":"1","attributes":{"variant_id":1,"status":"active","renews_at":"tomorrow"}}}`},
		{"bad updated_at", `{"meta":{"event_name":"subscription_created"},"data":{"id":"1","attributes":{"variant_id":1,"status":"active","updated_at":"2026-13-01"}}}`},
		{"bool id", `{"meta":{"event_name":"subscription_created"},"data":{"id":true,"attributes":{"variant_id":1,"status":"active"}}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := ParseEvent([]byte(tt.body))
			assert.Nil(t, ev)
			require.Error(t, err)
			assert.True(t, types.IsCode(err, types.ErrCodeValidationMalformedPayload), "got %v", err)
		})
	}
}

func TestParseEvent_ReportsMissingFields(t *testing.T) {
	_, err := ParseEvent([]byte(`{"meta":{"event_name":"subscription_updated"},"data":{"id":"1","attributes":{}}}`))
	require.Error(t, err)

	appErr, ok := err.(*types.AppError)
	require.True(t, ok)
	assert.ElementsMatch(t,
		[]string{"data.attributes.variant_id", "data.attributes.status"},
		appErr.Details["fields"],
	)
}
