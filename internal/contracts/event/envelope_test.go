package event

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchesFilter(t *testing.T) {
	env := Envelope{
		Data: map[string]any{
			"status":   "active",
			"amount":   float64(42),
			"customer": map[string]any{"tier": "gold"},
		},
	}

	assert.True(t, env.MatchesFilter(nil))
	assert.True(t, env.MatchesFilter(map[string]any{}))
	assert.True(t, env.MatchesFilter(map[string]any{"status": "active"}))
	assert.True(t, env.MatchesFilter(map[string]any{"status": "active", "amount": float64(42)}))
	assert.True(t, env.MatchesFilter(map[string]any{"customer": map[string]any{"tier": "gold"}}))

	assert.False(t, env.MatchesFilter(map[string]any{"status": "inactive"}))
	assert.False(t, env.MatchesFilter(map[string]any{"missing": "x"}))
	assert.False(t, env.MatchesFilter(map[string]any{"status": "active", "missing": "x"}))
}

func TestMatchesFilterDecodedJSON(t *testing.T) {
	// Criteria and data both come off the wire, so numbers are float64 on
	// both sides after decoding.
	var env Envelope
	require.NoError(t, json.Unmarshal([]byte(`{"data":{"qty":3}}`), &env))

	var criteria map[string]any
	require.NoError(t, json.Unmarshal([]byte(`{"qty":3}`), &criteria))

	assert.True(t, env.MatchesFilter(criteria))
	assert.False(t, env.MatchesFilter(map[string]any{"qty": 3})) // int, not float64
}

func TestEnvelopeJSONShape(t *testing.T) {
	env := Envelope{
		EventID:       "e-1",
		EventType:     "order.created",
		Data:          map[string]any{"order_id": "o-1"},
		SourceService: "order-service",
		CorrelationID: "c-1",
		Timestamp:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Version:       Version,
	}

	b, err := json.Marshal(env)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	assert.Equal(t, "e-1", got["event_id"])
	assert.Equal(t, "order.created", got["event_type"])
	assert.Equal(t, "order-service", got["source_service"])
	assert.Equal(t, "1.0", got["version"])
	assert.NotContains(t, got, "user_id")
}
