package protocol

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lanehud/internal/event"
)

func clientMessage(t *testing.T, msgType string, payload interface{}) []byte {
	t.Helper()
	msg := map[string]interface{}{
		"type":      msgType,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if payload != nil {
		msg["payload"] = payload
	}
	data, err := json.Marshal(msg)
	require.NoError(t, err)
	return data
}

func TestNewMessage(t *testing.T) {
	payload := event.StateEvent{State: "navigating", RouteID: "r0"}

	msg, err := NewMessage(TypeNavigationState, payload)
	require.NoError(t, err)
	require.Equal(t, TypeNavigationState, msg.Type)
	require.False(t, msg.Timestamp.IsZero())

	var p event.StateEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	require.Equal(t, "r0", p.RouteID)
}

func TestFromEvent_LaneGuidance(t *testing.T) {
	ev := event.NewLaneGuidance(event.LaneGuidanceEvent{
		Lanes: []event.LaneInfo{
			{Directions: []string{"left", "straight"}, Recommended: true},
			{Directions: []string{"right"}, Recommended: false},
		},
		DistanceToManeuverMeters: 50,
	})

	msg, err := FromEvent(ev)
	require.NoError(t, err)
	require.Equal(t, TypeLaneGuidance, msg.Type)
	require.True(t, msg.Timestamp.Equal(ev.Timestamp), "event timestamp should be kept")

	want := `{"lanes":[{"directions":["left","straight"],"recommended":true},{"directions":["right"],"recommended":false}],"distanceToManeuverMeters":50}`
	require.JSONEq(t, want, string(msg.Payload))
}

func TestFromEvent_State(t *testing.T) {
	msg, err := FromEvent(event.NewState(event.StateEvent{State: "initialized"}))
	require.NoError(t, err)
	require.Equal(t, TypeNavigationState, msg.Type)
	require.JSONEq(t, `{"state":"initialized"}`, string(msg.Payload))
}

func TestFromEvent_Unknown(t *testing.T) {
	_, err := FromEvent(event.Event{Type: "bogus"})
	require.Error(t, err)
}

func TestValidateClientMessage_ValidInitialize(t *testing.T) {
	data := clientMessage(t, TypeNavigationInitialize, map[string]interface{}{
		"accessKeyId": "id", "accessKeySecret": "secret",
	})

	result, err := ValidateClientMessage(data)
	require.NoError(t, err)
	require.Equal(t, TypeNavigationInitialize, result.Type)
}

func TestValidateClientMessage_ValidStart(t *testing.T) {
	data := clientMessage(t, TypeNavigationStart, map[string]interface{}{
		"origin":      map[string]float64{"lat": 25.2048, "lng": 55.2708},
		"destination": map[string]float64{"lat": 25.1972, "lng": 55.2744},
	})

	_, err := ValidateClientMessage(data)
	require.NoError(t, err)
}

func TestValidateClientMessage_ValidLocationAtZero(t *testing.T) {
	// 0,0 is a real coordinate and must not be treated as missing.
	data := clientMessage(t, TypeLocationUpdate, map[string]interface{}{
		"lat": 0, "lng": 0, "speed": 12.5, "bearing": 90,
	})

	_, err := ValidateClientMessage(data)
	require.NoError(t, err)
}

func TestValidateClientMessage_StopWithoutPayload(t *testing.T) {
	_, err := ValidateClientMessage(clientMessage(t, TypeNavigationStop, nil))
	require.NoError(t, err)
}

func TestValidateClientMessage_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"invalid json", []byte("not json")},
		{"missing type", clientMessage(t, "", map[string]interface{}{})},
		{"unknown type", clientMessage(t, "unknown.action", map[string]interface{}{})},
		{"missing payload", []byte(`{"type":"navigation.start","timestamp":"2024-01-01T00:00:00.000Z"}`)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateClientMessage(tt.data)
			require.Error(t, err)
		})
	}
}

func TestValidateClientMessage_PayloadErrors(t *testing.T) {
	tests := []struct {
		name    string
		msgType string
		payload interface{}
		want    string
	}{
		{
			name:    "initialize without key id",
			msgType: TypeNavigationInitialize,
			payload: map[string]interface{}{"accessKeySecret": "secret"},
			want:    "accessKeyId",
		},
		{
			name:    "start without destination",
			msgType: TypeNavigationStart,
			payload: map[string]interface{}{"origin": map[string]float64{"lat": 1, "lng": 2}},
			want:    "destination.lat",
		},
		{
			name:    "start origin out of range",
			msgType: TypeNavigationStart,
			payload: map[string]interface{}{
				"origin":      map[string]float64{"lat": 91, "lng": 2},
				"destination": map[string]float64{"lat": 1, "lng": 2},
			},
			want: "origin.lat",
		},
		{
			name:    "location without lng",
			msgType: TypeLocationUpdate,
			payload: map[string]interface{}{"lat": 25.2},
			want:    "location.lng",
		},
		{
			name:    "location lng out of range",
			msgType: TypeLocationUpdate,
			payload: map[string]interface{}{"lat": 25.2, "lng": 181},
			want:    "location.lng",
		},
		{
			name:    "location wrong type",
			msgType: TypeLocationUpdate,
			payload: map[string]interface{}{"lat": "north", "lng": 1},
			want:    "invalid payload",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateClientMessage(clientMessage(t, tt.msgType, tt.payload))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewErrorMessage(t *testing.T) {
	msg, err := NewErrorMessage(ErrNotInitialized, "navigation engine not initialized")
	require.NoError(t, err)
	require.Equal(t, TypeError, msg.Type)

	var p ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &p))
	require.Equal(t, ErrNotInitialized, p.Code)
}
