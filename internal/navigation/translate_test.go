package navigation

import (
	"testing"

	"github.com/stretchr/testify/require"

	"lanehud/internal/engine"
	"lanehud/internal/event"
)

func TestTranslateLaneAssistance(t *testing.T) {
	la := &engine.LaneAssistance{
		Lanes: []engine.LaneRecommendation{
			{Directions: []engine.LaneDirection{engine.LaneLeft, engine.LaneStraight}, State: engine.LaneRecommended},
			{Directions: []engine.LaneDirection{engine.LaneRight}, State: engine.LaneNotRecommended},
		},
		DistanceToManeuverMeters: 50,
	}

	ev, ok := TranslateLaneAssistance(la)
	require.True(t, ok)
	require.Equal(t, event.LaneGuidanceEvent{
		Lanes: []event.LaneInfo{
			{Directions: []string{"left", "straight"}, Recommended: true},
			{Directions: []string{"right"}, Recommended: false},
		},
		DistanceToManeuverMeters: 50,
	}, ev)
}

func TestTranslateLaneAssistance_NilPayload(t *testing.T) {
	ev, ok := TranslateLaneAssistance(nil)
	require.False(t, ok)
	require.Empty(t, ev.Lanes)
}

func TestTranslateLaneAssistance_UnknownStateIsNotRecommended(t *testing.T) {
	ev, ok := TranslateLaneAssistance(&engine.LaneAssistance{
		Lanes: []engine.LaneRecommendation{
			{Directions: []engine.LaneDirection{engine.LaneSlightRight}, State: engine.LaneRecommendationState(7)},
		},
	})
	require.True(t, ok)
	require.False(t, ev.Lanes[0].Recommended)
	require.Equal(t, []string{"slight_right"}, ev.Lanes[0].Directions)
}

func TestTranslateLaneAssistance_PreservesCardinality(t *testing.T) {
	ev, ok := TranslateLaneAssistance(&engine.LaneAssistance{
		Lanes: []engine.LaneRecommendation{
			{Directions: []engine.LaneDirection{"STRAIGHT", "STRAIGHT", "Left"}},
			{},
		},
		DistanceToManeuverMeters: 0,
	})
	require.True(t, ok)
	require.Len(t, ev.Lanes, 2)
	require.Equal(t, []string{"straight", "straight", "left"}, ev.Lanes[0].Directions)
	require.NotNil(t, ev.Lanes[1].Directions)
	require.Empty(t, ev.Lanes[1].Directions)
}

func TestTranslateLaneAssistance_Reproducible(t *testing.T) {
	la := &engine.LaneAssistance{
		Lanes: []engine.LaneRecommendation{
			{Directions: []engine.LaneDirection{engine.LaneLeft}, State: engine.LaneRecommended},
		},
		DistanceToManeuverMeters: 120,
	}
	first, _ := TranslateLaneAssistance(la)
	second, _ := TranslateLaneAssistance(la)
	require.Equal(t, first, second)

	// The output does not alias the input.
	first.Lanes[0].Directions[0] = "mutated"
	third, _ := TranslateLaneAssistance(la)
	require.Equal(t, "left", third.Lanes[0].Directions[0])
}
