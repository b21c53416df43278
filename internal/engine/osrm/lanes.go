package osrm

import (
	"math"
	"strings"

	"lanehud/internal/engine"
)

// minLanes is the fewest lanes worth showing; a single lane carries no choice.
const minLanes = 2

// laneAssistance builds the payload for step at distance meters away. It
// returns nil outside the [min, max] window, when fewer than two lanes are
// known, or when any lane lacks a valid flag.
func laneAssistance(step Step, distance, minDist, maxDist float64) *engine.LaneAssistance {
	if distance > maxDist || distance < minDist {
		return nil
	}
	if len(step.Lanes) < minLanes {
		return nil
	}
	for _, l := range step.Lanes {
		if l.Valid == nil {
			return nil
		}
	}

	la := &engine.LaneAssistance{
		Lanes:                    make([]engine.LaneRecommendation, 0, len(step.Lanes)),
		DistanceToManeuverMeters: int(math.Round(distance)),
	}
	for _, l := range step.Lanes {
		rec := engine.LaneRecommendation{
			Directions: make([]engine.LaneDirection, 0, len(l.Indications)),
			State:      engine.LaneNotRecommended,
		}
		for _, ind := range l.Indications {
			rec.Directions = append(rec.Directions, direction(ind))
		}
		if *l.Valid {
			rec.State = engine.LaneRecommended
		}
		la.Lanes = append(la.Lanes, rec)
	}
	return la
}

// direction maps an OSRM lane indication ("slight left") to an engine
// direction identifier ("SLIGHT_LEFT").
func direction(indication string) engine.LaneDirection {
	switch s := strings.ToLower(strings.TrimSpace(indication)); s {
	case "none", "":
		return engine.LaneStraight
	case "uturn":
		return engine.LaneUTurn
	default:
		return engine.LaneDirection(strings.ToUpper(strings.ReplaceAll(s, " ", "_")))
	}
}
