package navigation

import (
	"strings"

	"lanehud/internal/engine"
	"lanehud/internal/event"
)

// TranslateLaneAssistance converts an engine payload into a normalized
// guidance event. A nil payload yields ok == false and no event.
//
// Direction identifiers are lower-cased in their original order. A lane is
// recommended only when the engine marks it RECOMMENDED; every other state,
// including ones this package does not know about, maps to false.
func TranslateLaneAssistance(la *engine.LaneAssistance) (ev event.LaneGuidanceEvent, ok bool) {
	if la == nil {
		return event.LaneGuidanceEvent{}, false
	}

	lanes := make([]event.LaneInfo, 0, len(la.Lanes))
	for _, rec := range la.Lanes {
		dirs := make([]string, 0, len(rec.Directions))
		for _, d := range rec.Directions {
			dirs = append(dirs, strings.ToLower(string(d)))
		}
		lanes = append(lanes, event.LaneInfo{
			Directions:  dirs,
			Recommended: rec.State == engine.LaneRecommended,
		})
	}

	return event.LaneGuidanceEvent{
		Lanes:                    lanes,
		DistanceToManeuverMeters: la.DistanceToManeuverMeters,
	}, true
}

// laneListener is registered on a navigator at initialization. gen ties it
// to one initialization so callbacks from a discarded navigator are dropped.
type laneListener struct {
	c   *Coordinator
	gen uint64
}

func (l *laneListener) OnLaneAssistanceUpdated(la *engine.LaneAssistance) {
	if l.c.generation.Load() != l.gen {
		return
	}
	ev, ok := TranslateLaneAssistance(la)
	if !ok {
		return
	}
	l.c.bus.PublishLaneGuidance(ev)
}
