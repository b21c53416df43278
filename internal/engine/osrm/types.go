package osrm

import (
	"lanehud/internal/engine"
)

// --- JSON types for the OSRM route service (v1) ---

type routeResponse struct {
	Code    string     `json:"code"`
	Message string     `json:"message,omitempty"`
	Routes  []apiRoute `json:"routes"`
}

type apiRoute struct {
	Distance float64  `json:"distance"`
	Duration float64  `json:"duration"`
	Legs     []apiLeg `json:"legs"`
}

type apiLeg struct {
	Distance float64   `json:"distance"`
	Duration float64   `json:"duration"`
	Steps    []apiStep `json:"steps"`
}

type apiStep struct {
	Distance      float64           `json:"distance"`
	Duration      float64           `json:"duration"`
	Name          string            `json:"name"`
	Maneuver      apiManeuver       `json:"maneuver"`
	Intersections []apiIntersection `json:"intersections"`
}

type apiManeuver struct {
	Type     string `json:"type"`
	Modifier string `json:"modifier,omitempty"`
	// Location is [longitude, latitude].
	Location [2]float64 `json:"location"`
}

type apiIntersection struct {
	Location [2]float64 `json:"location"`
	Lanes    []apiLane  `json:"lanes,omitempty"`
}

type apiLane struct {
	Indications []string `json:"indications"`
	// Valid is a pointer so a missing flag can be told apart from false.
	Valid *bool `json:"valid"`
}

// Route is a computed OSRM route flattened into maneuver steps.
type Route struct {
	id       string
	Distance float64
	Duration float64
	Steps    []Step
}

// ID implements engine.Route.
func (r *Route) ID() string { return r.id }

// Step is one maneuver along a route. Lanes come from the first
// intersection of the step, where the maneuver happens.
type Step struct {
	Name     string
	Type     string
	Modifier string
	Maneuver engine.Waypoint
	Distance float64
	Lanes    []Lane
}

// Lane is one approach lane at a maneuver. Valid is nil when the server
// sent no flag.
type Lane struct {
	Indications []string
	Valid       *bool
}

func convertRoute(id string, r apiRoute) *Route {
	out := &Route{id: id, Distance: r.Distance, Duration: r.Duration}
	for _, leg := range r.Legs {
		for _, s := range leg.Steps {
			step := Step{
				Name:     s.Name,
				Type:     s.Maneuver.Type,
				Modifier: s.Maneuver.Modifier,
				Maneuver: engine.Waypoint{
					Latitude:  s.Maneuver.Location[1],
					Longitude: s.Maneuver.Location[0],
				},
				Distance: s.Distance,
			}
			if len(s.Intersections) > 0 {
				for _, l := range s.Intersections[0].Lanes {
					step.Lanes = append(step.Lanes, Lane{
						Indications: append([]string(nil), l.Indications...),
						Valid:       l.Valid,
					})
				}
			}
			out.Steps = append(out.Steps, step)
		}
	}
	return out
}
