package osrm

import (
	"math"
	"sync"

	"lanehud/internal/engine"
	"lanehud/internal/logging"
)

// arrivalRadiusMeters is how close a sample must get to a maneuver point for
// that maneuver to count as passed.
const arrivalRadiusMeters = 20.0

// passedMarginMeters is how far the distance to a maneuver must grow past
// its closest approach, once inside the show window, before it counts as
// passed. It absorbs position jitter.
const passedMarginMeters = 25.0

// Navigator matches position samples against the active route and reports
// lane assistance for the upcoming maneuver. Samples are processed on the
// navigator's own goroutine; OnLocationUpdated only posts to a one-slot
// mailbox where a newer sample replaces an unprocessed one.
type Navigator struct {
	minDist float64
	maxDist float64
	log     *logging.Logger

	mailbox chan engine.Location
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	mu       sync.Mutex
	listener engine.LaneAssistanceListener
	route    *Route
	cursor   int
	// closest is the smallest distance seen to the cursor's maneuver.
	closest float64
}

func newNavigator(minDist, maxDist float64, log *logging.Logger) *Navigator {
	n := &Navigator{
		minDist: minDist,
		maxDist: maxDist,
		log:     log,
		mailbox: make(chan engine.Location, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		closest: math.Inf(1),
	}
	go n.run()
	return n
}

// SetLaneAssistanceListener implements engine.Navigator.
func (n *Navigator) SetLaneAssistanceListener(l engine.LaneAssistanceListener) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.listener = l
}

// SetRoute implements engine.Navigator. Routes not produced by this package
// clear guidance like nil does.
func (n *Navigator) SetRoute(route engine.Route) {
	r, _ := route.(*Route)

	n.mu.Lock()
	defer n.mu.Unlock()
	n.route = r
	n.cursor = 0
	n.closest = math.Inf(1)
	// The departure point is behind the driver, not an upcoming maneuver.
	if r != nil && len(r.Steps) > 1 && r.Steps[0].Type == "depart" {
		n.cursor = 1
	}
}

// OnLocationUpdated implements engine.Navigator. It never blocks.
func (n *Navigator) OnLocationUpdated(loc engine.Location) {
	for {
		select {
		case <-n.done:
			return
		case n.mailbox <- loc:
			return
		default:
		}
		// Mailbox full: drop the stale sample and retry.
		select {
		case <-n.mailbox:
		default:
		}
	}
}

// Close implements engine.Navigator. It waits for the processing goroutine
// to exit.
func (n *Navigator) Close() error {
	n.once.Do(func() { close(n.done) })
	<-n.stopped
	return nil
}

func (n *Navigator) run() {
	defer close(n.stopped)
	for {
		select {
		case <-n.done:
			return
		case loc := <-n.mailbox:
			n.process(loc)
		}
	}
}

func (n *Navigator) process(loc engine.Location) {
	pos := engine.Waypoint{Latitude: loc.Latitude, Longitude: loc.Longitude}

	n.mu.Lock()
	if n.route == nil || n.listener == nil {
		n.mu.Unlock()
		return
	}
	steps := n.route.Steps
	var dist float64
	for n.cursor < len(steps) {
		dist = haversineMeters(pos, steps[n.cursor].Maneuver)
		if !n.passedLocked(pos, steps, dist) {
			break
		}
		n.cursor++
		n.closest = math.Inf(1)
	}
	if n.cursor >= len(steps) {
		n.mu.Unlock()
		return
	}
	if dist < n.closest {
		n.closest = dist
	}
	step := steps[n.cursor]
	listener := n.listener
	n.mu.Unlock()

	la := laneAssistance(step, dist, n.minDist, n.maxDist)
	if la == nil {
		return
	}
	n.log.Debug("lane assistance", "maneuver", step.Type, "distance_m", la.DistanceToManeuverMeters, "lanes", len(la.Lanes))
	listener.OnLaneAssistanceUpdated(la)
}

// passedLocked reports whether the maneuver under the cursor, dist meters
// from pos, is behind the driver. Samples can skip the arrival radius, so a
// maneuver also counts as passed once the distance grows again after a
// closest approach inside the show window, or once the next maneuver is
// nearer.
func (n *Navigator) passedLocked(pos engine.Waypoint, steps []Step, dist float64) bool {
	if dist <= arrivalRadiusMeters {
		return true
	}
	if n.closest <= n.maxDist && dist > n.closest+passedMarginMeters {
		return true
	}
	if n.cursor+1 < len(steps) && haversineMeters(pos, steps[n.cursor+1].Maneuver) < dist {
		return true
	}
	return false
}
