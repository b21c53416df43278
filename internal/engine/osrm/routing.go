package osrm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"lanehud/internal/engine"
	"lanehud/internal/logging"
)

// maxResponseBytes caps how much of a route response is read.
const maxResponseBytes = 16 << 20

// RoutingEngine calls the OSRM route service. Each CalculateRoute runs on
// its own goroutine and invokes the callback exactly once from it.
type RoutingEngine struct {
	baseURL    string
	profile    string
	timeout    time.Duration
	httpClient *http.Client
	log        *logging.Logger
	done       <-chan struct{}
}

// CalculateRoute implements engine.RoutingEngine.
func (r *RoutingEngine) CalculateRoute(waypoints []engine.Waypoint, profile engine.VehicleProfile, cb engine.CalculateRouteCallback) {
	wps := append([]engine.Waypoint(nil), waypoints...)
	go func() {
		routes, rerr := r.calculate(wps, profile)
		cb(rerr, routes)
	}()
}

func (r *RoutingEngine) calculate(waypoints []engine.Waypoint, profile engine.VehicleProfile) ([]engine.Route, *engine.RoutingError) {
	select {
	case <-r.done:
		return nil, &engine.RoutingError{Code: CodeEngineClosed, Description: "engine closed"}
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	// Closing the engine aborts calls in flight.
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	u := r.routeURL(waypoints, profile)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, &engine.RoutingError{Code: CodeNetwork, Description: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.log.Warn("route request failed", "error", err)
		return nil, &engine.RoutingError{Code: CodeNetwork, Description: err.Error()}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &engine.RoutingError{Code: CodeNetwork, Description: fmt.Sprintf("read response: %v", err)}
	}

	var out routeResponse
	if err := json.Unmarshal(body, &out); err != nil || out.Code == "" {
		// OSRM reports query errors as JSON even on 4xx, so only a body that
		// is not an OSRM envelope falls back to the HTTP status.
		if resp.StatusCode != http.StatusOK {
			return nil, &engine.RoutingError{Code: CodeNetwork, Description: fmt.Sprintf("OSRM API error: %d", resp.StatusCode)}
		}
		return nil, &engine.RoutingError{Code: CodeBadResponse, Description: "unreadable route response"}
	}
	if out.Code != "Ok" {
		desc := out.Message
		if desc == "" {
			desc = fmt.Sprintf("OSRM routing failed: %s", out.Code)
		}
		return nil, &engine.RoutingError{Code: out.Code, Description: desc}
	}

	routes := make([]engine.Route, 0, len(out.Routes))
	for _, ar := range out.Routes {
		routes = append(routes, convertRoute(uuid.New().String(), ar))
	}
	r.log.Debug("route calculated", "routes", len(routes), "elapsed", time.Since(start))
	return routes, nil
}

// routeURL builds {base}/route/v1/{profile}/{lng,lat;lng,lat}?... for the
// waypoints. OSRM takes coordinates as longitude first.
func (r *RoutingEngine) routeURL(waypoints []engine.Waypoint, profile engine.VehicleProfile) string {
	name := r.profile
	if name == "" {
		name = profile.Mode
	}

	coords := make([]string, 0, len(waypoints))
	for _, w := range waypoints {
		coords = append(coords,
			strconv.FormatFloat(w.Longitude, 'f', 6, 64)+","+strconv.FormatFloat(w.Latitude, 'f', 6, 64))
	}

	q := url.Values{}
	q.Set("steps", "true")
	q.Set("overview", "full")
	q.Set("geometries", "geojson")
	q.Set("alternatives", "true")

	return fmt.Sprintf("%s/route/v1/%s/%s?%s",
		strings.TrimRight(r.baseURL, "/"), url.PathEscape(name), strings.Join(coords, ";"), q.Encode())
}
