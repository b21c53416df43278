package realtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"lanehud/internal/engine"
	"lanehud/internal/engine/enginetest"
	"lanehud/internal/event"
	"lanehud/internal/navigation"
	"lanehud/internal/protocol"
)

const startBody = `{"origin":{"lat":25.2048,"lng":55.2708},"destination":{"lat":25.1972,"lng":55.2744}}`

func newTestServer(t *testing.T, opts ...Option) (*Server, *navigation.Coordinator, *enginetest.Provider) {
	t.Helper()
	provider := enginetest.NewProvider()
	bus := event.NewBus(100, 10)
	coord := navigation.NewCoordinator(provider, bus)
	srv := New(coord, bus, opts...)
	t.Cleanup(srv.Close)
	return srv, coord, provider
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

// pollRouteCall waits until the fake routing engine has received a call.
// It returns nil after two seconds.
func pollRouteCall(provider *enginetest.Provider) *enginetest.RouteCall {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if eng := provider.Last(); eng != nil && eng.Routing() != nil {
			if call := eng.Routing().Last(); call != nil {
				return call
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	return nil
}

// resolveInBackground completes the next route call from another goroutine,
// for handlers that block until the route arrives.
func resolveInBackground(provider *enginetest.Provider, routes ...engine.Route) {
	go func() {
		if call := pollRouteCall(provider); call != nil {
			call.Resolve(routes...)
		}
	}()
}

func waitForRouteCall(t *testing.T, provider *enginetest.Provider) *enginetest.RouteCall {
	t.Helper()
	call := pollRouteCall(provider)
	require.NotNil(t, call, "no route call received")
	return call
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(w.Body).Decode(v), "body: %s", w.Body.String())
}

func decodePayload(t *testing.T, msg protocol.Message, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(msg.Payload, v))
}

func TestServer_Handler(t *testing.T) {
	srv, _, _ := newTestServer(t)
	require.NotNil(t, srv.Handler())
}

func TestServer_Health(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv.Handler(), "GET", "/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp healthResponse
	decode(t, w, &resp)
	require.Equal(t, "ok", resp.Status)
	require.Equal(t, "uninitialized", resp.State)
	require.Equal(t, 1, resp.Subscribers, "the server's own bus subscription")
}

func TestServer_CORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv.Handler(), "OPTIONS", "/navigation/start", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_InitializeBadRequests(t *testing.T) {
	srv, _, _ := newTestServer(t)

	for _, body := range []string{"invalid json", `{"accessKeySecret":"x"}`} {
		w := do(t, srv.Handler(), "POST", "/navigation/initialize", body)
		require.Equal(t, http.StatusBadRequest, w.Code, "body %q", body)
	}
}

func TestServer_InitializeEngineFailure(t *testing.T) {
	srv, _, provider := newTestServer(t)
	provider.NavigatorErr = errors.New("navigator unavailable")

	w := do(t, srv.Handler(), "POST", "/navigation/initialize", `{"accessKeyId":"id"}`)
	require.Equal(t, http.StatusUnprocessableEntity, w.Code)

	var resp errorResponse
	decode(t, w, &resp)
	require.Equal(t, protocol.ErrSDKInit, resp.Code)
}

func TestServer_StartBeforeInitialize(t *testing.T) {
	srv, _, provider := newTestServer(t)

	w := do(t, srv.Handler(), "POST", "/navigation/start", startBody)
	require.Equal(t, http.StatusConflict, w.Code)

	var resp errorResponse
	decode(t, w, &resp)
	require.Equal(t, protocol.ErrNotInitialized, resp.Code)
	require.Empty(t, provider.Engines(), "no engine should be created")
}

func TestServer_StartInvalidCoordinates(t *testing.T) {
	srv, _, _ := newTestServer(t)

	w := do(t, srv.Handler(), "POST", "/navigation/start", `{"origin":{"lat":25.2}}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestServer_NavigationLifecycle(t *testing.T) {
	srv, coord, provider := newTestServer(t)
	handler := srv.Handler()

	w := do(t, handler, "POST", "/navigation/initialize", `{"accessKeyId":"id","accessKeySecret":"secret"}`)
	require.Equal(t, http.StatusOK, w.Code, "initialize: %s", w.Body.String())

	resolveInBackground(provider, &enginetest.Route{Name: "r0"}, &enginetest.Route{Name: "r1"})

	w = do(t, handler, "POST", "/navigation/start", startBody)
	require.Equal(t, http.StatusOK, w.Code, "start: %s", w.Body.String())
	var started startResponse
	decode(t, w, &started)
	require.Equal(t, "r0", started.RouteID)
	require.NotEmpty(t, started.Token)

	w = do(t, handler, "POST", "/navigation/location", `{"lat":25.2,"lng":55.27,"speed":12,"bearing":180}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	locs := provider.Last().Navigator().Locations()
	require.Len(t, locs, 1)
	require.Equal(t, 25.2, locs[0].Latitude)
	require.Equal(t, 180.0, locs[0].BearingDegrees)

	w = do(t, handler, "GET", "/navigation", "")
	var snap navigation.Snapshot
	decode(t, w, &snap)
	require.Equal(t, navigation.StateNavigating, snap.State)
	require.Equal(t, "r0", snap.RouteID)

	for i := 0; i < 2; i++ {
		w = do(t, handler, "POST", "/navigation/stop", "")
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Equal(t, navigation.StateInitialized, coord.State())
}

func TestServer_StartRoutingError(t *testing.T) {
	srv, coord, provider := newTestServer(t)
	require.NoError(t, coord.Initialize(engine.Credential{AccessKeyID: "id"}))

	resolveInBackground(provider)

	w := do(t, srv.Handler(), "POST", "/navigation/start", startBody)
	require.Equal(t, http.StatusBadGateway, w.Code)
	var resp errorResponse
	decode(t, w, &resp)
	require.Equal(t, protocol.ErrRouting, resp.Code)
	require.Equal(t, navigation.UnknownRoutingError, resp.Error)
}

func TestServer_StartTimeout(t *testing.T) {
	srv, coord, _ := newTestServer(t, WithRouteTimeout(30*time.Millisecond))
	require.NoError(t, coord.Initialize(engine.Credential{AccessKeyID: "id"}))

	w := do(t, srv.Handler(), "POST", "/navigation/start", startBody)
	require.Equal(t, http.StatusGatewayTimeout, w.Code)
	require.Empty(t, coord.Snapshot().PendingToken, "timed-out request should release its slot")
}

func dialWS(t *testing.T, srv *Server) (*websocket.Conn, func()) {
	t.Helper()
	httpSrv := httptest.NewServer(srv.Handler())
	wsURL := "ws" + strings.TrimPrefix(httpSrv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		httpSrv.Close()
	}
	require.NoError(t, err, "websocket dial")
	return ws, func() {
		ws.Close()
		httpSrv.Close()
	}
}

func send(t *testing.T, ws *websocket.Conn, msgType string, payload interface{}) {
	t.Helper()
	msg := map[string]interface{}{
		"type":      msgType,
		"payload":   payload,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	data, _ := json.Marshal(msg)
	require.NoError(t, ws.WriteMessage(websocket.TextMessage, data))
}

// readUntil reads messages until one of msgType arrives.
func readUntil(t *testing.T, ws *websocket.Conn, msgType string) protocol.Message {
	t.Helper()
	ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		require.NoError(t, err, "read message waiting for %s", msgType)
		var msg protocol.Message
		require.NoError(t, json.Unmarshal(data, &msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func TestServer_WebSocketInvalidMessage(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ws, cleanup := dialWS(t, srv)
	defer cleanup()

	ws.WriteMessage(websocket.TextMessage, []byte("not json"))

	var p protocol.ErrorPayload
	decodePayload(t, readUntil(t, ws, protocol.TypeError), &p)
	require.Equal(t, protocol.ErrInvalidMessage, p.Code)
}

func TestServer_WebSocketStartBeforeInitialize(t *testing.T) {
	srv, _, _ := newTestServer(t)
	ws, cleanup := dialWS(t, srv)
	defer cleanup()

	send(t, ws, protocol.TypeNavigationStart, map[string]interface{}{
		"origin":      map[string]float64{"lat": 25.2048, "lng": 55.2708},
		"destination": map[string]float64{"lat": 25.1972, "lng": 55.2744},
	})

	var p protocol.ErrorPayload
	decodePayload(t, readUntil(t, ws, protocol.TypeError), &p)
	require.Equal(t, protocol.ErrNotInitialized, p.Code)
}

func TestServer_WebSocketLaneGuidanceFlow(t *testing.T) {
	srv, coord, provider := newTestServer(t)
	ws, cleanup := dialWS(t, srv)
	defer cleanup()

	send(t, ws, protocol.TypeNavigationInitialize, map[string]string{"accessKeyId": "id"})
	var state event.StateEvent
	decodePayload(t, readUntil(t, ws, protocol.TypeNavigationState), &state)
	require.Equal(t, "initialized", state.State)

	send(t, ws, protocol.TypeNavigationStart, map[string]interface{}{
		"origin":      map[string]float64{"lat": 25.2048, "lng": 55.2708},
		"destination": map[string]float64{"lat": 25.1972, "lng": 55.2744},
	})
	waitForRouteCall(t, provider).Resolve(&enginetest.Route{Name: "r0"})

	decodePayload(t, readUntil(t, ws, protocol.TypeNavigationState), &state)
	require.Equal(t, "navigating", state.State)
	require.Equal(t, "r0", state.RouteID)
	require.Equal(t, navigation.StateNavigating, coord.State())

	provider.Last().Navigator().Emit(&engine.LaneAssistance{
		Lanes: []engine.LaneRecommendation{
			{Directions: []engine.LaneDirection{engine.LaneLeft}, State: engine.LaneRecommended},
			{Directions: []engine.LaneDirection{engine.LaneStraight, engine.LaneRight}, State: engine.LaneNotRecommended},
		},
		DistanceToManeuverMeters: 120,
	})

	var lg event.LaneGuidanceEvent
	decodePayload(t, readUntil(t, ws, protocol.TypeLaneGuidance), &lg)
	require.Equal(t, 120, lg.DistanceToManeuverMeters)
	require.Len(t, lg.Lanes, 2)
	require.True(t, lg.Lanes[0].Recommended)
	require.False(t, lg.Lanes[1].Recommended)
	require.Equal(t, "straight,right", strings.Join(lg.Lanes[1].Directions, ","))

	send(t, ws, protocol.TypeNavigationStop, nil)
	decodePayload(t, readUntil(t, ws, protocol.TypeNavigationState), &state)
	require.Equal(t, "initialized", state.State)
}

func TestServer_WebSocketRoutingErrorCarriesToken(t *testing.T) {
	srv, coord, provider := newTestServer(t)
	require.NoError(t, coord.Initialize(engine.Credential{AccessKeyID: "id"}))
	ws, cleanup := dialWS(t, srv)
	defer cleanup()

	send(t, ws, protocol.TypeNavigationStart, map[string]interface{}{
		"origin":      map[string]float64{"lat": 25.2048, "lng": 55.2708},
		"destination": map[string]float64{"lat": 25.1972, "lng": 55.2744},
	})
	waitForRouteCall(t, provider).Reject("NoRoute", "Impossible route between points")

	var p protocol.ErrorPayload
	decodePayload(t, readUntil(t, ws, protocol.TypeError), &p)
	require.Equal(t, protocol.ErrRouting, p.Code)
	require.Equal(t, "Impossible route between points", p.Message)
	require.NotEmpty(t, p.Token)
}

func TestServer_WebSocketReplaysHistory(t *testing.T) {
	srv, coord, _ := newTestServer(t)
	require.NoError(t, coord.Initialize(engine.Credential{AccessKeyID: "id"}))

	ws, cleanup := dialWS(t, srv)
	defer cleanup()

	var state event.StateEvent
	decodePayload(t, readUntil(t, ws, protocol.TypeNavigationState), &state)
	require.Equal(t, "initialized", state.State)
}

func TestServer_WebSocketConnectDuringBroadcastGetsEachEventOnce(t *testing.T) {
	const total = 50
	srv, _, _ := newTestServer(t, WithHistorySize(2*total))

	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < total; i++ {
			srv.bus.PublishLaneGuidance(event.LaneGuidanceEvent{DistanceToManeuverMeters: i})
		}
	}()

	ws, cleanup := dialWS(t, srv)
	defer cleanup()
	<-published

	got := make([]int, 0, total)
	for len(got) == 0 || got[len(got)-1] != total-1 {
		var lg event.LaneGuidanceEvent
		decodePayload(t, readUntil(t, ws, protocol.TypeLaneGuidance), &lg)
		got = append(got, lg.DistanceToManeuverMeters)
		require.LessOrEqual(t, len(got), total, "duplicate delivery: %v", got)
	}

	want := make([]int, total)
	for i := range want {
		want[i] = i
	}
	require.Equal(t, want, got)
}
