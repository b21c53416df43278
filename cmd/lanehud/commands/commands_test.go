package commands

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"lanehud/internal/config"
	"lanehud/internal/engine"
	"lanehud/internal/event"
	"lanehud/internal/logging"
)

const routeFixture = `{
  "code": "Ok",
  "routes": [{
    "distance": 1520.4,
    "duration": 180.2,
    "legs": [{
      "distance": 1520.4,
      "duration": 180.2,
      "steps": [
        {
          "distance": 900, "duration": 90, "name": "Sheikh Zayed Road",
          "maneuver": {"type": "depart", "location": [55.2708, 25.2048]},
          "intersections": [{"location": [55.2708, 25.2048]}]
        },
        {
          "distance": 620.4, "duration": 90.2, "name": "Al Wasl Road",
          "maneuver": {"type": "turn", "modifier": "left", "location": [55.2708, 25.2128]},
          "intersections": [{
            "location": [55.2708, 25.2128],
            "lanes": [
              {"indications": ["left"], "valid": true},
              {"indications": ["straight"], "valid": false}
            ]
          }]
        },
        {
          "distance": 0, "duration": 0, "name": "",
          "maneuver": {"type": "arrive", "location": [55.2744, 25.2140]},
          "intersections": [{"location": [55.2744, 25.2140]}]
        }
      ]
    }]
  }]
}`

const trace = `{"lat": 25.2048, "lng": 55.2708, "speed": 12, "bearing": 0}

{"lat": 25.2110, "lng": 55.2708, "speed": 12, "bearing": 0}
{"lat": 25.2112, "lng": 55.2708, "speed": 11, "bearing": 0}
{"lat": 25.2140, "lng": 55.2744, "speed": 0, "bearing": 90}
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestReadSamples(t *testing.T) {
	samples, err := readSamples(writeFile(t, "trace.jsonl", trace))
	require.NoError(t, err)
	require.Len(t, samples, 4)
	require.Equal(t, 25.2048, *samples[0].Lat)
	require.Equal(t, 90.0, samples[3].Bearing)
}

func TestReadSamples_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad json", "{not json}\n", "trace.jsonl:1"},
		{"missing lng", `{"lat": 1}` + "\n" + `{"lat": 2, "lng": 2}`, "trace.jsonl:1"},
		{"too few", `{"lat": 1, "lng": 1}`, "at least 2 samples"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readSamples(writeFile(t, "trace.jsonl", tt.content))
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestReplayCredential(t *testing.T) {
	orig := cfg
	t.Cleanup(func() { cfg = orig })

	cfg = config.Default()
	_, err := replayCredential()
	require.ErrorIs(t, err, errNoCredential)

	cfg.Credentials.AccessKeyID = "inline"
	cred, err := replayCredential()
	require.NoError(t, err)
	require.Equal(t, "inline", cred.AccessKeyID)

	cfg.Credentials.File = writeFile(t, "cred.yaml", "access_key_id: from-file\naccess_key_secret: s\n")
	cred, err = replayCredential()
	require.NoError(t, err)
	require.Equal(t, engine.Credential{AccessKeyID: "from-file", AccessKeySecret: "s"}, cred)
}

func TestReplayer_PrintsLaneGuidance(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(routeFixture))
	}))
	defer srv.Close()

	c := config.Default()
	c.OSRM.BaseURL = srv.URL
	c.RouteCache.TTL = 0

	samples, err := readSamples(writeFile(t, "trace.jsonl", trace))
	require.NoError(t, err)

	bus := event.NewBus(64, 8)
	defer bus.Close()
	coord := newCoordinator(c, bus, logging.Discard())
	defer coord.Shutdown()

	r := replayer{
		coord:        coord,
		bus:          bus,
		interval:     50 * time.Millisecond,
		routeTimeout: 2 * time.Second,
		log:          logging.Discard(),
	}
	var out bytes.Buffer
	require.NoError(t, r.run(context.Background(), engine.Credential{AccessKeyID: "id"}, samples, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.NotEmpty(t, lines[0])
	for _, line := range lines {
		require.Contains(t, line, `"type":"lane.guidance"`)
	}
	require.Contains(t, out.String(), `"recommended":true`)
}

func TestReplayer_RejectsZeroInterval(t *testing.T) {
	r := replayer{interval: 0, log: logging.Discard()}
	err := r.run(context.Background(), engine.Credential{}, nil, &bytes.Buffer{})
	require.Error(t, err)
}

func TestRootCmd_BadConfigFile(t *testing.T) {
	root := newRootCmd()
	root.SetArgs([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml"), "replay", "x"})
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	require.Error(t, root.Execute())
}
