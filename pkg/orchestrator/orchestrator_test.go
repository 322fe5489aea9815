package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/NERVsystems/geoquery/pkg/config"
	"github.com/NERVsystems/geoquery/pkg/geoerr"
	"github.com/NERVsystems/geoquery/pkg/metrics"
	"github.com/NERVsystems/geoquery/pkg/query"
	"github.com/NERVsystems/geoquery/pkg/remote"
	"github.com/NERVsystems/geoquery/pkg/status"
	"github.com/NERVsystems/geoquery/pkg/testutil"
	"github.com/NERVsystems/geoquery/pkg/tools"
	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig(catalog ...string) config.Config {
	return config.Config{
		APIKey:      "key",
		ProfileID:   "profile",
		MapboxToken: "pk.test",
		Catalog:     catalog,
	}
}

func fastOptions() remote.Options {
	return remote.Options{
		ConnectTimeout: 2 * time.Second,
		CallTimeout:    2 * time.Second,
		CloseTimeout:   time.Second,
		Retry:          remote.RetryPolicy{MaxAttempts: 3, Delay: time.Millisecond},
	}
}

type harness struct {
	host   *testutil.FakeHost
	dialer *testutil.CountingDialer
	orch   *Orchestrator
	sink   *status.Recorder
}

func newHarness(t *testing.T, cfg config.Config, hostTools ...string) *harness {
	t.Helper()
	host := testutil.NewFakeHost(hostTools...)
	dialer := &testutil.CountingDialer{Dialer: host.Dialer()}
	client := remote.NewClient(dialer, fastOptions(), testutil.DiscardLogger())
	return &harness{
		host:   host,
		dialer: dialer,
		orch:   New(cfg, client, WithLogger(testutil.DiscardLogger()), WithClock(func() time.Time { return fixedNow })),
		sink:   &status.Recorder{},
	}
}

var eiffelReply = map[string]any{
	"location": map[string]any{
		"latitude":   48.8584,
		"longitude":  2.2945,
		"place_name": "Eiffel Tower, Paris, France",
	},
}

func TestRunGeocodeSuccess(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)
	h.host.Script(tools.ToolMapboxGeocoding, testutil.JSONReply(eiffelReply))

	q := query.MustNew(query.Geocode{Location: "Eiffel Tower"}, true)
	res := h.orch.Run(context.Background(), q, h.sink)

	require.True(t, res.OK(), "unexpected error: %s", res.Error)
	assert.Empty(t, res.Error)
	require.NotNil(t, res.Location)
	require.NotNil(t, res.Location.Latitude)
	require.NotNil(t, res.Location.Longitude)
	assert.Equal(t, 48.8584, *res.Location.Latitude)
	assert.Equal(t, 2.2945, *res.Location.Longitude)
	assert.Equal(t, "Eiffel Tower, Paris, France", res.Location.PlaceName)

	assert.Equal(t, ResultType, res.Type)
	assert.Equal(t, query.TypeGeocode, res.QueryType)
	assert.Equal(t, tools.ToolMapboxGeocoding, res.Tool)
	assert.Equal(t, "2026-03-01T12:00:00Z", res.Timestamp)
	assert.JSONEq(t, `{"queryType":"geocode","location":"Eiffel Tower","includeMap":true}`, res.OriginalInput)
	assert.Len(t, res.QueryID, 16)

	require.NotNil(t, res.MapTarget)
	assert.Equal(t, [2]float64{2.2945, 48.8584}, res.MapTarget.Center)
	assert.Contains(t, res.MapURL, "pin-s+ff0000(2.2945,48.8584)")
	assert.Contains(t, res.MapURL, "access_token=pk.test")

	assert.Equal(t, 1, h.dialer.Dials())
	assert.Equal(t, 1, h.host.Calls(tools.ToolMapboxGeocoding))
	assert.Equal(t, "Eiffel Tower", h.host.Args(tools.ToolMapboxGeocoding)["searchText"])

	assert.Equal(t, []string{
		`Processing geospatial query: "Eiffel Tower". Connecting to mapping service...`,
		`Connected to mapping service. Processing "Eiffel Tower"...`,
		"Successfully processed location query for: Eiffel Tower, Paris, France",
	}, h.sink.Texts())
}

func TestRunKeepsHostMapURLAndHonoursIncludeMap(t *testing.T) {
	reply := map[string]any{
		"location": eiffelReply["location"],
		"mapUrl":   "https://maps.example/eiffel",
	}

	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)
	h.host.Script(tools.ToolMapboxGeocoding, testutil.FencedReply(reply))

	withMap := h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Eiffel Tower"}, true), nil)
	require.True(t, withMap.OK())
	assert.Equal(t, "https://maps.example/eiffel", withMap.MapURL)

	noMap := h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Eiffel Tower"}, false), nil)
	require.True(t, noMap.OK())
	assert.Empty(t, noMap.MapURL)
	assert.NotNil(t, noMap.MapTarget)
}

func TestRunDirectionsWithoutToolNeverConnects(t *testing.T) {
	h := newHarness(t, testConfig(tools.ToolMapboxGeocoding, tools.ToolMapboxSearch), tools.ToolMapboxGeocoding)

	q := query.MustNew(query.Directions{Origin: "Paris", Destination: "Lyon"}, true)
	res := h.orch.Run(context.Background(), q, h.sink)

	assert.Equal(t, "no suitable tool", res.Error)
	assert.Equal(t, geoerr.KindNoTool, res.ErrorKind)
	assert.Nil(t, res.Location)
	assert.Equal(t, 0, h.dialer.Dials())
	assert.Equal(t, "Mapping service error: no suitable tool", h.sink.Last())
}

func TestRunMalformedReply(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)
	h.host.Script(tools.ToolMapboxGeocoding, testutil.Reply{Texts: []string{"not json"}})

	res := h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Atlantis"}, true), h.sink)

	assert.Nil(t, res.Location)
	assert.Equal(t, geoerr.MsgUnexpectedFormat, res.Error)
	assert.Equal(t, geoerr.KindNormalization, res.ErrorKind)
	assert.NotContains(t, res.Error, "not json")
	assert.Equal(t, 1, h.host.Calls(tools.ToolMapboxGeocoding))
}

func TestRunRejectsOutOfRangeReverseBeforeNetwork(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)

	res := h.orch.RunJSON(context.Background(),
		[]byte(`{"queryType":"reverse","coordinates":{"latitude":95,"longitude":0}}`), h.sink)

	assert.Equal(t, geoerr.KindValidation, res.ErrorKind)
	assert.NotEmpty(t, res.Error)
	assert.Nil(t, res.Location)
	assert.Equal(t, 0, h.dialer.Dials())
}

func TestRunUnavailableWithoutCredentials(t *testing.T) {
	cfg := testConfig()
	cfg.MapboxToken = ""
	h := newHarness(t, cfg, tools.ToolMapboxGeocoding)

	res := h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Rome"}, true), h.sink)

	assert.Equal(t, geoerr.MsgUnavailable, res.Error)
	assert.Equal(t, geoerr.KindConfiguration, res.ErrorKind)
	assert.Equal(t, 0, h.dialer.Dials())
	assert.Equal(t, []string{msgUnavailable}, h.sink.Texts())

	// A nil remote client is treated the same way.
	res = New(testConfig(), nil).Run(context.Background(), query.MustNew(query.Geocode{Location: "Rome"}, true), nil)
	assert.Equal(t, geoerr.KindConfiguration, res.ErrorKind)
}

func TestRunConnectionFailure(t *testing.T) {
	dialer := remote.DialerFunc(func(context.Context) (remote.Session, error) {
		return nil, errors.New("401 unauthorized")
	})
	orch := New(testConfig(), remote.NewClient(dialer, fastOptions(), testutil.DiscardLogger()),
		WithLogger(testutil.DiscardLogger()))
	sink := &status.Recorder{}

	res := orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Oslo"}, true), sink)

	assert.Equal(t, "connection failed", res.Error)
	assert.Equal(t, geoerr.KindConnection, res.ErrorKind)
	assert.Nil(t, res.Location)
	assert.Equal(t, "Mapping service error: connection failed", sink.Last())
}

func TestRunApplicationErrorIsVerbatim(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)
	h.host.Script(tools.ToolMapboxGeocoding, testutil.ErrorReply("Rate limit exceeded"))

	res := h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Oslo"}, true), h.sink)

	assert.Equal(t, "Rate limit exceeded", res.Error)
	assert.Equal(t, geoerr.KindInvocationApplication, res.ErrorKind)
	assert.Equal(t, 1, h.host.Calls(tools.ToolMapboxGeocoding))
	assert.Equal(t, "Mapping service error: Rate limit exceeded", h.sink.Last())
}

func TestRunReselectsAgainstLiveToolList(t *testing.T) {
	// The catalog promises the directions tool but the host only offers
	// calculate_distance.
	h := newHarness(t, testConfig(tools.ToolMapboxDirectionsByPlaces), tools.ToolCalculateDistance)
	h.host.Script(tools.ToolCalculateDistance, testutil.JSONReply(map[string]any{
		"from":     map[string]any{"name": "Golden Gate Bridge", "coordinates": map[string]any{"latitude": 37.8199, "longitude": -122.4783}},
		"to":       map[string]any{"name": "Alcatraz Island", "coordinates": map[string]any{"latitude": 37.8267, "longitude": -122.4230}},
		"distance": 12.4,
		"duration": 31,
	}))

	res := h.orch.RunText(context.Background(), "directions from Golden Gate Bridge to Alcatraz Island", "", h.sink)

	require.True(t, res.OK(), "unexpected error: %s", res.Error)
	assert.Equal(t, tools.ToolCalculateDistance, res.Tool)
	assert.Equal(t, query.TypeDirections, res.QueryType)
	assert.Equal(t, "Alcatraz Island", res.Location.PlaceName)
	require.NotNil(t, res.Route)
	assert.InDelta(t, 12.4, *res.Route.DistanceKm, 1e-9)

	args := h.host.Args(tools.ToolCalculateDistance)
	assert.Equal(t, "Golden Gate Bridge", args["from"])
	assert.Equal(t, "Alcatraz Island", args["to"])
	assert.Equal(t, "driving", args["profile"])
}

func TestRunDrawsRouteWhenGeometryReturned(t *testing.T) {
	h := newHarness(t, testConfig(tools.ToolCalculateDistance), tools.ToolCalculateDistance)
	h.host.Script(tools.ToolCalculateDistance, testutil.JSONReply(map[string]any{
		"from":           map[string]any{"name": "Sacramento", "coordinates": map[string]any{"latitude": 38.5, "longitude": -120.2}},
		"to":             map[string]any{"name": "Coast", "coordinates": map[string]any{"latitude": 43.252, "longitude": -126.453}},
		"distance":       700,
		"route_geometry": "_p~iF~ps|U_ulLnnqC_mqNvxq`@",
	}))

	res := h.orch.RunText(context.Background(), "distance from Sacramento to Coast", "", h.sink)

	require.True(t, res.OK(), "unexpected error: %s", res.Error)
	require.NotNil(t, res.Route)
	assert.Len(t, res.Route.Geometry, 3)
	assert.Contains(t, res.MapURL, "/path-5+f44(")
	assert.NotContains(t, res.MapURL, "pin-s")
}

func TestRunResultStaysEncodableWithNonFiniteDistance(t *testing.T) {
	h := newHarness(t, testConfig(tools.ToolCalculateDistance), tools.ToolCalculateDistance)
	h.host.Script(tools.ToolCalculateDistance, testutil.JSONReply(map[string]any{
		"location": map[string]any{"name": "Lyon", "latitude": 45.764, "longitude": 4.8357},
		"distance": "NaN",
		"duration": "Infinity",
	}))

	res := h.orch.RunText(context.Background(), "distance from Paris to Lyon", "", h.sink)

	require.True(t, res.OK(), "unexpected error: %s", res.Error)
	assert.Nil(t, res.Route)
	_, err := json.Marshal(res)
	assert.NoError(t, err)
}

func TestRunLiveToolListWithoutCandidate(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxSearch)

	res := h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Oslo"}, true), h.sink)

	assert.Equal(t, geoerr.KindNoTool, res.ErrorKind)
	assert.Equal(t, 1, h.dialer.Dials())
}

func TestRunTextRejectsUnparseableText(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxDirectionsByPlaces)

	res := h.orch.RunText(context.Background(), "give me directions", "", h.sink)

	assert.Equal(t, geoerr.KindValidation, res.ErrorKind)
	assert.Equal(t, query.TypeDirections, res.QueryType)
	assert.Equal(t, "give me directions", res.OriginalInput)
	assert.Equal(t, 0, h.dialer.Dials())
}

func TestRunCanceledContext(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := h.orch.Run(ctx, query.MustNew(query.Geocode{Location: "Oslo"}, true), h.sink)

	assert.Equal(t, geoerr.KindCanceled, res.ErrorKind)
	assert.Nil(t, res.Location)
	assert.Equal(t, 0, h.dialer.Dials())
}

// scriptedRemote drives the orchestrator without a session.
type scriptedRemote struct {
	invoke func() (*remote.Response, error)
	closes atomic.Int32
}

func (r *scriptedRemote) Connect(context.Context) (*remote.Handle, error) { return nil, nil }

func (r *scriptedRemote) Invoke(context.Context, *remote.Handle, string, map[string]any) (*remote.Response, error) {
	return r.invoke()
}

func (r *scriptedRemote) Close(context.Context, *remote.Handle) { r.closes.Add(1) }

func TestRunClosesExactlyOnce(t *testing.T) {
	tests := []struct {
		name   string
		invoke func() (*remote.Response, error)
		kind   geoerr.Kind
	}{
		{"invoke panics", func() (*remote.Response, error) { panic("transport exploded") }, geoerr.KindInternal},
		{"invoke fails", func() (*remote.Response, error) { return nil, geoerr.Transient("t", errors.New("reset")) }, geoerr.KindInvocationTransient},
		{"bad reply", func() (*remote.Response, error) { return remote.TextResponse("{}"), nil }, geoerr.KindNormalization},
		{"success", func() (*remote.Response, error) {
			return remote.TextResponse(`{"location":{"name":"Oslo","lat":59.91,"lng":10.75}}`), nil
		}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rc := &scriptedRemote{invoke: tt.invoke}
			orch := New(testConfig(), rc, WithLogger(testutil.DiscardLogger()))
			sink := &status.Recorder{}

			var res ToolResult
			require.NotPanics(t, func() {
				res = orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Oslo"}, true), sink)
			})

			assert.EqualValues(t, 1, rc.closes.Load())
			assert.Equal(t, tt.kind, res.ErrorKind)
			if tt.kind == "" {
				assert.True(t, res.OK())
			} else {
				assert.Nil(t, res.Location)
				assert.NotEmpty(t, res.Error)
				assert.True(t, strings.HasPrefix(sink.Last(), "Mapping service error: "))
			}
		})
	}
}

func TestRunSurvivesPanickingSink(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)
	h.host.Script(tools.ToolMapboxGeocoding, testutil.JSONReply(eiffelReply))
	bad := status.Func(func(context.Context, string) { panic("ui went away") })

	res := h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Eiffel Tower"}, true), bad)
	assert.True(t, res.OK())
}

func TestRunDoesNotWaitOnSlowSink(t *testing.T) {
	host := testutil.NewFakeHost(tools.ToolMapboxGeocoding)
	host.Script(tools.ToolMapboxGeocoding, testutil.JSONReply(eiffelReply))
	client := remote.NewClient(host.Dialer(), fastOptions(), testutil.DiscardLogger())
	orch := New(testConfig(), client,
		WithLogger(testutil.DiscardLogger()),
		WithStatusFlush(50*time.Millisecond))

	var got status.Recorder
	slow := status.Func(func(ctx context.Context, text string) {
		time.Sleep(300 * time.Millisecond)
		got.Emit(ctx, text)
	})

	start := time.Now()
	res := orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Eiffel Tower"}, true), slow)
	elapsed := time.Since(start)

	require.True(t, res.OK(), res.Error)
	assert.Less(t, elapsed, 300*time.Millisecond)
	require.Eventually(t, func() bool { return len(got.Texts()) >= 1 }, 2*time.Second, 10*time.Millisecond)
	assert.True(t, strings.HasPrefix(got.Texts()[0], "Processing geospatial query"))
}

func TestRunDeliversEveryStatusToFastSink(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)
	h.host.Script(tools.ToolMapboxGeocoding, testutil.JSONReply(eiffelReply))

	for range 20 {
		sink := &status.Recorder{}
		res := h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Eiffel Tower"}, true), sink)
		require.True(t, res.OK())
		require.Len(t, sink.Texts(), 3)
		assert.Equal(t, "Successfully processed location query for: Eiffel Tower, Paris, France", sink.Last())
	}
}

func TestConcurrentRunsAreIndependent(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)
	h.host.Script(tools.ToolMapboxGeocoding, testutil.JSONReply(eiffelReply))

	const n = 8
	var wg sync.WaitGroup
	results := make([]ToolResult, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Eiffel Tower"}, true), nil)
		}()
	}
	wg.Wait()

	for _, r := range results {
		assert.True(t, r.OK(), r.Error)
	}
	assert.Equal(t, n, h.dialer.Dials())
	assert.Equal(t, n, h.host.Calls(tools.ToolMapboxGeocoding))
}

func TestRunRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)

	host := testutil.NewFakeHost(tools.ToolMapboxGeocoding)
	host.Script(tools.ToolMapboxGeocoding, testutil.JSONReply(eiffelReply))
	client := remote.NewClient(host.Dialer(), fastOptions(), testutil.DiscardLogger(), remote.WithMetrics(rec))
	orch := New(testConfig(), client, WithMetrics(rec), WithLogger(testutil.DiscardLogger()))

	orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Eiffel Tower"}, true), nil)
	orch.Run(context.Background(), query.MustNew(query.Directions{Origin: "A", Destination: "B"}, true), nil)

	count, err := promtestutil.GatherAndCount(reg, "geoquery_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestToolResultJSON(t *testing.T) {
	h := newHarness(t, testConfig(), tools.ToolMapboxGeocoding)
	h.host.Script(tools.ToolMapboxGeocoding, testutil.JSONReply(eiffelReply))

	ok := h.orch.Run(context.Background(), query.MustNew(query.Geocode{Location: "Eiffel Tower"}, true), nil)
	b, err := json.Marshal(ok)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(b, &m))
	assert.Equal(t, "MAP_QUERY_TRIGGER", m["type"])
	assert.Equal(t, "geocode", m["queryType"])
	assert.NotContains(t, m, "error")
	loc := m["location"].(map[string]any)
	assert.Equal(t, "Eiffel Tower, Paris, France", loc["placeName"])

	failed := h.orch.Run(context.Background(), query.MustNew(query.Directions{Origin: "A", Destination: "B"}, true), nil)
	b, err = json.Marshal(failed)
	require.NoError(t, err)
	m = map[string]any{}
	require.NoError(t, json.Unmarshal(b, &m))
	assert.NotContains(t, m, "location")
	assert.Equal(t, "no_tool", m["errorKind"])
}

func TestFingerprintIsStable(t *testing.T) {
	assert.Equal(t, fingerprint(`{"a":1}`), fingerprint(`{"a":1}`))
	assert.NotEqual(t, fingerprint(`{"a":1}`), fingerprint(`{"a":2}`))
}
