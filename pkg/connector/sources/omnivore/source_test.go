package omnivore

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ajitpratap0/nebula-omnivore/pkg/config"
	"github.com/ajitpratap0/nebula-omnivore/pkg/connector/registry"
	"github.com/ajitpratap0/nebula-omnivore/pkg/errors"
	"github.com/ajitpratap0/nebula-omnivore/pkg/json"
	"github.com/ajitpratap0/nebula-omnivore/pkg/metrics"
	"github.com/ajitpratap0/nebula-omnivore/pkg/observability"
	"github.com/ajitpratap0/nebula-omnivore/pkg/state"
	"github.com/ajitpratap0/nebula-omnivore/pkg/stream"
	"github.com/ajitpratap0/nebula-omnivore/pkg/testutil"
)

func testConfig(baseURL string, streams ...string) *config.Config {
	cfg := config.Default()
	cfg.APIKey = "secret"
	cfg.BaseURL = baseURL
	cfg.UserAgent = "omnivore-test"
	cfg.Streams = streams
	cfg.Reliability.RetryAttempts = 3
	cfg.Reliability.RetryDelay = time.Millisecond
	cfg.Reliability.MaxRetryDelay = 5 * time.Millisecond
	return cfg
}

func newTestSource(t *testing.T, cfg *config.Config, opts ...Option) (*Source, *metrics.Metrics) {
	t.Helper()
	m := metrics.New(prometheus.NewRegistry())
	opts = append([]Option{WithLogger(testutil.TestLogger(t)), WithMetrics(m)}, opts...)
	src, err := New(cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close(context.Background()) })
	return src, m
}

const locationsPage = `{
	"_embedded": {"locations": [{"id": "L1", "name": "Downtown"}, {"id": "L2", "name": "Airport"}]},
	"_links": {"self": {"href": "{{base}}/locations"}}
}`

func TestSyncFollowsNextLink(t *testing.T) {
	api := testutil.NewHALServer(t)
	api.Handle("/locations", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("start") == "" {
			fmt.Fprintf(w, `{"_embedded": {"locations": [{"id": "L1"}]},
				"_links": {"next": {"href": "%s/locations?limit=1&start=1"}}}`, api.URL)
			return
		}
		_, _ = w.Write([]byte(`{"_embedded": {"locations": [{"id": "L2"}]}, "_links": {}}`))
	})

	cfg := testConfig(api.URL, "locations")
	cfg.MaxPagination = 2
	src, m := newTestSource(t, cfg)

	sink := &testutil.MemorySink{}
	require.NoError(t, src.Sync(testutil.TestContext(t), sink))

	assert.Equal(t, []string{"L1", "L2"}, sink.IDs("locations"))
	reqs := api.Requests("/locations")
	require.Len(t, reqs, 2)
	assert.Equal(t, "secret", reqs[0].Header.Get("Api-Key"))
	assert.Equal(t, "omnivore-test", reqs[0].Header.Get("User-Agent"))
	assert.Equal(t, "limit=1&start=1", reqs[1].URL.RawQuery)

	assert.Len(t, sink.States, 1)
	assert.Equal(t, 2.0, promtest.ToFloat64(m.PagesFetched.WithLabelValues("locations")))
	assert.Equal(t, 2.0, promtest.ToFloat64(m.RecordsEmitted.WithLabelValues("locations")))
}

func TestSyncStopsAtPageCap(t *testing.T) {
	api := testutil.NewHALServer(t)
	var page atomic.Int32
	api.Handle("/locations", func(w http.ResponseWriter, _ *http.Request) {
		n := page.Add(1)
		fmt.Fprintf(w, `{"_embedded": {"locations": [{"id": "L%d"}]},
			"_links": {"next": {"href": "%s/locations?start=%d"}}}`, n, api.URL, n)
	})

	cfg := testConfig(api.URL, "locations")
	cfg.MaxPagination = 2
	src, _ := newTestSource(t, cfg)

	sink := &testutil.MemorySink{}
	require.NoError(t, src.Sync(testutil.TestContext(t), sink))

	// the cap counts followed next links, so one more page than the cap is read
	assert.Len(t, api.Requests("/locations"), 3)
	assert.Equal(t, []string{"L1", "L2", "L3"}, sink.IDs("locations"))
}

func TestSyncHierarchy(t *testing.T) {
	api := testutil.NewHALServer(t)
	api.Collection("/locations", "locations", `{"id": "L1"}`)
	api.JSON("/locations/L1/tickets", `{
		"_embedded": {"tickets": [{
			"id": "T1",
			"opened_at": 1685620800,
			"totals": {"total": 1250, "tax": 100},
			"_links": {
				"self": {"href": "{{base}}/locations/L1/tickets/T1/"},
				"employee": {"href": "{{base}}/locations/L1/employees/200/"},
				"items": {"href": "{{base}}/locations/L1/tickets/T1/items/"}
			},
			"_embedded": {"employee": {"id": "200"}}
		}]}
	}`)
	api.JSON("/locations/L1/tickets/T1/items", `{
		"_embedded": {"items": [{"id": "I1", "price": 12.50}, {"id": "I2", "price": 3}]}
	}`)

	cfg := testConfig(api.URL, "tickets", "ticket_items")
	src, m := newTestSource(t, cfg)

	sink := &testutil.MemorySink{}
	require.NoError(t, src.Sync(testutil.TestContext(t), sink))

	assert.Empty(t, sink.IDs("locations"), "locations is traversed but not selected")
	require.Equal(t, []string{"T1"}, sink.IDs("tickets"))
	assert.Equal(t, []string{"I1", "I2"}, sink.IDs("ticket_items"))

	ticket := sink.Records[0]
	assert.Equal(t, map[string]string{"location_id": "L1"}, ticket.Context)
	assert.Equal(t, "200", ticket.Data["employee_id"])
	assert.Equal(t, json.Number("1250"), ticket.Data["totals_total"])
	assert.NotContains(t, ticket.Data, "items_id")
	for k := range ticket.Data {
		assert.False(t, strings.HasPrefix(k, "_links"), k)
		assert.False(t, strings.HasPrefix(k, "_embedded"), k)
	}

	item := sink.Records[1]
	assert.Equal(t, map[string]string{"location_id": "L1", "ticket_id": "T1"}, item.Context)
	assert.Equal(t, json.Number("12.50"), item.Data["price"])

	// only the selected branch is requested
	assert.Empty(t, api.Requests("/locations/L1/employees"))
	assert.Empty(t, api.Requests("/locations/L1/tickets/T1/discounts"))

	bookmark, ok := src.State().Get("tickets", stream.NewContext(map[string]string{"location_id": "L1"}))
	require.True(t, ok)
	assert.Equal(t, int64(1685620800), bookmark)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RecordsEmitted.WithLabelValues("tickets")))

	// one checkpoint per completed invocation: locations, tickets, ticket_items
	assert.Len(t, sink.States, 3)
}

func TestSyncLocationFilter(t *testing.T) {
	api := testutil.NewHALServer(t)
	api.JSON("/locations/L9", `{"id": "L9", "name": "Main", "_links": {"self": {"href": "{{base}}/locations/L9"}}}`)

	cfg := testConfig(api.URL, "locations")
	cfg.Locations = []config.Location{{ID: "L9"}}
	src, _ := newTestSource(t, cfg)

	sink := &testutil.MemorySink{}
	require.NoError(t, src.Sync(testutil.TestContext(t), sink))

	assert.Equal(t, 1, api.RequestCount())
	records := sink.Stream("locations")
	require.Len(t, records, 1)
	assert.Equal(t, "L9", records[0].Data["id"])
	assert.Equal(t, "Main", records[0].Data["name"])
	assert.Equal(t, map[string]string{"location_id": "L9"}, records[0].Context)
}

func TestSyncIncrementalFilter(t *testing.T) {
	tickets := `{"_embedded": {"tickets": [{"id": "T2", "opened_at": "2023-06-02T00:00:00.000000Z"}]}}`

	t.Run("bookmark", func(t *testing.T) {
		api := testutil.NewHALServer(t)
		api.JSON("/locations", `{"_embedded": {"locations": [{"id": "L1"}]}}`)
		api.JSON("/locations/L1/tickets", tickets)

		st := state.New()
		loc := stream.NewContext(map[string]string{"location_id": "L1"})
		st.Advance("tickets", loc, 1685620800)

		src, _ := newTestSource(t, testConfig(api.URL, "tickets"), WithState(st))
		require.NoError(t, src.Sync(testutil.TestContext(t), &testutil.MemorySink{}))

		reqs := api.Requests("/locations/L1/tickets")
		require.Len(t, reqs, 1)
		assert.Equal(t, "where=gte(opened_at,1685620800)", reqs[0].URL.RawQuery)

		bookmark, _ := st.Get("tickets", loc)
		assert.Equal(t, int64(1685664000), bookmark)
	})

	t.Run("start date", func(t *testing.T) {
		api := testutil.NewHALServer(t)
		api.JSON("/locations", `{"_embedded": {"locations": [{"id": "L1"}]}}`)
		api.JSON("/locations/L1/tickets", tickets)

		cfg := testConfig(api.URL, "tickets")
		cfg.StartDate = "2023-06-01T12:00:00.000000Z"
		src, _ := newTestSource(t, cfg)
		require.NoError(t, src.Sync(testutil.TestContext(t), &testutil.MemorySink{}))

		reqs := api.Requests("/locations/L1/tickets")
		require.Len(t, reqs, 1)
		assert.Equal(t, "gte(opened_at,1685620800)", reqs[0].URL.Query().Get("where"))
	})

	t.Run("no cursor", func(t *testing.T) {
		api := testutil.NewHALServer(t)
		api.JSON("/locations", `{"_embedded": {"locations": [{"id": "L1"}]}}`)
		api.JSON("/locations/L1/tickets", tickets)

		src, _ := newTestSource(t, testConfig(api.URL, "tickets"))
		require.NoError(t, src.Sync(testutil.TestContext(t), &testutil.MemorySink{}))

		reqs := api.Requests("/locations/L1/tickets")
		require.Len(t, reqs, 1)
		assert.Empty(t, reqs[0].URL.RawQuery)
	})

	t.Run("unparseable value", func(t *testing.T) {
		api := testutil.NewHALServer(t)
		api.JSON("/locations", `{"_embedded": {"locations": [{"id": "L1"}]}}`)
		api.JSON("/locations/L1/tickets", `{"_embedded": {"tickets": [
			{"id": "T1", "opened_at": "2023-06-01T12:00:00Z"},
			{"id": "T2", "opened_at": "yesterday"}
		]}}`)

		st := state.New()
		loc := stream.NewContext(map[string]string{"location_id": "L1"})
		st.Advance("tickets", loc, 1685600000)

		src, _ := newTestSource(t, testConfig(api.URL, "tickets"), WithState(st))
		sink := &testutil.MemorySink{}
		require.NoError(t, src.Sync(testutil.TestContext(t), sink))

		assert.Equal(t, []string{"T1", "T2"}, sink.IDs("tickets"))
		bookmark, _ := st.Get("tickets", loc)
		assert.Equal(t, int64(1685600000), bookmark)
	})
}

func TestSyncRepairsAndDropsRecords(t *testing.T) {
	api := testutil.NewHALServer(t)
	api.JSON("/locations", `{"_embedded": {"locations": [{"id": "L1"}]}}`)
	api.JSON("/locations/L1/employees", `{"_embedded": {"employees": [
		{"id": "E1", "first_name": "Ada"},
		{"id": null, "first_name": "Ghost"},
		{"id": "E2", "location_id": "L7"}
	]}}`)

	src, m := newTestSource(t, testConfig(api.URL, "employees"))
	sink := &testutil.MemorySink{}
	require.NoError(t, src.Sync(testutil.TestContext(t), sink))

	require.Equal(t, []string{"E1", "E2"}, sink.IDs("employees"))
	assert.Equal(t, "L1", sink.Records[0].Data["location_id"], "repaired from context")
	assert.Equal(t, "L7", sink.Records[1].Data["location_id"], "record value wins")
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RecordsSkipped.WithLabelValues("employees", metrics.ReasonMissingPrimaryKey)))
}

func TestSyncRetriesTransientErrors(t *testing.T) {
	api := testutil.NewHALServer(t)
	var calls atomic.Int32
	api.Handle("/locations", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"_embedded": {"locations": [{"id": "L1"}]}}`))
	})

	src, m := newTestSource(t, testConfig(api.URL, "locations"))
	sink := &testutil.MemorySink{}
	require.NoError(t, src.Sync(testutil.TestContext(t), sink))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"L1"}, sink.IDs("locations"))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.HTTPRetries.WithLabelValues("locations")))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.HTTPRequests.WithLabelValues("locations", "503")))
}

func TestRegistrySourceWithOptions(t *testing.T) {
	api := testutil.NewHALServer(t)
	var calls atomic.Int32
	api.Handle("/locations", func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"_embedded": {"locations": [{"id": "L1"}]}}`))
	})

	created, err := registry.CreateSource(Name, testConfig(api.URL, "locations"))
	require.NoError(t, err)
	src, ok := created.(*Source)
	require.True(t, ok)
	t.Cleanup(func() { _ = src.Close(context.Background()) })

	observed, logs := observer.New(zap.InfoLevel)
	st := state.New()
	m := metrics.New(prometheus.NewRegistry())
	require.NoError(t, src.Apply(WithLogger(zap.New(observed)), WithMetrics(m), WithState(st)))
	assert.Same(t, st, src.State())

	sink := &testutil.MemorySink{}
	require.NoError(t, src.Sync(testutil.TestContext(t), sink))
	assert.Equal(t, []string{"L1"}, sink.IDs("locations"))
	assert.Equal(t, 1.0, promtest.ToFloat64(m.HTTPRetries.WithLabelValues("locations")))

	finished := logs.FilterMessage("sync finished").All()
	require.Len(t, finished, 1)
	fields := finished[0].ContextMap()
	assert.Equal(t, int64(2), fields["http_requests"])
	assert.Equal(t, int64(1), fields["http_failures"])
	assert.Equal(t, int64(1), fields["records"])
	assert.Equal(t, Name, fields["connector"])

	retries := logs.FilterMessage("retrying request").All()
	require.Len(t, retries, 1)
	assert.Equal(t, "locations", retries[0].ContextMap()["stream"])
}

func TestSyncProcessesUnexpectedStatus(t *testing.T) {
	api := testutil.NewHALServer(t)
	api.Handle("/locations", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"_embedded": {"locations": [{"id": "L1"}]}}`))
	})

	src, m := newTestSource(t, testConfig(api.URL, "locations"))
	sink := &testutil.MemorySink{}
	require.NoError(t, src.Sync(testutil.TestContext(t), sink))

	assert.Len(t, api.Requests("/locations"), 1, "404 is not retried")
	assert.Equal(t, []string{"L1"}, sink.IDs("locations"))
	assert.Equal(t, 0.0, promtest.ToFloat64(m.HTTPRetries.WithLabelValues("locations")))
}

func TestSyncMalformedResponse(t *testing.T) {
	api := testutil.NewHALServer(t)
	api.JSON("/locations", `<html>gateway</html>`)

	src, _ := newTestSource(t, testConfig(api.URL, "locations"))
	sink := &testutil.MemorySink{}
	require.NoError(t, src.Sync(testutil.TestContext(t), sink))

	assert.Empty(t, sink.Records)
	assert.Len(t, sink.States, 1)
	assert.Len(t, api.Requests("/locations"), 1)
}

func TestSyncCollectsFailures(t *testing.T) {
	setup := func(t *testing.T) *testutil.HALServer {
		api := testutil.NewHALServer(t)
		api.JSON("/locations", locationsPage)
		api.Handle("/locations/L1/tickets", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		api.JSON("/locations/L2/tickets", `{"_embedded": {"tickets": [{"id": "T9", "opened_at": 1}]}}`)
		return api
	}

	t.Run("continue", func(t *testing.T) {
		api := setup(t)
		src, m := newTestSource(t, testConfig(api.URL, "tickets"))
		sink := &testutil.MemorySink{}

		err := src.Sync(testutil.TestContext(t), sink)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "all 3 attempts failed")
		assert.True(t, errors.IsType(err, errors.ErrorTypeRetriableAPI))

		assert.Len(t, api.Requests("/locations/L1/tickets"), 3)
		assert.Equal(t, []string{"T9"}, sink.IDs("tickets"))
		assert.Equal(t, 1.0, promtest.ToFloat64(m.StreamFailures.WithLabelValues("tickets")))
	})

	t.Run("fail fast", func(t *testing.T) {
		api := setup(t)
		cfg := testConfig(api.URL, "tickets")
		cfg.Reliability.FailFast = true
		src, _ := newTestSource(t, cfg)
		sink := &testutil.MemorySink{}

		require.Error(t, src.Sync(testutil.TestContext(t), sink))
		assert.Empty(t, api.Requests("/locations/L2/tickets"))
		assert.Empty(t, sink.Records)
	})
}

func TestSyncInvalidStartDate(t *testing.T) {
	api := testutil.NewHALServer(t)
	api.JSON("/locations", `{"_embedded": {"locations": [{"id": "L1"}]}}`)

	cfg := testConfig(api.URL, "tickets")
	cfg.StartDate = "last tuesday"
	src, _ := newTestSource(t, cfg)

	err := src.Sync(testutil.TestContext(t), &testutil.MemorySink{})
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeInvalidCursor))
	assert.Empty(t, api.Requests("/locations/L1/tickets"))
}

func TestSyncCancelled(t *testing.T) {
	api := testutil.NewHALServer(t)
	api.JSON("/locations", locationsPage)
	src, _ := newTestSource(t, testConfig(api.URL))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := src.Sync(ctx, &testutil.MemorySink{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, api.RequestCount())
}

func TestSyncRecordsSpans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	observability.SetTracerProvider(tp)
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	api := testutil.NewHALServer(t)
	api.JSON("/locations", `{"_embedded": {"locations": [{"id": "L1"}]}}`)
	src, _ := newTestSource(t, testConfig(api.URL, "locations"))
	require.NoError(t, src.Sync(testutil.TestContext(t), &testutil.MemorySink{}))

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	assert.Equal(t, []string{"http.get", "stream.sync"}, names)
}

func TestNewRejectsUnknownStream(t *testing.T) {
	_, err := New(testConfig("https://api.omnivore.io/1.0", "receipts"), WithLogger(testutil.TestLogger(t)))
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}

func TestDiscover(t *testing.T) {
	src, _ := newTestSource(t, testConfig("https://api.omnivore.io/1.0"))
	c, err := src.Discover(context.Background())
	require.NoError(t, err)
	assert.Len(t, c.Names(), 31)
	assert.Equal(t, Name, src.Name())
}

func TestPostProcess(t *testing.T) {
	src, m := newTestSource(t, testConfig("https://api.omnivore.io/1.0"))
	def := stream.Definition{Name: "tickets", PrimaryKeys: []string{"id"}, ReplicationKey: "opened_at"}
	ctx := stream.NewContext(map[string]string{"location_id": "L1", "opened_at": "1"})

	data, ok := src.postProcess(def, ctx, map[string]interface{}{"id": "T1"})
	require.True(t, ok)
	assert.Equal(t, "1", data["opened_at"], "replication key repaired from context")

	_, ok = src.postProcess(def, stream.Context{}, map[string]interface{}{"id": "T1"})
	assert.False(t, ok)
	assert.Equal(t, 1.0, promtest.ToFloat64(m.RecordsSkipped.WithLabelValues("tickets", metrics.ReasonMissingReplicationKey)))
}
