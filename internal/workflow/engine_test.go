package workflow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/aggregate"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/config"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/identity"
	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/probe"
)

const (
	calendar = "https://www.googleapis.com/auth/calendar"
	drive    = "https://www.googleapis.com/auth/drive"
)

// fakeAuth answers probes by looking up the scope, or the app for discovery,
// in a table of response bodies.
type fakeAuth struct {
	mu       sync.Mutex
	byScope  map[string]string
	byApp    map[string]string
	requests int
}

func (f *fakeAuth) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	form, _ := url.ParseQuery(string(raw))

	f.mu.Lock()
	f.requests++
	f.mu.Unlock()

	scope := strings.TrimPrefix(form.Get("service"), "oauth2:")
	if body, ok := f.byScope[scope]; ok {
		io.WriteString(w, body)
		return
	}
	if body, ok := f.byApp[form.Get("app")]; ok {
		io.WriteString(w, body)
		return
	}
	io.WriteString(w, "Auth=ya29.token\nExpiry=3600\n")
}

func newEngine(t *testing.T, endpoint string, hc *http.Client, markers []string, workers int) *Engine {
	t.Helper()
	cfg := probe.ConfigFrom(config.Default().Probe, "refresh-token", markers)
	cfg.Endpoint = endpoint
	client, err := probe.NewClient(hc, cfg, probe.WithSleep(func(ctx context.Context, _ time.Duration) error {
		return ctx.Err()
	}))
	require.NoError(t, err)

	engine, err := NewEngine(client, config.WorkerConfig{Count: workers}, nil)
	require.NoError(t, err)
	return engine
}

func TestValidateScopes_ScenarioA_Approved(t *testing.T) {
	srv := httptest.NewServer(&fakeAuth{})
	defer srv.Close()

	engine := newEngine(t, srv.URL, srv.Client(), probe.ScopeMarkers(), 4)
	report, err := engine.ValidateScopes(context.Background(),
		map[string][]string{"com.example.app": {"deadbeef"}},
		[]string{calendar},
	)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{"com.example.app": {calendar}}, aggregate.ScopesByPackage(report.Records))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 1, report.Stats.Approved)
}

func TestValidateScopes_ScenarioB_Rejected(t *testing.T) {
	srv := httptest.NewServer(&fakeAuth{byScope: map[string]string{
		calendar: "Error=UNREGISTERED_ON_API_CONSOLE\n",
	}})
	defer srv.Close()

	engine := newEngine(t, srv.URL, srv.Client(), probe.ScopeMarkers(), 4)
	report, err := engine.ValidateScopes(context.Background(),
		map[string][]string{"com.example.app": {"deadbeef"}},
		[]string{calendar},
	)
	require.NoError(t, err)

	assert.Empty(t, aggregate.ScopesByPackage(report.Records))
	assert.Equal(t, 1, report.Stats.Rejected)
}

func TestValidateScopes_ScenarioC_MixedNoDuplicates(t *testing.T) {
	fake := &fakeAuth{byScope: map[string]string{
		drive: "Error=RESTRICTED_CLIENT\n",
	}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	engine := newEngine(t, srv.URL, srv.Client(), probe.ScopeMarkers(), 3)
	report, err := engine.ValidateScopes(context.Background(),
		map[string][]string{"com.example.app": {"deadbeef", "DEADBEEF"}},
		[]string{calendar, drive, calendar},
	)
	require.NoError(t, err)

	assert.Equal(t, map[string][]string{"com.example.app": {calendar}}, aggregate.ScopesByPackage(report.Records))
	assert.Equal(t, 2, fake.requests)
}

func TestValidateScopes_ScenarioD_TransportFailure(t *testing.T) {
	var calls atomic.Int32
	hc := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("connection refused")
	})}

	engine := newEngine(t, "http://auth.invalid/auth", hc, probe.ScopeMarkers(), 2)
	report, err := engine.ValidateScopes(context.Background(),
		map[string][]string{"com.example.app": {"deadbeef"}},
		[]string{calendar},
	)
	require.NoError(t, err)

	assert.Empty(t, report.Records)
	assert.Equal(t, 1, report.Stats.Transient)
	assert.Equal(t, int32(config.DefaultMaxAttempts), calls.Load())
}

func TestValidateScopes_ManyWorkersSplitIdentities(t *testing.T) {
	srv := httptest.NewServer(&fakeAuth{byScope: map[string]string{
		"scope-3": "Error=RESTRICTED_CLIENT\n",
	}})
	defer srv.Close()

	scopes := []string{"scope-0", "scope-1", "scope-2", "scope-3", "scope-4"}
	clients := map[string][]string{
		"com.a.app": {"01", "02"},
		"com.b.app": {"03"},
	}

	engine := newEngine(t, srv.URL, srv.Client(), probe.ScopeMarkers(), 8)
	report, err := engine.ValidateScopes(context.Background(), clients, scopes)
	require.NoError(t, err)

	want := []string{"scope-0", "scope-1", "scope-2", "scope-4"}
	got := aggregate.ScopesByPackage(report.Records)
	assert.Equal(t, want, got["com.a.app"])
	assert.Equal(t, want, got["com.b.app"])
	require.Len(t, report.Records, 3)
	for _, r := range report.Records {
		assert.Equal(t, want, r.Scopes, r.Package+"/"+r.Signature)
	}
}

func TestDiscover(t *testing.T) {
	srv := httptest.NewServer(&fakeAuth{byApp: map[string]string{
		"com.missing.app":    "Error=UNREGISTERED_ON_API_CONSOLE\n",
		"com.restricted.app": "Error=RESTRICTED_CLIENT\n",
	}})
	defer srv.Close()

	engine := newEngine(t, srv.URL, srv.Client(), probe.DiscoveryMarkers(), 4)
	report, err := engine.Discover(context.Background(),
		[]string{"com.example.app", "com.missing.app", "com.restricted.app"},
		[]string{"deadbeef"},
	)
	require.NoError(t, err)

	clients := aggregate.ClientsByPackage(report.Records)
	require.Len(t, clients, 2)
	assert.NotContains(t, clients, "com.missing.app")

	want := identity.EncodeToken("com.example.app", []byte{0xde, 0xad, 0xbe, 0xef})
	assert.Equal(t, []aggregate.Client{{Sig: "deadbeef", Token: want}}, clients["com.example.app"])
	assert.Len(t, clients["com.restricted.app"], 1)
}

func TestDiscover_MalformedSignature(t *testing.T) {
	var calls atomic.Int32
	hc := &http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		calls.Add(1)
		return nil, errors.New("unreachable")
	})}

	engine := newEngine(t, "http://auth.invalid/auth", hc, probe.DiscoveryMarkers(), 2)
	_, err := engine.Discover(context.Background(), []string{"com.example.app"}, []string{"zz"})
	assert.ErrorIs(t, err, identity.ErrInvalidSignature)
	assert.Zero(t, calls.Load())
}

func TestEngine_NoTasks(t *testing.T) {
	engine := newEngine(t, "http://auth.invalid/auth", http.DefaultClient, probe.ScopeMarkers(), 1)
	_, err := engine.ValidateScopes(context.Background(), nil, []string{calendar})
	assert.ErrorIs(t, err, ErrNoTasks)
}

func TestNewEngine_Validation(t *testing.T) {
	prober := core.ProberFunc(func(context.Context, core.Task) core.Result { return core.Result{} })

	_, err := NewEngine(nil, config.WorkerConfig{Count: 1}, nil)
	assert.Error(t, err)

	_, err = NewEngine(prober, config.WorkerConfig{Count: 0}, nil)
	assert.Error(t, err)
}

func TestEngine_PanickingProberCompletes(t *testing.T) {
	prober := core.ProberFunc(func(_ context.Context, task core.Task) core.Result {
		if task.Scope == "boom" {
			panic("prober fault")
		}
		return core.Result{Task: task, Outcome: core.Approved, Attempts: 1}
	})
	engine, err := NewEngine(prober, config.WorkerConfig{Count: 2}, nil)
	require.NoError(t, err)

	report, err := engine.ValidateScopes(context.Background(),
		map[string][]string{"com.example.app": {"deadbeef"}},
		[]string{"boom", calendar},
	)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Stats.Panics)
	assert.Equal(t, map[string][]string{"com.example.app": {calendar}}, aggregate.ScopesByPackage(report.Records))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestEngine_TaskCountHook(t *testing.T) {
	prober := core.ProberFunc(func(_ context.Context, task core.Task) core.Result {
		return core.Result{Task: task, Outcome: core.Rejected, Attempts: 1}
	})

	var gotName string
	var gotTotal int
	engine, err := NewEngine(prober, config.WorkerConfig{Count: 2}, nil,
		WithTaskCount(func(name string, total int) {
			gotName, gotTotal = name, total
		}),
	)
	require.NoError(t, err)

	_, err = engine.Discover(context.Background(), []string{"com.a.app", "com.b.app"}, []string{"01", "02", "03"})
	require.NoError(t, err)
	assert.Equal(t, "discover", gotName)
	assert.Equal(t, 6, gotTotal)
}
