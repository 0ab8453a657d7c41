package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nuvla/job-engine-sub001/action"
	"github.com/nuvla/job-engine-sub001/config"
	"github.com/nuvla/job-engine-sub001/coord"
	"github.com/nuvla/job-engine-sub001/distribution"
	"github.com/nuvla/job-engine-sub001/errors"
	enginetest "github.com/nuvla/job-engine-sub001/internal/testing"
	"github.com/nuvla/job-engine-sub001/resource/resourcetest"
)

func testConfig() *config.Config {
	return &config.Config{
		Name: "engine-test",
		Coord: config.CoordConfig{
			Hosts:              []string{"127.0.0.1:1"},
			Prefix:             "/job-engine",
			SessionTTLSeconds:  10,
			DialTimeoutSeconds: 1,
		},
		API: config.APIConfig{Endpoint: "https://localhost", TimeoutSeconds: 5},
		Executor: config.ExecutorConfig{
			Workers:       2,
			FetchAttempts: 1,
		},
		Distributor: config.DistributorConfig{
			Exclude:   []string{"skipped"},
			Intervals: map[string]int{"cleanup_jobs": 60},
		},
	}
}

func TestIdentity(t *testing.T) {
	a, b := Identity("exec"), Identity("exec")
	assert.True(t, strings.HasPrefix(a, "exec-"))
	assert.Len(t, a, len("exec-")+8)
	assert.NotEqual(t, a, b)
}

func TestComposeRunsExecutor(t *testing.T) {
	cfg := testConfig()
	server, queue := enginetest.QueuedServer(t)
	rt := Compose(cfg, server, queue, coord.NewMemoryElector(), zaptest.NewLogger(t).Sugar())

	_, raw := rt.Queue.(*coord.MemoryQueue)
	assert.False(t, raw, "queue is wrapped")

	registry := action.NewRegistry(rt.Logger, action.Registration{
		Name: "noop",
		New: func(*action.Context) action.Action {
			return action.Func(func(context.Context) (int, error) { return 0, nil })
		},
	})
	id, err := server.Add(context.Background(), "job", map[string]any{"action": "noop"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rt.Executor(registry).Run(ctx) }()
	require.Eventually(t, func() bool { return queue.Len() == 0 }, 5*time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	doc, _ := server.Doc(id)
	assert.Equal(t, "SUCCESS", doc["state"])
	require.NoError(t, rt.Close())
}

type namedDistribution string

func (n namedDistribution) Name() string                   { return string(n) }
func (n namedDistribution) CollectInterval() time.Duration { return time.Hour }
func (n namedDistribution) Generate(context.Context, func(distribution.Descriptor) error) error {
	return nil
}

func TestDistributorUsesConfig(t *testing.T) {
	cfg := testConfig()
	rt := Compose(cfg, resourcetest.New(), coord.NewMemoryQueue(), coord.NewMemoryElector(), nil)

	d := rt.Distributor([]distribution.Distribution{namedDistribution("cleanup_jobs"), namedDistribution("skipped")})
	enabled := d.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "cleanup_jobs", enabled[0].Name())
	assert.Equal(t, time.Minute, rt.Intervals.For("cleanup_jobs", time.Hour))

	reloaded := testConfig()
	reloaded.Distributor.Intervals = map[string]int{"cleanup_jobs": 5}
	require.NoError(t, rt.Reload(reloaded))
	assert.Equal(t, 5*time.Second, d.Intervals.For("cleanup_jobs", time.Hour))
}

func TestNewFailsWhenAuthenticationFails(t *testing.T) {
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"status":401,"message":"invalid credentials"}`))
	}))
	t.Cleanup(api.Close)

	cfg := testConfig()
	cfg.API.Endpoint = api.URL
	cfg.API.Key = "credential/abc"
	cfg.API.Secret = "wrong"

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t).Sugar())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
	assert.Contains(t, err.Error(), "cannot authenticate")
}

func TestStandaloneRunsJobByID(t *testing.T) {
	server := resourcetest.New()
	server.Put(map[string]any{"id": "job/pull", "action": "noop", "state": "QUEUED", "execution-mode": "pull"})
	rt := Standalone(testConfig(), server, zaptest.NewLogger(t).Sugar())

	registry := action.NewRegistry(rt.Logger, action.Registration{
		Name: "noop",
		New: func(*action.Context) action.Action {
			return action.Func(func(context.Context) (int, error) { return 0, nil })
		},
	})
	require.NoError(t, rt.Executor(registry).RunOne(context.Background(), "job/pull"))
	doc, _ := server.Doc("job/pull")
	assert.Equal(t, "SUCCESS", doc["state"])
}
