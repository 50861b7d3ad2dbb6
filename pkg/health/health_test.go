package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func static(s Status) Check {
	return func(context.Context) ComponentHealth {
		return ComponentHealth{Status: s}
	}
}

func TestRunWorstStatus(t *testing.T) {
	c := NewChecker()
	assert.Equal(t, StatusUp, c.Run(context.Background()).Status)

	c.Register("index", static(StatusUp))
	c.Register("redis", static(StatusDegraded))
	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.Len(t, report.Components, 2)
	assert.NotEmpty(t, report.Components["index"].Latency)

	c.Register("index", static(StatusDown))
	assert.Equal(t, StatusDown, c.Run(context.Background()).Status)
}

func TestReadyHandler(t *testing.T) {
	c := NewChecker()
	c.Register("index", static(StatusUp))
	c.Register("redis", static(StatusDegraded))

	rec := httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	assert.Equal(t, StatusDegraded, report.Status)

	c.Register("index", static(StatusDown))
	rec = httptest.NewRecorder()
	c.ReadyHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestLiveHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewChecker().LiveHandler()(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"alive"}`, rec.Body.String())
}

func TestOptionalDownDegrades(t *testing.T) {
	c := NewChecker()
	c.Register("index", static(StatusUp))
	c.Register("redis", static(StatusDown), Optional())

	report := c.Run(context.Background())
	assert.Equal(t, StatusDegraded, report.Status)
	assert.True(t, report.Components["redis"].Optional)
	assert.Equal(t, []string{"redis"}, report.Unhealthy())
}

func TestCheckTimeout(t *testing.T) {
	c := NewChecker()
	c.Register("slow", func(ctx context.Context) ComponentHealth {
		<-ctx.Done()
		return ComponentHealth{Status: StatusUp}
	}, WithTimeout(10*time.Millisecond))

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Equal(t, "check timed out", report.Components["slow"].Message)
}

func TestCheckPanicIsDown(t *testing.T) {
	c := NewChecker()
	c.Register("index", func(context.Context) ComponentHealth { panic("boom") })

	report := c.Run(context.Background())
	assert.Equal(t, StatusDown, report.Status)
	assert.Contains(t, report.Components["index"].Message, "boom")
	assert.NotEmpty(t, report.Components["index"].Latency)
}
