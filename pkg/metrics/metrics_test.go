package metrics_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mailpipe/pkg/metrics"
)

// scrape returns the Prometheus exposition served by the provider.
func scrape(t *testing.T, p *metrics.Provider) string {
	t.Helper()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

// assertMetricLine matches name{...labels...} value, ignoring scope labels added by the exporter.
func assertMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	assert.Regexp(t, name+`\{[^}]*`+labels+`[^}]*\} `+value, output)
}

func TestProvider(t *testing.T) {
	t.Parallel()

	p, err := metrics.NewProvider("mailpipe")
	require.NoError(t, err)
	assert.NotNil(t, p.MeterProvider())
	assert.Equal(t, "mailpipe", p.Namespace())
	require.NoError(t, p.Shutdown(context.Background()))

	var nilProvider *metrics.Provider
	require.NoError(t, nilProvider.Shutdown(context.Background()))
}

func TestDeliveryMetrics(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	p, err := metrics.NewProvider("mailpipe")
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	m, err := metrics.NewDeliveryMetrics(p.MeterProvider(), p.Namespace())
	require.NoError(t, err)

	m.RecordOutcome(ctx, "sent")
	m.RecordOutcome(ctx, "sent")
	m.RecordOutcome(ctx, "failed")
	m.RecordTick(ctx, 150*time.Millisecond, 20, "ok")
	m.RecordReleased(ctx, 3)
	m.RecordReleased(ctx, 0)
	m.RecordCampaignCompleted(ctx, 1)

	out := scrape(t, p)
	assertMetricLine(t, out, "mailpipe_delivery_items_total", `outcome="sent"`, "2")
	assertMetricLine(t, out, "mailpipe_delivery_items_total", `outcome="failed"`, "1")
	assertMetricLine(t, out, "mailpipe_delivery_ticks_total", `status="ok"`, "1")
	assertMetricLine(t, out, "mailpipe_delivery_leases_released_total", ``, "3")
	assertMetricLine(t, out, "mailpipe_campaigns_completed_total", ``, "1")
	assert.Contains(t, out, "mailpipe_delivery_tick_duration_seconds")
}

func TestNoOp(t *testing.T) {
	t.Parallel()

	m := metrics.NewNoOp()
	assert.NotPanics(t, func() {
		m.RecordOutcome(context.Background(), "sent")
		m.RecordTick(context.Background(), time.Second, 1, "ok")
		m.RecordReleased(context.Background(), 1)
		m.RecordCampaignCompleted(context.Background(), 1)
	})
}
