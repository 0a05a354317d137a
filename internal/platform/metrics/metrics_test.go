package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schemabridge/internal/shared/events"
)

func scrape(t *testing.T, p *Processor) string {
	t.Helper()
	recorder := httptest.NewRecorder()
	p.Handler().ServeHTTP(recorder, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, recorder.Code)
	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)
	return string(body)
}

func TestProcessorExposesOutcomes(t *testing.T) {
	p := NewProcessor()
	p.Received(events.OldToNew)
	p.Received(events.OldToNew)
	p.Ignored(events.OldToNew, "snapshot")
	p.Applied(events.NewToOld, events.AggregateInvoice)
	p.Failed(events.OldToNew, events.AggregateCustomer)
	p.Deferred(events.OldToNew, 3)
	p.Resolved(events.OldToNew, "mapping")

	body := scrape(t, p)
	assert.Contains(t, body, `schemabridge_envelopes_received_total{direction="old_to_new"} 2`)
	assert.Contains(t, body, `schemabridge_envelopes_ignored_total{direction="old_to_new",reason="snapshot"} 1`)
	assert.Contains(t, body, `schemabridge_envelopes_applied_total{aggregate_type="INVOICE",direction="new_to_old"} 1`)
	assert.Contains(t, body, `schemabridge_envelopes_failed_total{aggregate_type="CUSTOMER",direction="old_to_new"} 1`)
	assert.Contains(t, body, `schemabridge_envelopes_deferred{direction="old_to_new"} 3`)
	assert.Contains(t, body, `schemabridge_dependencies_resolved_total{direction="old_to_new",source="mapping"} 1`)
}

func TestProcessorsDoNotShareRegistries(t *testing.T) {
	first, second := NewProcessor(), NewProcessor()
	first.Received(events.NewToOld)

	assert.Contains(t, scrape(t, first), `schemabridge_envelopes_received_total{direction="new_to_old"} 1`)
	assert.NotContains(t, scrape(t, second), `schemabridge_envelopes_received_total{direction="new_to_old"}`)
}
