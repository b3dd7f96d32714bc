package observability

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/harun/sqlpilot/internal/tracing"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	m := getMetrics()

	before := testutil.ToFloat64(m.databaseOpsTotal.WithLabelValues("execute", "error"))
	RecordDatabaseOperation("execute", 5*time.Millisecond, false)
	assert.Equal(t, before+1, testutil.ToFloat64(m.databaseOpsTotal.WithLabelValues("execute", "error")))

	before = testutil.ToFloat64(m.toolErrorsTotal.WithLabelValues("query_data"))
	RecordToolExecution("query_data", time.Millisecond, false)
	assert.Equal(t, before+1, testutil.ToFloat64(m.toolErrorsTotal.WithLabelValues("query_data")))

	before = testutil.ToFloat64(m.selectionChanges.WithLabelValues("selected"))
	RecordSelection("selected")
	assert.Equal(t, before+1, testutil.ToFloat64(m.selectionChanges.WithLabelValues("selected")))

	SetProviderCooldown("openai", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.providerCooldown.WithLabelValues("openai")))
	SetProviderCooldown("openai", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.providerCooldown.WithLabelValues("openai")))

	assert.NotNil(t, MetricsHandler())
}

func TestAuditLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit", "audit.jsonl")
	require.NoError(t, InitAuditLogger(path))

	ctx := tracing.WithTraceID(context.Background(), "trace-1")
	RecordSelectionAudit(ctx, "default", "sakila.db", "success")
	RecordQueryAudit(ctx, "default", "sakila.db", "SELECT 1", "success", nil)
	require.NoError(t, GetAuditLogger().Close())

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var events []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var event map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &event))
		events = append(events, event)
	}
	require.Len(t, events, 2)

	assert.Equal(t, "selection", events[0]["type"])
	assert.Equal(t, "select:sakila.db", events[0]["action"])
	assert.Equal(t, "trace-1", events[0]["trace_id"])

	metadata, ok := events[1]["metadata"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "SELECT 1", metadata["sql"])
	assert.Equal(t, "sakila.db", metadata["database"])
}
