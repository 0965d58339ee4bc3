package schemavalidation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authscan/internal/authlog"
	"authscan/internal/detect"
	"authscan/internal/report"
)

func loadFixture(t *testing.T) map[string]any {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", "report-v1.json"))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	return doc
}

func TestSchemaCompiles(t *testing.T) {
	s, err := schema()
	require.NoError(t, err)
	assert.NotNil(t, s)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(ReportSchema(), &raw))
	assert.Equal(t, ReportSchemaURL, raw["$id"])
}

func TestFixtureValidates(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("testdata", "report-v1.json"))
	require.NoError(t, err)
	assert.NoError(t, ValidateReport(data))
}

func TestGeneratedReportValidates(t *testing.T) {
	zone := time.FixedZone("TEST", -5*60*60)
	base := time.Date(2024, 3, 15, 10, 0, 0, 0, zone)

	var records []authlog.Record
	for i := range 5 {
		records = append(records, authlog.NewRecord(base.Add(time.Duration(i)*time.Minute), "bob", "10.0.0.5", authlog.OutcomeFailed))
	}
	records = append(records,
		authlog.NewRecord(base.Add(12*time.Hour), "alice", "192.168.1.20", authlog.OutcomeSuccess),
		authlog.NewRecord(base.Add(12*time.Hour+time.Minute), "alice", "192.168.1.21", authlog.OutcomeSuccess),
	)

	cfg := detect.DefaultConfig()
	cfg.Location = zone
	events := detect.DetectAll(records, cfg)
	require.Len(t, events, 4)

	doc := report.NewDocument(records, events, cfg)
	doc.RunID = "3f2b8c1e-9a4d-4c6b-8e1f-2a7d5b9c0e13"
	doc.Input = report.InputInfo{Path: "auth.log", Lines: 7}
	doc.GeneratedAt = base

	assert.NoError(t, ValidateValue(doc))
}

func TestEmptyReportValidates(t *testing.T) {
	doc := report.NewDocument(nil, nil, detect.DefaultConfig())
	doc.GeneratedAt = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.NoError(t, ValidateValue(doc))
}

func TestSchemaRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(doc map[string]any)
	}{
		{"missing events", func(doc map[string]any) { delete(doc, "events") }},
		{"wrong version", func(doc map[string]any) { doc["schema_version"] = 2 }},
		{"bad run id", func(doc map[string]any) { doc["run_id"] = "not-a-uuid" }},
		{"bad timestamp", func(doc map[string]any) { doc["generated_at"] = "yesterday" }},
		{"unknown field", func(doc map[string]any) { doc["extra"] = true }},
		{"bad digest", func(doc map[string]any) {
			doc["input"].(map[string]any)["digest"] = "xyz"
		}},
		{"zero threshold", func(doc map[string]any) {
			doc["settings"].(map[string]any)["failed_threshold"] = 0
		}},
		{"unknown kind", func(doc map[string]any) {
			ev := doc["events"].([]any)[0].(map[string]any)
			ev["kind"] = "brute_force"
		}},
		{"empty sources", func(doc map[string]any) {
			ev := doc["events"].([]any)[0].(map[string]any)
			ev["sources"] = []any{}
		}},
		{"duplicate sources", func(doc map[string]any) {
			ev := doc["events"].([]any)[0].(map[string]any)
			ev["sources"] = []any{"10.0.0.1", "10.0.0.1"}
		}},
		{"zero count", func(doc map[string]any) {
			ev := doc["events"].([]any)[0].(map[string]any)
			ev["count"] = 0
		}},
		{"unknown kind key", func(doc map[string]any) {
			byKind := doc["summary"].(map[string]any)["events_by_kind"].(map[string]any)
			byKind["other"] = 1
		}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			doc := loadFixture(t)
			tc.mutate(doc)
			assert.Error(t, ValidateValue(doc))
		})
	}
}

func TestValidateReportRejectsMalformedJSON(t *testing.T) {
	assert.Error(t, ValidateReport([]byte("{not json")))
}
