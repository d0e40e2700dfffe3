package lambdaboot

import (
	"strings"
	"testing"
	"time"

	"github.com/fpang/auction-catalog/internal/enrich"
	"github.com/fpang/auction-catalog/internal/grouping"
)

func envMap(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func baseEnv() map[string]string {
	return map[string]string{
		"BUCKET_NAME":   "catalog-bucket",
		"ITEMS_TABLE":   "items",
		"IMAGES_TABLE":  "images",
		"COUNTER_TABLE": "counter",
	}
}

func TestLoadSettingsDefaults(t *testing.T) {
	s, err := LoadSettings(envMap(baseEnv()))
	if err != nil {
		t.Fatal(err)
	}
	if s.Model != "gpt-4o-mini" || s.MaxTokens != 1000 || s.BaseURL != "https://api.openai.com/v1" {
		t.Errorf("ai settings = %+v", s)
	}
	if s.KeyParam != DefaultKeyParam || s.OpenAIKey != "" {
		t.Errorf("credential settings = %q %q", s.KeyParam, s.OpenAIKey)
	}
	if s.PublicBase != "https://catalog-bucket.s3.amazonaws.com" {
		t.Errorf("public base = %q", s.PublicBase)
	}
	if s.EnrichConcurrency != 4 || s.EnrichTimeout != 60*time.Second || s.RequestRate != 2 || s.Burst != 2 {
		t.Errorf("tuning = %+v", s)
	}
	if s.Grouping != grouping.Contiguous || s.Merge != enrich.DiscoveredWins {
		t.Errorf("policies = %s %s", s.Grouping, s.Merge)
	}
}

func TestLoadSettingsOverrides(t *testing.T) {
	env := baseEnv()
	env["ENRICH_CONCURRENCY"] = "1"
	env["ENRICH_TIMEOUT"] = "15s"
	env["AI_REQUESTS_PER_SECOND"] = "0.5"
	env["GROUPING_POLICY"] = "interleaved"
	env["METADATA_MERGE"] = "caller-wins"
	env["PUBLIC_IMAGE_BASE_URL"] = "https://cdn.example.com"
	env["BATCHES_TABLE"] = "batches"

	s, err := LoadSettings(envMap(env))
	if err != nil {
		t.Fatal(err)
	}
	if s.EnrichConcurrency != 1 || s.EnrichTimeout != 15*time.Second || s.RequestRate != 0.5 {
		t.Errorf("tuning = %+v", s)
	}
	if s.Grouping != grouping.Interleaved || s.Merge != enrich.CallerWins {
		t.Errorf("policies = %s %s", s.Grouping, s.Merge)
	}
	if s.PublicBase != "https://cdn.example.com" || s.BatchesTable != "batches" {
		t.Errorf("settings = %+v", s)
	}
}

func TestLoadSettingsReportsEveryProblem(t *testing.T) {
	_, err := LoadSettings(envMap(map[string]string{
		"ITEMS_TABLE":        "items",
		"ENRICH_CONCURRENCY": "zero",
		"GROUPING_POLICY":    "random",
	}))
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"BUCKET_NAME", "IMAGES_TABLE", "COUNTER_TABLE", "ENRICH_CONCURRENCY", "random"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %s", err, want)
		}
	}
}

func TestNewPipelineOptionalWiring(t *testing.T) {
	s, err := LoadSettings(envMap(baseEnv()))
	if err != nil {
		t.Fatal(err)
	}
	p := NewPipeline(s, Clients{})
	if p.Events != nil {
		t.Error("events emitter wired without a bus")
	}
	if p.Staging == nil || p.Writer == nil || p.Exporter == nil || p.Batches == nil {
		t.Errorf("pipeline incomplete: %+v", p)
	}
}
