package lambdaboot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/auction-catalog/internal/ai"
	"github.com/fpang/auction-catalog/internal/enrich"
	"github.com/fpang/auction-catalog/internal/grouping"
	"github.com/fpang/auction-catalog/internal/s3util"
)

// DefaultKeyParam is the SSM parameter holding the AI credential.
const DefaultKeyParam = "/auction-catalog/prod/openai-api-key"

// Settings is the environment-derived configuration shared by every binary.
type Settings struct {
	Bucket       string
	ItemsTable   string
	ImagesTable  string
	CounterTable string
	BatchesTable string

	EventBus         string
	PollStateMachine string
	OriginSecret     string

	OpenAIKey   string
	KeyParam    string
	Model       string
	BaseURL     string
	MaxTokens   int
	PublicBase  string
	RequestRate float64
	Burst       int

	EnrichConcurrency int
	EnrichTimeout     time.Duration
	Grouping          grouping.Policy
	Merge             enrich.MergePolicy
}

// LoadSettings reads Settings through getenv (normally os.Getenv). Every
// missing required variable and malformed value is reported together.
func LoadSettings(getenv func(string) string) (Settings, error) {
	env := func(key, def string) string {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			return v
		}
		return def
	}
	var errs []error
	required := func(key string) string {
		v := env(key, "")
		if v == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
		return v
	}
	integer := func(key string, def int) int {
		v := env(key, "")
		if v == "" {
			return def
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			errs = append(errs, fmt.Errorf("%s must be a positive integer, got %q", key, v))
			return def
		}
		return n
	}

	s := Settings{
		Bucket:           required("BUCKET_NAME"),
		ItemsTable:       required("ITEMS_TABLE"),
		ImagesTable:      required("IMAGES_TABLE"),
		CounterTable:     required("COUNTER_TABLE"),
		BatchesTable:     env("BATCHES_TABLE", ""),
		EventBus:         env("EVENT_BUS_NAME", ""),
		PollStateMachine: env("BATCH_POLL_SFN_ARN", ""),
		OriginSecret:     env("ORIGIN_VERIFY_SECRET", ""),

		OpenAIKey: env("OPENAI_API_KEY", ""),
		KeyParam:  env("SSM_OPENAI_KEY_PARAM", DefaultKeyParam),
		Model:     env("OPENAI_MODEL", ai.DefaultModel),
		BaseURL:   env("OPENAI_BASE_URL", ai.DefaultBaseURL),
		MaxTokens: integer("OPENAI_MAX_TOKENS", ai.DefaultMaxTokens),
		Burst:     integer("AI_BURST", 2),

		EnrichConcurrency: integer("ENRICH_CONCURRENCY", enrich.DefaultConcurrency),
	}
	s.PublicBase = env("PUBLIC_IMAGE_BASE_URL", s3util.DefaultPublicBase(s.Bucket))

	s.RequestRate = 2
	if v := env("AI_REQUESTS_PER_SECOND", ""); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil || f <= 0 {
			errs = append(errs, fmt.Errorf("AI_REQUESTS_PER_SECOND must be a positive number, got %q", v))
		} else {
			s.RequestRate = f
		}
	}

	s.EnrichTimeout = enrich.DefaultTimeout
	if v := env("ENRICH_TIMEOUT", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			errs = append(errs, fmt.Errorf("ENRICH_TIMEOUT must be a positive duration, got %q", v))
		} else {
			s.EnrichTimeout = d
		}
	}

	var err error
	if s.Grouping, err = grouping.ParsePolicy(env("GROUPING_POLICY", "")); err != nil {
		errs = append(errs, err)
	}
	if s.Merge, err = enrich.ParseMergePolicy(env("METADATA_MERGE", "")); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return Settings{}, fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return s, nil
}
