package enrich

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/fpang/auction-catalog/internal/assets"
	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/jsonutil"
)

// MaxTitleRunes is the longest title kept from the AI response.
const MaxTitleRunes = 60

// Fallback field values.
const (
	FallbackTitle       = "Untitled Item"
	FallbackDescription = "Description unavailable."
)

// Fallback returns the record used whenever enrichment cannot produce a
// usable result.
func Fallback() catalog.EnrichedMetadata {
	return catalog.EnrichedMetadata{
		Title:         FallbackTitle,
		Description:   FallbackDescription,
		ValueEstimate: catalog.ValueEstimate{Currency: catalog.DefaultCurrency},
		Discovered:    catalog.DiscoveredMetadata{Markings: []string{}},
	}
}

// WithDisclaimer appends the fixed listing disclaimer to a description.
func WithDisclaimer(description string) string {
	return description + "\n\n" + assets.Disclaimer
}

// aiPayload mirrors the JSON shape requested in the appraisal prompt.
// Pointers distinguish absent keys from zero values.
type aiPayload struct {
	Title         *string `json:"title"`
	Description   *string `json:"description"`
	ValueEstimate *struct {
		Min      float64 `json:"min_value"`
		Max      float64 `json:"max_value"`
		Currency string  `json:"currency"`
	} `json:"value_estimate"`
	Discovered *struct {
		WeightGrams *float64 `json:"weight_grams"`
		Markings    []string `json:"markings"`
	} `json:"discovered_metadata"`
}

// ParseMetadata decodes a model response into EnrichedMetadata. The response
// may be wrapped in a markdown code fence. All four top-level keys must be
// present.
func ParseMetadata(content string) (catalog.EnrichedMetadata, error) {
	p, err := jsonutil.ParseObject[aiPayload](content)
	if err != nil {
		return catalog.EnrichedMetadata{}, err
	}

	var missing []string
	if p.Title == nil {
		missing = append(missing, "title")
	}
	if p.Description == nil {
		missing = append(missing, "description")
	}
	if p.ValueEstimate == nil {
		missing = append(missing, "value_estimate")
	}
	if p.Discovered == nil {
		missing = append(missing, "discovered_metadata")
	}
	if len(missing) > 0 {
		return catalog.EnrichedMetadata{}, fmt.Errorf("response missing keys: %s", strings.Join(missing, ", "))
	}

	currency := strings.TrimSpace(p.ValueEstimate.Currency)
	if currency == "" {
		currency = catalog.DefaultCurrency
	}
	return catalog.EnrichedMetadata{
		Title:       truncateRunes(strings.TrimSpace(*p.Title), MaxTitleRunes),
		Description: strings.TrimSpace(*p.Description),
		ValueEstimate: catalog.ValueEstimate{
			Min:      p.ValueEstimate.Min,
			Max:      p.ValueEstimate.Max,
			Currency: currency,
		},
		Discovered: catalog.DiscoveredMetadata{
			WeightGrams: p.Discovered.WeightGrams,
			Markings:    dedupe(p.Discovered.Markings),
		},
	}, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n]))
}

// dedupe trims markings and drops blanks and repeats, keeping first-seen
// order. The result is never nil.
func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
