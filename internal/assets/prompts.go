// Package assets embeds the prompt and listing text used by the enrichment
// pipeline. Templates are stored under prompts/ and parsed at startup.
package assets

import (
	"bytes"
	_ "embed"
	"strings"
	"text/template"
)

// Disclaimer is appended verbatim to every item description.
//
//go:embed prompts/disclaimer.txt
var Disclaimer string

//go:embed prompts/appraisal.txt
var appraisalTemplate string

// template.Must panics on a malformed template, failing at startup instead
// of at call time.
var appraisalTmpl = template.Must(template.New("appraisal").Parse(appraisalTemplate))

// PromptData holds the dynamic data injected into the appraisal prompt.
type PromptData struct {
	// MetadataContext is caller-supplied item metadata rendered as JSON.
	// The section is omitted when empty.
	MetadataContext string
}

// RenderAppraisalPrompt renders the appraisal instruction, appending the
// caller's existing metadata when there is any.
func RenderAppraisalPrompt(metadataContext string) string {
	var buf bytes.Buffer
	_ = appraisalTmpl.Execute(&buf, PromptData{MetadataContext: metadataContext})
	return strings.TrimRight(buf.String(), "\n")
}
