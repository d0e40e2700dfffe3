package batch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/jsonutil"
)

// maxLineBytes bounds a single JSONL result line.
const maxLineBytes = 8 << 20

type resultLine struct {
	ID       string `json:"id"`
	CustomID string `json:"custom_id"`
	Response *struct {
		StatusCode int                           `json:"status_code"`
		RequestID  string                        `json:"request_id"`
		Body       openai.ChatCompletionResponse `json:"body"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResults decodes JSONL batch output into one result per line, sorted
// by item index. Blank lines are ignored; malformed lines and lines with an
// unrecognised custom_id are logged and skipped.
func ParseResults(ctx context.Context, data []byte) []catalog.BatchResult {
	logger := zerolog.Ctx(ctx)
	var results []catalog.BatchResult

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var line resultLine
		if err := json.Unmarshal(raw, &line); err != nil {
			logger.Warn().Err(err).Int("line", lineNo).Str("text", jsonutil.Preview(string(raw), 200)).
				Msg("Skipping malformed batch result line")
			continue
		}
		idx, ok := ParseCustomID(line.CustomID)
		if !ok {
			logger.Warn().Int("line", lineNo).Str("customId", line.CustomID).Msg("Skipping batch result with unknown custom_id")
			continue
		}
		results = append(results, toResult(line, idx))
	}
	if err := sc.Err(); err != nil {
		logger.Warn().Err(err).Int("line", lineNo).Msg("Batch result scan stopped early")
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].ItemIndex < results[j].ItemIndex })
	return results
}

func toResult(line resultLine, idx int) catalog.BatchResult {
	r := catalog.BatchResult{CustomID: line.CustomID, ItemIndex: idx}
	switch {
	case line.Error != nil:
		r.Error = line.Error.Message
		if line.Error.Code != "" {
			r.Error = line.Error.Code + ": " + line.Error.Message
		}
	case line.Response == nil:
		r.Error = "result has neither response nor error"
	case line.Response.StatusCode != http.StatusOK:
		r.StatusCode = line.Response.StatusCode
		r.Error = fmt.Sprintf("request failed with status %d", line.Response.StatusCode)
	case len(line.Response.Body.Choices) == 0 || line.Response.Body.Choices[0].Message.Content == "":
		r.StatusCode = line.Response.StatusCode
		r.Error = "response has no content"
	default:
		r.StatusCode = line.Response.StatusCode
		r.Content = line.Response.Body.Choices[0].Message.Content
	}
	return r
}
