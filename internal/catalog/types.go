// Package catalog defines the records that flow through the staging and
// creation pipeline: uploaded image references, per-item image groups,
// AI-enriched metadata, reviewable staged items, and the durable catalog
// rows written to DynamoDB.
//
// JSON tags follow the snake_case wire format of the HTTP API. DynamoDB
// attribute names match the column names of the items and images tables.
package catalog

// DefaultCurrency is used when the AI omits a currency or an estimate
// falls back to zero.
const DefaultCurrency = "USD"

// ImageReference is one uploaded photograph. SequenceIndex is the position
// of the image in the flat upload list the caller staged.
type ImageReference struct {
	SequenceIndex int    `json:"index" dynamodbav:"index"`
	StorageKey    string `json:"imageKey" dynamodbav:"imageKey"`
}

// ItemGroup is the ordered set of images that depict one item.
type ItemGroup struct {
	ItemIndex int              `json:"item_index" dynamodbav:"item_index"`
	Images    []ImageReference `json:"images" dynamodbav:"images"`
}

// StorageKeys returns the group's S3 keys in order.
func (g ItemGroup) StorageKeys() []string {
	keys := make([]string, 0, len(g.Images))
	for _, img := range g.Images {
		keys = append(keys, img.StorageKey)
	}
	return keys
}

// ValueEstimate is a low/high appraisal range.
type ValueEstimate struct {
	Min      float64 `json:"min_value" dynamodbav:"min_value"`
	Max      float64 `json:"max_value" dynamodbav:"max_value"`
	Currency string  `json:"currency" dynamodbav:"currency"`
}

// DiscoveredMetadata holds attributes the AI read off the photographs.
// WeightGrams is nil when no scale was visible.
type DiscoveredMetadata struct {
	WeightGrams *float64 `json:"weight_grams"`
	Markings    []string `json:"markings"`
}

// EnrichedMetadata is the per-item output of either enrichment mode.
type EnrichedMetadata struct {
	Title         string             `json:"title"`
	Description   string             `json:"description"`
	ValueEstimate ValueEstimate      `json:"value_estimate"`
	Discovered    DiscoveredMetadata `json:"discovered_metadata"`
}

// StagedItem is a review artifact: enriched but not yet durable, so it has
// no identifier.
type StagedItem struct {
	ItemIndex     int              `json:"item_index"`
	Images        []ImageReference `json:"images"`
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	ValueEstimate ValueEstimate    `json:"value_estimate"`
	Metadata      map[string]any   `json:"metadata"`
}

// CatalogItem is a durable row in the items table (partition key item_id).
type CatalogItem struct {
	ItemID        int64            `json:"item_id" dynamodbav:"item_id"`
	ItemIndex     int              `json:"item_index" dynamodbav:"item_index"`
	Images        []ImageReference `json:"images" dynamodbav:"images"`
	Title         string           `json:"title" dynamodbav:"title"`
	Description   string           `json:"description" dynamodbav:"description"`
	ValueEstimate ValueEstimate    `json:"value_estimate" dynamodbav:"value_estimate"`
	Metadata      map[string]any   `json:"metadata" dynamodbav:"metadata"`
	CreatedAt     int64            `json:"created_at" dynamodbav:"created_at"`
	UpdatedAt     int64            `json:"updated_at" dynamodbav:"updated_at"`
	CreatedBy     string           `json:"created_by" dynamodbav:"created_by"`
	AuctionID     string           `json:"auction_id,omitempty" dynamodbav:"auction_id,omitempty"`
}

// CatalogImageRecord is a durable row in the images table (partition key
// image_id), one per image of a created item.
type CatalogImageRecord struct {
	ImageID    string `json:"image_id" dynamodbav:"image_id"`
	ItemID     int64  `json:"item_id" dynamodbav:"item_id"`
	StorageKey string `json:"s3_key_original" dynamodbav:"s3_key_original"`
	CreatedAt  int64  `json:"created_at" dynamodbav:"created_at"`
	AuctionID  string `json:"auction_id,omitempty" dynamodbav:"auction_id,omitempty"`
}

// Batch job statuses reported by the AI service.
const (
	BatchValidating = "validating"
	BatchInProgress = "in_progress"
	BatchFinalizing = "finalizing"
	BatchCompleted  = "completed"
	BatchFailed     = "failed"
	BatchExpired    = "expired"
	BatchCancelling = "cancelling"
	BatchCancelled  = "cancelled"
)

// IsTerminalBatchStatus reports whether a batch job can no longer change state.
func IsTerminalBatchStatus(status string) bool {
	switch status {
	case BatchCompleted, BatchFailed, BatchExpired, BatchCancelled:
		return true
	}
	return false
}

// RequestCounts tallies the requests inside a batch job.
type RequestCounts struct {
	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
}

// BatchJob is this system's view of a bulk enrichment job owned by the AI
// service. Timestamps are Unix seconds; nil means the transition has not
// happened.
type BatchJob struct {
	ID            string        `json:"id"`
	Status        string        `json:"status"`
	InputFileID   string        `json:"input_file_id"`
	OutputFileID  string        `json:"output_file_id,omitempty"`
	ErrorFileID   string        `json:"error_file_id,omitempty"`
	RequestCounts RequestCounts `json:"request_counts"`
	CreatedAt     int64         `json:"created_at"`
	InProgressAt  *int64        `json:"in_progress_at,omitempty"`
	FinalizingAt  *int64        `json:"finalizing_at,omitempty"`
	CompletedAt   *int64        `json:"completed_at,omitempty"`
	FailedAt      *int64        `json:"failed_at,omitempty"`
	ExpiredAt     *int64        `json:"expired_at,omitempty"`
	CancellingAt  *int64        `json:"cancelling_at,omitempty"`
	CancelledAt   *int64        `json:"cancelled_at,omitempty"`
	ExpiresAt     *int64        `json:"expires_at,omitempty"`
}

// BatchPage is one page of a batch job listing.
type BatchPage struct {
	Data    []BatchJob `json:"data"`
	FirstID string     `json:"first_id,omitempty"`
	LastID  string     `json:"last_id,omitempty"`
	HasMore bool       `json:"has_more"`
}

// BatchResult is one line of a batch output file, correlated back to the
// item group it was built from. Content holds the raw model message when
// the request succeeded; Error is set otherwise.
type BatchResult struct {
	CustomID   string `json:"custom_id"`
	ItemIndex  int    `json:"item_index"`
	StatusCode int    `json:"status_code,omitempty"`
	Content    string `json:"content,omitempty"`
	Error      string `json:"error,omitempty"`
}

// BatchSubmission is what this system remembers about a submitted batch so
// its results can be turned back into staged items.
type BatchSubmission struct {
	BatchID     string         `dynamodbav:"batch_id"`
	InputKey    string         `dynamodbav:"input_key"`
	InputFileID string         `dynamodbav:"input_file_id"`
	Groups      []ItemGroup    `dynamodbav:"groups"`
	Metadata    map[string]any `dynamodbav:"metadata,omitempty"`
	CreatedAt   int64          `dynamodbav:"created_at"`
}
