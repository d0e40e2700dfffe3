// Package export renders an auction's catalog items into the bulk-upload
// format of an auction platform and publishes it to S3 for download.
package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	"github.com/fpang/auction-catalog/internal/catalog"
	"github.com/fpang/auction-catalog/internal/s3util"
)

// PlatformLiveAuctioneers is the only supported platform.
const PlatformLiveAuctioneers = "liveauctioneers"

// MaxImages is the number of ImageFile columns in a LiveAuctioneers sheet.
const MaxImages = 20

// URLExpiry is how long a download link stays valid.
const URLExpiry = time.Hour

// DefaultCondition is written for every lot.
const DefaultCondition = "Good"

// ItemLister returns an auction's items ordered by item ID.
// *store.DynamoStore satisfies it.
type ItemLister interface {
	ListItemsByAuction(ctx context.Context, auctionID string) ([]catalog.CatalogItem, error)
}

// Result is a published export.
type Result struct {
	Key         string `json:"key"`
	DownloadURL string `json:"download_url"`
	Items       int    `json:"items"`
}

// Exporter builds and publishes catalog exports.
type Exporter struct {
	items      ItemLister
	objects    s3util.Putter
	presigner  s3util.Presigner
	bucket     string
	publicBase string
}

// New returns an Exporter writing to bucket. Image URLs in the sheet are
// built from publicBase.
func New(items ItemLister, objects s3util.Putter, presigner s3util.Presigner, bucket, publicBase string) *Exporter {
	return &Exporter{items: items, objects: objects, presigner: presigner, bucket: bucket, publicBase: publicBase}
}

// Key returns the object key an export is written to.
func Key(auctionID, platform string) string {
	return fmt.Sprintf("exports/%s/%s_catalog.csv", auctionID, platform)
}

// Export writes the auction's catalog for platform and returns a presigned
// download link. Returns catalog.ErrNotFound when the auction has no items.
func (e *Exporter) Export(ctx context.Context, auctionID, platform string) (Result, error) {
	logger := zerolog.Ctx(ctx)
	auctionID = strings.TrimSpace(auctionID)
	platform = strings.ToLower(strings.TrimSpace(platform))
	if auctionID == "" {
		return Result{}, catalog.Validationf("auction_id is required")
	}
	if platform != PlatformLiveAuctioneers {
		return Result{}, catalog.Validationf("unsupported platform %q, currently only %q is supported", platform, PlatformLiveAuctioneers)
	}

	items, err := e.items.ListItemsByAuction(ctx, auctionID)
	if err != nil {
		return Result{}, err
	}
	if len(items) == 0 {
		return Result{}, fmt.Errorf("no items found for auction %s: %w", auctionID, catalog.ErrNotFound)
	}

	sheet, err := LiveAuctioneersCSV(items, e.publicBase)
	if err != nil {
		return Result{}, err
	}
	body, err := compress(sheet)
	if err != nil {
		return Result{}, err
	}

	key := Key(auctionID, platform)
	err = s3util.PutBytes(ctx, e.objects, e.bucket, key, body, s3util.PutOptions{
		ContentType:        "text/csv",
		ContentEncoding:    "gzip",
		ContentDisposition: fmt.Sprintf("attachment; filename=%q", platform+"_catalog.csv"),
	})
	if err != nil {
		return Result{}, fmt.Errorf("upload export: %w: %w", catalog.ErrExternalService, err)
	}
	url, err := s3util.GeneratePresignedURL(ctx, e.presigner, e.bucket, key, URLExpiry)
	if err != nil {
		return Result{}, fmt.Errorf("presign export: %w: %w", catalog.ErrExternalService, err)
	}

	logger.Info().
		Str("auctionId", auctionID).
		Str("platform", platform).
		Str("key", key).
		Int("items", len(items)).
		Int("csvBytes", len(sheet)).
		Int("gzipBytes", len(body)).
		Msg("Catalog exported")
	return Result{Key: key, DownloadURL: url, Items: len(items)}, nil
}

// Header returns the LiveAuctioneers column names.
func Header() []string {
	cols := []string{"LotNum", "Title", "Description", "LowEst", "HighEst", "StartPrice", "Condition"}
	for i := 1; i <= MaxImages; i++ {
		cols = append(cols, "ImageFile."+strconv.Itoa(i))
	}
	return cols
}

// LiveAuctioneersCSV renders items as lots numbered from 1 in the given
// order. StartPrice is 20% of the low estimate rounded to cents; images past
// MaxImages are dropped.
func LiveAuctioneersCSV(items []catalog.CatalogItem, publicBase string) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := Header()
	if err := w.Write(header); err != nil {
		return nil, fmt.Errorf("write csv header: %w", err)
	}
	for i, it := range items {
		row := make([]string, len(header))
		row[0] = strconv.Itoa(i + 1)
		row[1] = it.Title
		row[2] = it.Description
		row[3] = money(it.ValueEstimate.Min)
		row[4] = money(it.ValueEstimate.Max)
		row[5] = money(StartPrice(it.ValueEstimate.Min))
		row[6] = DefaultCondition
		for n, img := range it.Images {
			if n == MaxImages {
				break
			}
			row[7+n] = s3util.PublicURL(publicBase, img.StorageKey)
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write lot %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

// StartPrice is the opening bid for a lot with the given low estimate.
func StartPrice(low float64) float64 {
	return math.Round(low*0.2*100) / 100
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("gzip export: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("gzip export: %w", err)
	}
	return buf.Bytes(), nil
}
