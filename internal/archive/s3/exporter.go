package s3archive

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/boostcampwm-2024/refactor-web03-CorinEE/internal/domain"
)

// Exporter uploads one CSV object per UTC day of fill history. Fill rows are
// append-only, so a day's export is stable once the day has passed; re-running
// an export overwrites the object with identical content.
type Exporter struct {
	client *Client
	fills  domain.FillStore
	logger *slog.Logger
}

// NewExporter creates an Exporter over the given fill store.
func NewExporter(client *Client, fills domain.FillStore, logger *slog.Logger) *Exporter {
	return &Exporter{
		client: client,
		fills:  fills,
		logger: logger.With(slog.String("component", "archive")),
	}
}

// ExportDay exports the fills of the UTC day containing ts. It uploads a CSV
// to fills/YYYY/MM/DD.csv and returns the number of exported rows. Days with
// no fills upload nothing.
func (e *Exporter) ExportDay(ctx context.Context, ts time.Time) (int, error) {
	from := ts.UTC().Truncate(24 * time.Hour)
	to := from.Add(24 * time.Hour)

	fills, err := e.fills.ListBetween(ctx, from, to)
	if err != nil {
		return 0, fmt.Errorf("s3archive: list fills %s: %w", from.Format("2006-01-02"), err)
	}
	if len(fills) == 0 {
		return 0, nil
	}

	body, err := marshalCSV(fills)
	if err != nil {
		return 0, fmt.Errorf("s3archive: encode fills: %w", err)
	}

	key := objectKey(from)
	_, err = e.client.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(e.client.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("text/csv"),
	})
	if err != nil {
		return 0, fmt.Errorf("s3archive: put object %s: %w", key, err)
	}

	e.logger.InfoContext(ctx, "day exported",
		slog.String("key", key),
		slog.Int("fills", len(fills)),
	)
	return len(fills), nil
}

// Run exports the previous UTC day shortly after each midnight until the
// context is cancelled. A failed export is logged and retried at the next
// trigger rather than aborting the loop.
func (e *Exporter) Run(ctx context.Context) error {
	e.logger.InfoContext(ctx, "exporter started")

	for {
		now := time.Now().UTC()
		next := now.Truncate(24 * time.Hour).Add(24 * time.Hour)

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			e.logger.InfoContext(ctx, "exporter stopped")
			return ctx.Err()
		case <-timer.C:
			if _, err := e.ExportDay(ctx, next.Add(-time.Hour)); err != nil {
				e.logger.ErrorContext(ctx, "export failed", slog.String("error", err.Error()))
			}
		}
	}
}

// objectKey builds the S3 key for one day's export: fills/2025/01/31.csv.
func objectKey(day time.Time) string {
	return fmt.Sprintf("fills/%s.csv", day.Format("2006/01/02"))
}

func marshalCSV(fills []domain.Fill) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{"fill_id", "order_id", "account_id", "market", "side", "price", "quantity", "cost", "ts"}); err != nil {
		return nil, err
	}
	for _, f := range fills {
		rec := []string{
			f.ID,
			f.OrderID,
			f.AccountID,
			f.Market,
			string(f.Side),
			f.Price.String(),
			f.Quantity.String(),
			f.Cost().String(),
			f.Ts.UTC().Format(time.RFC3339Nano),
		}
		if err := w.Write(rec); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
