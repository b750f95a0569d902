// Package graph publishes linking results to the knowledge graph ingest
// subject for downstream consumers.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/c360studio/semlink/batch"
	"github.com/c360studio/semlink/linking"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Subjects for graph ingestion.
const (
	RowIngestSubject    = "graph.ingest.linking.row"
	ResultIngestSubject = "graph.ingest.linking.result"
)

// RowIngestMessage carries one reconciled batch row.
type RowIngestMessage struct {
	ID          string    `json:"id"`
	Row         batch.Row `json:"row"`
	PublishedAt time.Time `json:"published_at"`
}

// ResultIngestMessage carries one interactive linking result.
type ResultIngestMessage struct {
	ID          string          `json:"id"`
	Result      *linking.Result `json:"result"`
	PublishedAt time.Time       `json:"published_at"`
}

// PublishRows publishes reconciled rows, one message per row. A nil
// connection skips publishing (graceful degradation).
func PublishRows(ctx context.Context, nc *nats.Conn, rows []batch.Row) error {
	if nc == nil {
		return nil
	}

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := RowIngestMessage{
			ID:          uuid.New().String(),
			Row:         row,
			PublishedAt: time.Now(),
		}
		data, err := json.Marshal(msg)
		if err != nil {
			return fmt.Errorf("marshal row message: %w", err)
		}
		if err := nc.Publish(RowIngestSubject, data); err != nil {
			return fmt.Errorf("publish row for %q: %w", row.Mention, err)
		}
	}

	return nc.Flush()
}

// PublishResult publishes a single linking result. A nil connection
// skips publishing.
func PublishResult(_ context.Context, nc *nats.Conn, result *linking.Result) error {
	if nc == nil {
		return nil
	}

	msg := ResultIngestMessage{
		ID:          uuid.New().String(),
		Result:      result,
		PublishedAt: time.Now(),
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal result message: %w", err)
	}
	if err := nc.Publish(ResultIngestSubject, data); err != nil {
		return fmt.Errorf("publish result for %q: %w", result.Mention, err)
	}
	return nc.Flush()
}
