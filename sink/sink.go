// Package sink writes document batches to the configured datastore.
package sink

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/banzaicloud/ess-billing-exporter/config"
	"github.com/banzaicloud/ess-billing-exporter/enrich"
)

// Sink accepts whole batches of documents. A batch that is not fully
// written comes back as a *BulkError naming the documents that failed.
type Sink interface {
	Write(ctx context.Context, docs []enrich.Document) error
	Close() error
}

// Failure describes one document the sink rejected.
type Failure struct {
	// Position is the document's offset in the batch.
	Position int    `json:"position"`
	Index    string `json:"index"`
	Status   int    `json:"status,omitempty"`
	Reason   string `json:"reason"`
}

// BulkError reports the documents of a batch that were not written.
type BulkError struct {
	Total    int
	Failures []Failure
	Err      error
}

func (e *BulkError) Error() string {
	if len(e.Failures) == 0 {
		return fmt.Sprintf("bulk write failed: %v", e.Err)
	}
	f := e.Failures[0]
	return fmt.Sprintf("%d of %d documents failed [first: position=%d, index=%s, status=%d, reason=%s]",
		len(e.Failures), e.Total, f.Position, f.Index, f.Status, f.Reason)
}

func (e *BulkError) Unwrap() error {
	return e.Err
}

// failAll marks every document of the batch as failed for the same reason.
func failAll(docs []enrich.Document, status int, err error) *BulkError {
	failures := make([]Failure, len(docs))
	for i, d := range docs {
		failures[i] = Failure{Position: i, Index: d.Index, Status: status, Reason: err.Error()}
	}
	return &BulkError{Total: len(docs), Failures: failures, Err: err}
}

// New returns the sink selected by cfg.Type.
func New(ctx context.Context, cfg config.Sink) (Sink, error) {
	switch strings.ToLower(cfg.Type) {
	case config.SinkElasticsearch, "":
		return NewElasticsearch(cfg.Elasticsearch)
	case config.SinkPostgres:
		return NewPostgres(ctx, cfg.Postgres)
	case config.SinkS3:
		return NewS3(ctx, cfg.S3)
	case config.SinkStdout:
		return NewWriter(os.Stdout), nil
	default:
		return nil, fmt.Errorf("unknown sink type %q", cfg.Type)
	}
}
