package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	log "github.com/sirupsen/logrus"

	"github.com/banzaicloud/ess-billing-exporter/config"
	"github.com/banzaicloud/ess-billing-exporter/enrich"
)

// Elasticsearch indexes batches with one _bulk request each.
type Elasticsearch struct {
	bulk esapi.Bulk
}

// NewElasticsearch connects with a Cloud ID and API key, or with plain
// addresses and optional basic auth.
func NewElasticsearch(cfg config.Elasticsearch) (*Elasticsearch, error) {
	log.Info("Attempting to create connection to elastic cluster")
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		CloudID:   cfg.CloudID,
		APIKey:    cfg.APIKey,
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	return NewElasticsearchWithBulk(es.Bulk), nil
}

// NewElasticsearchWithBulk builds the sink on an existing bulk API function.
func NewElasticsearchWithBulk(bulk esapi.Bulk) *Elasticsearch {
	return &Elasticsearch{bulk: bulk}
}

type bulkResponse struct {
	Errors bool                         `json:"errors"`
	Items  []map[string]bulkResponseItem `json:"items"`
}

type bulkResponseItem struct {
	Index  string `json:"_index"`
	Status int    `json:"status"`
	Error  *struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	} `json:"error"`
}

func (s *Elasticsearch) Write(ctx context.Context, docs []enrich.Document) error {
	if len(docs) == 0 {
		return nil
	}

	body, err := bulkBody(docs)
	if err != nil {
		return err
	}

	res, err := s.bulk(bytes.NewReader(body), s.bulk.WithContext(ctx))
	if err != nil {
		return failAll(docs, 0, fmt.Errorf("bulk request: %w", err))
	}
	defer res.Body.Close()

	if res.IsError() {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return failAll(docs, res.StatusCode, fmt.Errorf("bulk request: %s: %s", res.Status(), strings.TrimSpace(string(msg))))
	}

	var br bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&br); err != nil {
		return failAll(docs, res.StatusCode, fmt.Errorf("decode bulk response: %w", err))
	}
	if !br.Errors {
		return nil
	}

	bulkErr := &BulkError{Total: len(docs)}
	for i, item := range br.Items {
		for _, result := range item {
			if result.Error == nil && result.Status < 300 {
				continue
			}
			f := Failure{Position: i, Index: result.Index, Status: result.Status}
			if result.Error != nil {
				f.Reason = result.Error.Type + ": " + result.Error.Reason
			}
			bulkErr.Failures = append(bulkErr.Failures, f)
		}
	}
	if len(bulkErr.Failures) == 0 {
		return nil
	}
	return bulkErr
}

func (s *Elasticsearch) Close() error {
	return nil
}

// bulkBody builds the NDJSON _bulk payload. The destination goes into the
// action line; Elasticsearch refuses _index inside a document.
func bulkBody(docs []enrich.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, d := range docs {
		action := map[string]any{"index": map[string]string{"_index": d.Index}}
		if err := enc.Encode(action); err != nil {
			return nil, fmt.Errorf("encode bulk action %d: %w", i, err)
		}
		if err := enc.Encode(d.Source); err != nil {
			return nil, fmt.Errorf("encode document %d [index=%s]: %w", i, d.Index, err)
		}
	}
	return buf.Bytes(), nil
}
