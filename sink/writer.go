package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/banzaicloud/ess-billing-exporter/enrich"
)

// Writer writes each document as one JSON line with its destination under _index.
type Writer struct {
	w io.Writer
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

func (s *Writer) Write(_ context.Context, docs []enrich.Document) error {
	buf, err := encodeNDJSON(docs)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(buf); err != nil {
		return failAll(docs, 0, err)
	}
	return nil
}

func (s *Writer) Close() error {
	return nil
}

func encodeNDJSON(docs []enrich.Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, d := range docs {
		line := make(map[string]any, len(d.Source)+1)
		for k, v := range d.Source {
			line[k] = v
		}
		line["_index"] = d.Index
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encode document %d [index=%s]: %w", i, d.Index, err)
		}
	}
	return buf.Bytes(), nil
}
