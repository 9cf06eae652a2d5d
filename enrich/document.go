package enrich

import (
	"time"
)

// TimestampFormat is the layout of every @timestamp and read_timestamp written by the enrichers.
const TimestampFormat = "2006-01-02T15:04:05.000000Z"

// Document is one flat record bound for the document sink.
type Document struct {
	// Index is the destination the sink writes the document to.
	Index  string
	Source map[string]any
}

// Deployment identifies one billable deployment of an organization.
type Deployment struct {
	ID   string
	Name string
}

// Target describes where the documents built from one API response are sent.
type Target struct {
	Index    string
	Endpoint string
	// Timestamp is the poll time. Chart documents carry it as read_timestamp.
	Timestamp time.Time
}

// Timestamp formats t the way documents store time.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

func (d Deployment) fields(t Target) map[string]any {
	return map[string]any{
		"deployment_id":   d.ID,
		"deployment_name": d.Name,
		"api":             t.Endpoint,
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
