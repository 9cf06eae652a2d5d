package enrich

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Charts turns a deployment's chart response into one document per
// sample. Each named value becomes a <id>_value field and total is the
// sum of the sample's values. The sample time is the @timestamp; the poll
// time in t is kept as read_timestamp.
func Charts(dep Deployment, raw map[string]any, t Target) ([]Document, error) {
	context := "deployment " + dep.ID + " charts"
	samples, ok := raw["data"].([]any)
	if !ok {
		return nil, schemaErr("data", context, raw)
	}

	var (
		docs []Document
		errs []error
	)
	for i, s := range samples {
		sample, ok := s.(map[string]any)
		if !ok {
			errs = append(errs, schemaErr(fmt.Sprintf("data[%d]", i), context, raw))
			continue
		}
		src, err := chartSample(sample)
		if err != nil {
			err.Field = fmt.Sprintf("data[%d].%s", i, err.Field)
			err.Context = context
			errs = append(errs, err)
			continue
		}
		for k, v := range dep.fields(t) {
			src[k] = v
		}
		src["read_timestamp"] = Timestamp(t.Timestamp)
		docs = append(docs, Document{Index: t.Index, Source: src})
	}

	return docs, errors.Join(errs...)
}

func chartSample(sample map[string]any) (map[string]any, *SchemaError) {
	ts, ok := sample["timestamp"]
	if !ok {
		return nil, schemaErr("timestamp", "", sample)
	}
	values, ok := sample["values"].([]any)
	if !ok {
		return nil, schemaErr("values", "", sample)
	}

	src := map[string]any{"@timestamp": ts}
	total := decimal.Zero
	for j, v := range values {
		value, ok := v.(map[string]any)
		if !ok {
			return nil, schemaErr(fmt.Sprintf("values[%d]", j), "", sample)
		}
		id, ok := value["id"].(string)
		if !ok {
			return nil, schemaErr(fmt.Sprintf("values[%d].id", j), "", sample)
		}
		amount, ok := toDecimal(value["value"])
		if !ok {
			return nil, schemaErr(fmt.Sprintf("values[%d].value", j), "", sample)
		}
		src[id+"_value"] = value["value"]
		total = total.Add(amount)
	}
	src["total"] = total.InexactFloat64()
	return src, nil
}
