package enrich

import (
	"errors"
	"fmt"
	"strings"
)

// Line item lists of the itemized response, also used as bill.type.
const (
	BillTypeCostsSummary           = "costs-summary"
	BillTypeDataTransferAndStorage = "data_transfer_and_storage"
	BillTypeResources              = "resources"
)

// Itemized splits a deployment's itemized cost response into one
// costs-summary document plus one document per line item, so each
// billable item can be aggregated on its own. Line items get a
// cloud.provider taken from their sku; resources items have their period
// renamed to gte/lte for range queries.
//
// Every document that can be built is returned; the error joins the
// SchemaErrors of the ones that could not.
func Itemized(dep Deployment, raw map[string]any, t Target) ([]Document, error) {
	context := "deployment " + dep.ID + " itemized"
	common := func() map[string]any {
		m := dep.fields(t)
		m["@timestamp"] = Timestamp(t.Timestamp)
		return m
	}

	var (
		docs []Document
		errs []error
	)

	if normalized, err := NormalizeCosts(raw); err != nil {
		if se, ok := err.(*SchemaError); ok {
			se.Context = context
		}
		errs = append(errs, err)
	} else {
		src := common()
		src["costs"] = normalized["costs"]
		src["bill.type"] = BillTypeCostsSummary
		docs = append(docs, Document{Index: t.Index, Source: src})
	}

	for _, bt := range []string{BillTypeDataTransferAndStorage, BillTypeResources} {
		items, ok := raw[bt].([]any)
		if !ok {
			errs = append(errs, schemaErr(bt, context, raw))
			continue
		}
		for i, it := range items {
			item, ok := it.(map[string]any)
			if !ok {
				errs = append(errs, schemaErr(fmt.Sprintf("%s[%d]", bt, i), context, raw))
				continue
			}
			src, err := lineItem(bt, item)
			if err != nil {
				err.Field = fmt.Sprintf("%s[%d].%s", bt, i, err.Field)
				err.Context = context
				errs = append(errs, err)
				continue
			}
			for k, v := range common() {
				src[k] = v
			}
			docs = append(docs, Document{Index: t.Index, Source: src})
		}
	}

	return docs, errors.Join(errs...)
}

func lineItem(billType string, item map[string]any) (map[string]any, *SchemaError) {
	sku, ok := item["sku"].(string)
	if !ok {
		return nil, schemaErr("sku", "", item)
	}

	src := cloneMap(item)
	if billType == BillTypeResources {
		period, ok := src["period"].(map[string]any)
		if !ok {
			return nil, schemaErr("period", "", item)
		}
		start, ok := period["start"]
		if !ok {
			return nil, schemaErr("period.start", "", item)
		}
		end, ok := period["end"]
		if !ok {
			return nil, schemaErr("period.end", "", item)
		}
		delete(period, "start")
		delete(period, "end")
		period["gte"] = start
		period["lte"] = end
	}

	src["cloud.provider"] = Provider(sku)
	src["bill.type"] = billType
	return src, nil
}

// Provider returns the part of a sku before its first '.', or the whole
// sku when it has none ("aws.data.highio.i3" -> "aws").
func Provider(sku string) string {
	provider, _, _ := strings.Cut(sku, ".")
	return provider
}
