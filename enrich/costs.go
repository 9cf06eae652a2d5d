package enrich

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Dimensions the billing API always reports. The derived aggregates are built from them.
const (
	DimensionStorageAPI    = "storage_api"
	DimensionStorageBytes  = "storage_bytes"
	DimensionDataIn        = "data_in"
	DimensionDataOut       = "data_out"
	DimensionDataInternode = "data_internode"
)

// Derived aggregate keys, recomputed on every normalization.
const (
	CostStorage                = "storage"
	CostDataTransfer           = "data_transfer"
	CostDataTransferAndStorage = "data_transfer_and_storage"
)

// NormalizeCosts returns a copy of record whose nested "costs" block
// ({total, dimensions: [{type, cost}]}) is flattened into a map keyed by
// dimension type, with the storage, data_transfer and
// data_transfer_and_storage aggregates added. record is left untouched.
func NormalizeCosts(record map[string]any) (map[string]any, error) {
	raw, ok := record["costs"].(map[string]any)
	if !ok {
		return nil, schemaErr("costs", "", record)
	}
	costs, err := normalizeCostBlock(raw)
	if err != nil {
		err.Record = record
		return nil, err
	}

	out := cloneMap(record)
	out["costs"] = costs
	return out, nil
}

func normalizeCostBlock(raw map[string]any) (map[string]any, *SchemaError) {
	total, ok := raw["total"]
	if !ok {
		return nil, schemaErr("costs.total", "", nil)
	}
	dims, ok := raw["dimensions"].([]any)
	if !ok {
		return nil, schemaErr("costs.dimensions", "", nil)
	}

	costs := map[string]any{"total": total}
	amounts := make(map[string]decimal.Decimal, len(dims))
	for i, d := range dims {
		dim, ok := d.(map[string]any)
		if !ok {
			return nil, schemaErr(fmt.Sprintf("costs.dimensions[%d]", i), "", nil)
		}
		typ, ok := dim["type"].(string)
		if !ok {
			return nil, schemaErr(fmt.Sprintf("costs.dimensions[%d].type", i), "", nil)
		}
		amount, ok := toDecimal(dim["cost"])
		if !ok {
			return nil, schemaErr(fmt.Sprintf("costs.dimensions[%d].cost", i), "", nil)
		}
		costs[typ] = dim["cost"]
		amounts[typ] = amount
	}

	sum := func(keys ...string) (decimal.Decimal, *SchemaError) {
		acc := decimal.Zero
		for _, k := range keys {
			v, ok := amounts[k]
			if !ok {
				return acc, schemaErr("costs.dimensions."+k, "", nil)
			}
			acc = acc.Add(v)
		}
		return acc, nil
	}

	storage, err := sum(DimensionStorageAPI, DimensionStorageBytes)
	if err != nil {
		return nil, err
	}
	transfer, err := sum(DimensionDataIn, DimensionDataOut, DimensionDataInternode)
	if err != nil {
		return nil, err
	}

	costs[CostStorage] = storage.InexactFloat64()
	costs[CostDataTransfer] = transfer.InexactFloat64()
	costs[CostDataTransferAndStorage] = storage.Add(transfer).InexactFloat64()
	return costs, nil
}

func toDecimal(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		return decimal.NewFromFloat(n), true
	case float32:
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int64:
		return decimal.NewFromInt(n), true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	default:
		return decimal.Zero, false
	}
}
