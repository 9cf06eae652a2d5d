package enrich_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banzaicloud/ess-billing-exporter/enrich"
)

func rawCosts(total float64, dims map[string]float64) map[string]any {
	dimensions := []any{}
	for _, typ := range []string{"storage_api", "storage_bytes", "data_in", "data_out", "data_internode", "capacity"} {
		if cost, ok := dims[typ]; ok {
			dimensions = append(dimensions, map[string]any{"type": typ, "cost": cost})
		}
	}
	return map[string]any{"total": total, "dimensions": dimensions}
}

func TestNormalizeCosts(t *testing.T) {
	t.Run("flattens dimensions and derives aggregates", func(t *testing.T) {
		in := map[string]any{
			"costs": rawCosts(100, map[string]float64{
				"storage_api": 10, "storage_bytes": 20,
				"data_in": 5, "data_out": 5, "data_internode": 0,
			}),
		}

		out, err := enrich.NormalizeCosts(in)
		require.NoError(t, err)

		assert.Equal(t, map[string]any{
			"total":                     100.0,
			"storage_api":               10.0,
			"storage_bytes":             20.0,
			"data_in":                   5.0,
			"data_out":                  5.0,
			"data_internode":            0.0,
			"storage":                   30.0,
			"data_transfer":             10.0,
			"data_transfer_and_storage": 40.0,
		}, out["costs"])
	})

	t.Run("passes other dimensions and fields through", func(t *testing.T) {
		in := map[string]any{
			"name": "prod",
			"costs": rawCosts(7.5, map[string]float64{
				"storage_api": 0.25, "storage_bytes": 0.5,
				"data_in": 0.125, "data_out": 0.25, "data_internode": 0.5,
				"capacity": 5.875,
			}),
		}

		out, err := enrich.NormalizeCosts(in)
		require.NoError(t, err)

		costs := out["costs"].(map[string]any)
		assert.Equal(t, "prod", out["name"])
		assert.Equal(t, 7.5, costs["total"])
		assert.Equal(t, 5.875, costs["capacity"])
		assert.Equal(t, 0.75, costs["storage"])
		assert.Equal(t, 0.875, costs["data_transfer"])
		assert.Equal(t, 1.625, costs["data_transfer_and_storage"])
	})

	t.Run("sums without float drift", func(t *testing.T) {
		in := map[string]any{
			"costs": rawCosts(1, map[string]float64{
				"storage_api": 0.1, "storage_bytes": 0.2,
				"data_in": 0, "data_out": 0, "data_internode": 0,
			}),
		}

		out, err := enrich.NormalizeCosts(in)
		require.NoError(t, err)
		assert.Equal(t, 0.3, out["costs"].(map[string]any)["storage"])
	})

	t.Run("recomputes aggregates the api already reports", func(t *testing.T) {
		costs := rawCosts(3, map[string]float64{
			"storage_api": 1, "storage_bytes": 1,
			"data_in": 0, "data_out": 1, "data_internode": 0,
		})
		costs["dimensions"] = append(costs["dimensions"].([]any), map[string]any{"type": "storage", "cost": 99.0})

		out, err := enrich.NormalizeCosts(map[string]any{"costs": costs})
		require.NoError(t, err)
		assert.Equal(t, 2.0, out["costs"].(map[string]any)["storage"])
	})

	t.Run("does not modify its input", func(t *testing.T) {
		costs := rawCosts(1, map[string]float64{
			"storage_api": 1, "storage_bytes": 0,
			"data_in": 0, "data_out": 0, "data_internode": 0,
		})
		in := map[string]any{"costs": costs}

		_, err := enrich.NormalizeCosts(in)
		require.NoError(t, err)
		assert.Contains(t, in["costs"], "dimensions")
		assert.NotContains(t, in["costs"], "storage")
	})

	t.Run("fails when a required dimension is missing", func(t *testing.T) {
		in := map[string]any{
			"costs": rawCosts(1, map[string]float64{
				"storage_api": 1, "storage_bytes": 0,
				"data_in": 0, "data_out": 0,
			}),
		}

		_, err := enrich.NormalizeCosts(in)
		var se *enrich.SchemaError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "costs.dimensions.data_internode", se.Field)
		assert.Equal(t, in, se.Record)
	})

	t.Run("fails on an already normalized record", func(t *testing.T) {
		in := map[string]any{
			"costs": rawCosts(1, map[string]float64{
				"storage_api": 1, "storage_bytes": 0,
				"data_in": 0, "data_out": 0, "data_internode": 0,
			}),
		}
		once, err := enrich.NormalizeCosts(in)
		require.NoError(t, err)

		_, err = enrich.NormalizeCosts(once)
		var se *enrich.SchemaError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "costs.dimensions", se.Field)
	})

	t.Run("fails without costs", func(t *testing.T) {
		_, err := enrich.NormalizeCosts(map[string]any{"id": "x"})
		var se *enrich.SchemaError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "costs", se.Field)
	})

	t.Run("fails on a non numeric cost", func(t *testing.T) {
		in := map[string]any{"costs": map[string]any{
			"total":      1.0,
			"dimensions": []any{map[string]any{"type": "storage_api", "cost": "1"}},
		}}

		_, err := enrich.NormalizeCosts(in)
		var se *enrich.SchemaError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, "costs.dimensions[0].cost", se.Field)
	})
}
