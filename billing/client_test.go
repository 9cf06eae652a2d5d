package billing_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banzaicloud/ess-billing-exporter/billing"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestClient_Get(t *testing.T) {
	var got *http.Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "123", "costs": {"total": 1.5}}`))
	}))
	defer srv.Close()

	c := billing.NewClient(billing.Config{
		BaseURL: srv.URL,
		APIKey:  "secret",
		Window:  billing.DefaultWindow(),
	}, billing.WithClock(fixedClock(time.Date(2024, 3, 1, 0, 30, 0, 0, time.UTC))))

	body, err := c.Get(context.Background(), billing.OrgCostsEndpoint("123"))
	require.NoError(t, err)

	assert.Equal(t, "123", body["id"])
	assert.Equal(t, map[string]any{"total": 1.5}, body["costs"])

	require.NotNil(t, got)
	assert.Equal(t, "/api/v1/billing/costs/123", got.URL.Path)
	assert.Equal(t, "2024-02-28", got.URL.Query().Get("from"))
	assert.Equal(t, "2024-02-29", got.URL.Query().Get("to"))
	assert.Equal(t, "ApiKey secret", got.Header.Get("Authorization"))
}

func TestClient_GetWithHTTPClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id": "123"}`))
	}))
	defer srv.Close()

	c := billing.NewClient(billing.Config{BaseURL: srv.URL}, billing.WithHTTPClient(srv.Client()))

	body, err := c.Get(context.Background(), billing.AccountEndpoint)
	require.NoError(t, err)
	assert.Equal(t, "123", body["id"])

	_, err = billing.NewClient(billing.Config{BaseURL: srv.URL}).Get(context.Background(), billing.AccountEndpoint)
	var fe *billing.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Zero(t, fe.StatusCode)
}

func TestClient_GetWindowMovesWithClock(t *testing.T) {
	var froms []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		froms = append(froms, r.URL.Query().Get("from"))
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	c := billing.NewClient(billing.Config{BaseURL: srv.URL, Window: billing.DefaultWindow()},
		billing.WithClock(func() time.Time { return now }))

	_, err := c.Get(context.Background(), billing.AccountEndpoint)
	require.NoError(t, err)
	now = now.Add(24 * time.Hour)
	_, err = c.Get(context.Background(), billing.AccountEndpoint)
	require.NoError(t, err)

	assert.Equal(t, []string{"2024-03-08", "2024-03-09"}, froms)
}

func TestClient_GetKeepsExplicitScheme(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := billing.NewClient(billing.Config{BaseURL: srv.URL, APIKey: "Bearer token"})
	_, err := c.Get(context.Background(), billing.AccountEndpoint)
	require.NoError(t, err)
	assert.Equal(t, "Bearer token", auth)
}

func TestClient_GetErrors(t *testing.T) {
	t.Run("non 200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"errors":[{"code":"root.unauthorized"}]}`))
		}))
		defer srv.Close()

		c := billing.NewClient(billing.Config{BaseURL: srv.URL})
		_, err := c.Get(context.Background(), billing.DeploymentsEndpoint("123"))

		var fe *billing.FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, http.StatusUnauthorized, fe.StatusCode)
		assert.Equal(t, "/api/v1/billing/costs/123/deployments", fe.Endpoint)
		assert.Contains(t, fe.Body, "root.unauthorized")
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("malformed body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`not json`))
		}))
		defer srv.Close()

		c := billing.NewClient(billing.Config{BaseURL: srv.URL})
		_, err := c.Get(context.Background(), billing.AccountEndpoint)

		var fe *billing.FetchError
		require.True(t, errors.As(err, &fe))
		assert.Equal(t, http.StatusOK, fe.StatusCode)
		assert.Contains(t, err.Error(), "decode response")
	})

	t.Run("unreachable host", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		srv.Close()

		c := billing.NewClient(billing.Config{BaseURL: srv.URL})
		_, err := c.Get(context.Background(), billing.AccountEndpoint)

		var fe *billing.FetchError
		require.True(t, errors.As(err, &fe))
		assert.Zero(t, fe.StatusCode)
		assert.NotNil(t, fe.Err)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := billing.NewClient(billing.Config{BaseURL: "http://127.0.0.1:1", RequestsPerSecond: 1})
		_, err := c.Get(ctx, billing.AccountEndpoint)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestClient_OrganizationID(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		want    string
		wantErr bool
	}{
		{"string id", `{"id": "2185109087"}`, "2185109087", false},
		{"numeric id", `{"id": 2185109087}`, "2185109087", false},
		{"missing id", `{"name": "acme"}`, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, billing.AccountEndpoint, r.URL.Path)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			id, err := billing.NewClient(billing.Config{BaseURL: srv.URL}).OrganizationID(context.Background())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, id)
		})
	}
}

func TestEndpoints(t *testing.T) {
	assert.Equal(t, "/api/v1/billing/costs/o1/deployments/d1/items", billing.ItemizedEndpoint("o1", "d1"))
	assert.Equal(t, "/api/v1/billing/costs/o1/deployments/d1/charts", billing.ChartsEndpoint("o1", "d1"))
}

func TestWindow_Range(t *testing.T) {
	from, to := billing.DefaultWindow().Range(time.Date(2024, 1, 1, 23, 0, 0, 0, time.FixedZone("X", -2*3600)))
	assert.Equal(t, "2023-12-31", from)
	assert.Equal(t, "2024-01-01", to)
}
