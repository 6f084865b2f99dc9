package report

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

func TestAnalyticsClients_BatchGet(t *testing.T) {
	var received map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/v4/reports:batchGet"), r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"reports": [{
				"columnHeader": {
					"dimensions": ["ga:pagePath"],
					"metricHeader": {"metricHeaderEntries": [{"name": "sessions", "type": "INTEGER"}]}
				},
				"data": {"rows": [{"dimensions": ["/"], "metrics": [{"values": ["42"]}]}]},
				"nextPageToken": "10000"
			}]
		}`))
	}))
	defer srv.Close()

	clients := NewAnalyticsClients(testLogger(), option.WithEndpoint(srv.URL+"/"), option.WithoutAuthentication())

	spec := testSpec()
	api, err := clients.Client(context.Background(), spec)
	require.NoError(t, err)

	again, err := clients.Client(context.Background(), spec)
	require.NoError(t, err)
	assert.Same(t, api, again)
	assert.Equal(t, 1, clients.Len())

	req := BuildRequest(spec, 10)
	req.PageToken = "abc"
	pages, err := api.BatchGet(context.Background(), []Request{req})
	require.NoError(t, err)
	require.Len(t, pages, 1)

	p := pages[0]
	assert.Equal(t, "10000", p.NextPageToken)
	assert.Equal(t, []string{"ga:pagePath"}, p.Header.Dimensions)
	assert.Equal(t, []MetricHeaderEntry{{Name: "sessions", Type: "INTEGER"}}, p.Header.Metrics)
	require.Len(t, p.Rows, 1)
	assert.Equal(t, []string{"/"}, p.Rows[0].Dimensions)
	assert.Equal(t, [][]string{{"42"}}, p.Rows[0].Metrics)

	requests := received["reportRequests"].([]any)
	require.Len(t, requests, 1)
	body := requests[0].(map[string]any)
	assert.Equal(t, "12345", body["viewId"])
	assert.Equal(t, "abc", body["pageToken"])
	assert.Equal(t, "ga:pagePath=~^/vehicles", body["filtersExpression"])
}
