package facilitator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/x402-teller/facilitator-go/ledger"
)

func TestParseRoutesLiteralPrice(t *testing.T) {
	routes, err := ParseRoutes(map[string]interface{}{
		"/api/weather": "$0.10",
		"/api/quotes":  "0.05",
		"/api/bulk":    2.5,
	})
	require.NoError(t, err)
	require.Len(t, routes, 3)

	assert.Equal(t, "$0.10", routes["/api/weather"].Price)
	assert.Equal(t, int64(100000), routes["/api/weather"].PriceBase)

	assert.Equal(t, "$0.05", routes["/api/quotes"].Price)
	assert.Equal(t, int64(50000), routes["/api/quotes"].PriceBase)

	assert.Equal(t, int64(2500000), routes["/api/bulk"].PriceBase)
}

func TestParseRoutesStructured(t *testing.T) {
	routes, err := ParseRoutes(map[string]interface{}{
		"/api/weather": map[string]interface{}{
			"price":   "$0.01",
			"network": "base",
			"config": map[string]interface{}{
				"description": "Hourly forecasts",
			},
		},
	})
	require.NoError(t, err)

	entry := routes["/api/weather"]
	assert.Equal(t, "$0.01", entry.Price)
	assert.Equal(t, int64(10000), entry.PriceBase)
	assert.Equal(t, "base", entry.Network)
	assert.Equal(t, "Hourly forecasts", entry.Description)
}

func TestParseRoutesRejectsBadValues(t *testing.T) {
	_, err := ParseRoutes(map[string]interface{}{"/a": "$not-a-price"})
	assert.Error(t, err)

	_, err = ParseRoutes(map[string]interface{}{"/a": "-0.10"})
	assert.Error(t, err)

	_, err = ParseRoutes(map[string]interface{}{"/a": map[string]interface{}{"network": "base"}})
	assert.Error(t, err)

	_, err = ParseRoutes(map[string]interface{}{"/a": []interface{}{}})
	assert.Error(t, err)
}

func TestParseRoutesNodePreservesOrder(t *testing.T) {
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`
/api/zebra: "$0.10"
/api/apple:
  price: "$0.05"
  network: base
/api/mango: 0.02
`), &node))

	routes, err := ParseRoutesNode(&node)
	require.NoError(t, err)
	require.Len(t, routes, 3)

	assert.Equal(t, 0, routes["/api/zebra"].Order)
	assert.Equal(t, 1, routes["/api/apple"].Order)
	assert.Equal(t, 2, routes["/api/mango"].Order)
	assert.Equal(t, "base", routes["/api/apple"].Network)
	assert.Equal(t, int64(20000), routes["/api/mango"].PriceBase)
}

func TestParseRoutesNodeRejectsNonMapping(t *testing.T) {
	var node yaml.Node
	require.NoError(t, yaml.Unmarshal([]byte(`["/a", "/b"]`), &node))

	_, err := ParseRoutesNode(&node)
	assert.Error(t, err)
}

func TestParseRoutesNodeEmpty(t *testing.T) {
	routes, err := ParseRoutesNode(nil)
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestMergeEndpointStatsSortsByCalls(t *testing.T) {
	now := time.Now()
	routes := RoutesConfig{
		"/quiet":  {Price: "$0.01"},
		"/busy":   {Price: "$0.02"},
		"/medium": {Price: "$0.03"},
	}
	stats := []ledger.EndpointStats{
		{Endpoint: "/medium", NumberOfCalls: 3, SuccessfulCalls: 2, FailedCalls: 1, TotalRevenue: 20000, AverageAmount: 10000, LastAccessed: &now},
		{Endpoint: "/busy", NumberOfCalls: 9, SuccessfulCalls: 9, TotalRevenue: 90000, AverageAmount: 10000, LastAccessed: &now},
	}

	merged := mergeEndpointStats(routes, stats)
	require.Len(t, merged, 3)

	assert.Equal(t, "/busy", merged[0].EndpointPath)
	assert.Equal(t, int64(9), merged[0].NumberOfCalls)
	assert.Equal(t, "/medium", merged[1].EndpointPath)
	assert.Equal(t, "/quiet", merged[2].EndpointPath)

	// Unmatched routes keep zero activity and a null last access time.
	assert.Zero(t, merged[2].NumberOfCalls)
	assert.Nil(t, merged[2].LastAccessed)
	assert.Equal(t, "$0.01", merged[2].Price)
}

func TestMergeEndpointStatsTieKeepsConfigOrder(t *testing.T) {
	// /zebra comes before /apple in the configuration; with equal call
	// counts it must stay first, not be re-sorted by path.
	routes := RoutesConfig{
		"/zebra": {Price: "$0.01", Order: 0},
		"/apple": {Price: "$0.02", Order: 1},
	}
	stats := []ledger.EndpointStats{
		{Endpoint: "/zebra", NumberOfCalls: 4},
		{Endpoint: "/apple", NumberOfCalls: 4},
	}

	merged := mergeEndpointStats(routes, stats)
	require.Len(t, merged, 2)
	assert.Equal(t, "/zebra", merged[0].EndpointPath)
	assert.Equal(t, "/apple", merged[1].EndpointPath)
}

func TestMergeEndpointStatsIgnoresUnconfiguredPaths(t *testing.T) {
	routes := RoutesConfig{"/known": {Price: "$0.01"}}
	stats := []ledger.EndpointStats{
		{Endpoint: "/unknown", NumberOfCalls: 5},
	}

	merged := mergeEndpointStats(routes, stats)
	require.Len(t, merged, 1)
	assert.Equal(t, "/known", merged[0].EndpointPath)
}
