package facilitator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/x402-teller/facilitator-go/ledger"
)

// priceDecimals is the display currency precision used for route prices.
// Matches the USDC base unit scale.
const priceDecimals = 6

// RouteEntry is one priced endpoint. Route values come in two shapes, a bare
// price or a structured object with network and description; both are
// normalized into this form once, when the configuration is parsed.
type RouteEntry struct {
	// Price is the display price, e.g. "$0.10".
	Price string

	// PriceBase is the price in 6-decimal base units.
	PriceBase int64

	// Network optionally pins the route to one network.
	Network string

	// Description optionally describes the endpoint on the dashboard.
	Description string

	// Order is the route's position in the configuration. Dashboard rows
	// with equal call counts keep this order.
	Order int
}

// RoutesConfig maps endpoint paths to their parsed route entries.
type RoutesConfig map[string]RouteEntry

// ParseRoutes normalizes raw route configuration, as decoded from JSON or
// YAML, into a RoutesConfig. Each value is either a price (string or number)
// or an object with price, network and config.description fields. A Go map
// carries no order, so entries are ordered by path; use ParseRoutesNode when
// the source document's order matters.
func ParseRoutes(raw map[string]interface{}) (RoutesConfig, error) {
	paths := make([]string, 0, len(raw))
	for path := range raw {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	routes := make(RoutesConfig, len(raw))
	for i, path := range paths {
		entry, err := parseRouteValue(raw[path])
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", path, err)
		}
		entry.Order = i
		routes[path] = entry
	}
	return routes, nil
}

// ParseRoutesNode normalizes routes from a YAML mapping node, preserving the
// order the routes appear in the file.
func ParseRoutesNode(node *yaml.Node) (RoutesConfig, error) {
	if node == nil || node.Kind == 0 {
		return RoutesConfig{}, nil
	}
	if node.Kind == yaml.DocumentNode && len(node.Content) == 1 {
		node = node.Content[0]
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("routes must be a mapping")
	}

	routes := make(RoutesConfig, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		path := node.Content[i].Value
		var value interface{}
		if err := node.Content[i+1].Decode(&value); err != nil {
			return nil, fmt.Errorf("route %s: %w", path, err)
		}
		entry, err := parseRouteValue(value)
		if err != nil {
			return nil, fmt.Errorf("route %s: %w", path, err)
		}
		entry.Order = i / 2
		routes[path] = entry
	}
	return routes, nil
}

func parseRouteValue(value interface{}) (RouteEntry, error) {
	switch v := value.(type) {
	case string:
		return entryFromPrice(v, "", "")
	case float64:
		return entryFromPrice(fmt.Sprintf("%v", v), "", "")
	case int:
		return entryFromPrice(fmt.Sprintf("%d", v), "", "")
	case map[string]interface{}:
		price, _ := v["price"].(string)
		if price == "" {
			if n, ok := v["price"].(float64); ok {
				price = fmt.Sprintf("%v", n)
			}
		}
		if price == "" {
			return RouteEntry{}, fmt.Errorf("missing price")
		}
		network, _ := v["network"].(string)
		description := ""
		if config, ok := v["config"].(map[string]interface{}); ok {
			description, _ = config["description"].(string)
		}
		return entryFromPrice(price, network, description)
	default:
		return RouteEntry{}, fmt.Errorf("unsupported route value type %T", value)
	}
}

func entryFromPrice(price, network, description string) (RouteEntry, error) {
	base, err := priceBaseUnits(price)
	if err != nil {
		return RouteEntry{}, err
	}
	display := price
	if !strings.HasPrefix(display, "$") {
		display = "$" + display
	}
	return RouteEntry{
		Price:       display,
		PriceBase:   base,
		Network:     network,
		Description: description,
	}, nil
}

func priceBaseUnits(price string) (int64, error) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(price), "$")
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", price, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative price %q", price)
	}
	return d.Shift(priceDecimals).IntPart(), nil
}

// PaywallEndpoint is one dashboard row: a configured route merged with its
// ledger activity.
type PaywallEndpoint struct {
	EndpointPath    string     `json:"endpointPath"`
	NumberOfCalls   int64      `json:"numberOfCalls"`
	SuccessfulCalls int64      `json:"successfulCalls"`
	FailedCalls     int64      `json:"failedCalls"`
	TotalRevenue    int64      `json:"totalRevenue"`
	AverageAmount   float64    `json:"averageAmount"`
	LastAccessed    *time.Time `json:"lastAccessed"`
	Price           string     `json:"price"`
	Network         string     `json:"network,omitempty"`
	Description     string     `json:"description,omitempty"`

	order int
}

// PaywallEndpointsResponse is the dashboard endpoints payload.
type PaywallEndpointsResponse struct {
	Endpoints  []PaywallEndpoint `json:"endpoints"`
	TotalCount int               `json:"totalCount"`
}

// mergeEndpointStats builds the dashboard rows: every configured route
// appears, with zeroed activity when the ledger has nothing for it, sorted
// by call count descending. Ties keep the configuration order.
func mergeEndpointStats(routes RoutesConfig, stats []ledger.EndpointStats) []PaywallEndpoint {
	byPath := make(map[string]ledger.EndpointStats, len(stats))
	for _, s := range stats {
		byPath[s.Endpoint] = s
	}

	endpoints := make([]PaywallEndpoint, 0, len(routes))
	for path, entry := range routes {
		row := PaywallEndpoint{
			EndpointPath: path,
			Price:        entry.Price,
			Network:      entry.Network,
			Description:  entry.Description,
			order:        entry.Order,
		}
		if s, ok := byPath[path]; ok {
			row.NumberOfCalls = s.NumberOfCalls
			row.SuccessfulCalls = s.SuccessfulCalls
			row.FailedCalls = s.FailedCalls
			row.TotalRevenue = s.TotalRevenue
			row.AverageAmount = s.AverageAmount
			row.LastAccessed = s.LastAccessed
		}
		endpoints = append(endpoints, row)
	}

	sort.SliceStable(endpoints, func(i, j int) bool {
		if endpoints[i].NumberOfCalls != endpoints[j].NumberOfCalls {
			return endpoints[i].NumberOfCalls > endpoints[j].NumberOfCalls
		}
		if endpoints[i].order != endpoints[j].order {
			return endpoints[i].order < endpoints[j].order
		}
		return endpoints[i].EndpointPath < endpoints[j].EndpointPath
	})
	return endpoints
}
