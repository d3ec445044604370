package facilitator

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/x402-teller/facilitator-go/pkg/types"
)

// HandleRequest dispatches a transport-independent request to the matching
// operation. It always produces a response: unexpected internal failures
// become 500s, unknown routes 404s, never a returned error.
func (f *Facilitator) HandleRequest(ctx context.Context, req *HTTPRequest) *HTTPResponse {
	resp := f.dispatch(ctx, req)
	requestsTotal.WithLabelValues(operationLabel(req), strconv.Itoa(resp.Status)).Inc()
	return resp
}

func (f *Facilitator) dispatch(ctx context.Context, req *HTTPRequest) *HTTPResponse {
	switch {
	case req.Method == http.MethodGet && req.Path == "/supported":
		return &HTTPResponse{Status: http.StatusOK, Body: f.ListSupportedKinds()}

	case req.Method == http.MethodGet && req.Path == "/public-keys":
		return &HTTPResponse{Status: http.StatusOK, Body: f.PublicKeys()}

	case req.Method == http.MethodPost && req.Path == "/verify":
		return f.handleVerify(ctx, req)

	case req.Method == http.MethodPost && req.Path == "/settle":
		return f.handleSettle(ctx, req)

	case req.Method == http.MethodGet && strings.Contains(req.Path, "/dashboard/endpoints"):
		return f.handleDashboardEndpoints(ctx, req)

	case req.Method == http.MethodGet && strings.Contains(req.Path, "/dashboard/transactions"):
		return f.handleDashboardTransactions(ctx, req)

	case req.Method == http.MethodGet && req.Path == "/dashboard":
		return f.handleDashboard(ctx)

	case req.Method == http.MethodGet && strings.Contains(req.Path, "/balance"):
		return f.handleBalance(ctx, req)

	default:
		return &HTTPResponse{
			Status: http.StatusNotFound,
			Body:   ErrorBody{Error: "Not found"},
		}
	}
}

func (f *Facilitator) handleVerify(ctx context.Context, req *HTTPRequest) *HTTPResponse {
	if err := validatePaymentRequest(req.Body); err != nil {
		return &HTTPResponse{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: "Missing paymentPayload or paymentRequirements"},
		}
	}
	var body types.VerifyRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return &HTTPResponse{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: "Missing paymentPayload or paymentRequirements"},
		}
	}

	resp, err := f.VerifyPayment(ctx, &body)
	if err != nil {
		return &HTTPResponse{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: "Failed to verify payment", Message: err.Error()},
		}
	}
	return &HTTPResponse{Status: http.StatusOK, Body: resp}
}

func (f *Facilitator) handleSettle(ctx context.Context, req *HTTPRequest) *HTTPResponse {
	if err := validatePaymentRequest(req.Body); err != nil {
		return &HTTPResponse{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: "Missing paymentPayload or paymentRequirements"},
		}
	}
	var body types.SettleRequest
	if err := json.Unmarshal(req.Body, &body); err != nil {
		return &HTTPResponse{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: "Missing paymentPayload or paymentRequirements"},
		}
	}

	resp, err := f.SettlePayment(ctx, &body)
	if err != nil {
		return &HTTPResponse{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: "Failed to settle payment", Message: err.Error()},
		}
	}
	return &HTTPResponse{Status: http.StatusOK, Body: resp}
}

func (f *Facilitator) handleDashboard(ctx context.Context) *HTTPResponse {
	stats, err := f.DashboardStats(ctx)
	if err != nil {
		return &HTTPResponse{
			Status: http.StatusInternalServerError,
			Body:   ErrorBody{Error: "Failed to fetch dashboard stats", Message: err.Error()},
		}
	}
	return &HTTPResponse{Status: http.StatusOK, Body: stats}
}

func (f *Facilitator) handleDashboardEndpoints(ctx context.Context, req *HTTPRequest) *HTTPResponse {
	timeframe := req.Query["timeframe"]
	resp, err := f.GetPaywallEndpoints(ctx, timeframe)
	if err != nil {
		return &HTTPResponse{
			Status: http.StatusInternalServerError,
			Body:   ErrorBody{Error: "Failed to fetch endpoint stats", Message: err.Error()},
		}
	}
	return &HTTPResponse{Status: http.StatusOK, Body: resp}
}

func (f *Facilitator) handleDashboardTransactions(ctx context.Context, req *HTTPRequest) *HTTPResponse {
	limit := intQuery(req.Query, "limit", 50)
	offset := intQuery(req.Query, "offset", 0)
	status := req.Query["status"]

	txs, err := f.ListTransactions(ctx, limit, offset, status)
	if err != nil {
		return &HTTPResponse{
			Status: http.StatusInternalServerError,
			Body:   ErrorBody{Error: "Failed to fetch transactions", Message: err.Error()},
		}
	}
	return &HTTPResponse{Status: http.StatusOK, Body: txs}
}

func (f *Facilitator) handleBalance(ctx context.Context, req *HTTPRequest) *HTTPResponse {
	network := req.Query["network"]
	if network == "" {
		return &HTTPResponse{
			Status: http.StatusBadRequest,
			Body:   ErrorBody{Error: "Missing network query parameter"},
		}
	}
	resp, err := f.Balance(ctx, network)
	if err != nil {
		return &HTTPResponse{
			Status: http.StatusInternalServerError,
			Body:   ErrorBody{Error: "Failed to fetch balance", Message: err.Error()},
		}
	}
	return &HTTPResponse{Status: http.StatusOK, Body: resp}
}

func intQuery(query map[string]string, key string, fallback int) int {
	raw, ok := query[key]
	if !ok || raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// operationLabel maps a request to a fixed label set so unmatched paths
// cannot grow the metric's cardinality.
func operationLabel(req *HTTPRequest) string {
	switch {
	case strings.Contains(req.Path, "/dashboard/endpoints"):
		return "dashboard_endpoints"
	case strings.Contains(req.Path, "/dashboard/transactions"):
		return "dashboard_transactions"
	case strings.Contains(req.Path, "/balance"):
		return "balance"
	case req.Path == "/supported":
		return "supported"
	case req.Path == "/public-keys":
		return "public_keys"
	case req.Path == "/verify":
		return "verify"
	case req.Path == "/settle":
		return "settle"
	case req.Path == "/dashboard":
		return "dashboard"
	default:
		return "unknown"
	}
}
