package facilitator

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/x402-teller/facilitator-go/gateway"
	"github.com/x402-teller/facilitator-go/gateway/evm"
	"github.com/x402-teller/facilitator-go/gateway/svm"
	"github.com/x402-teller/facilitator-go/ledger"
	"github.com/x402-teller/facilitator-go/pkg/types"
)

// SchemeExact is the only scheme advertised and accepted.
const SchemeExact = "exact"

// Facilitator verifies and settles x402 payments and keeps best-effort
// bookkeeping. Payment outcomes never depend on the ledger: bookkeeping
// failures are logged and counted, nothing more.
type Facilitator struct {
	config Config
	routes RoutesConfig

	evmGateway    gateway.PaymentGateway
	solanaGateway gateway.PaymentGateway
	balances      gateway.BalanceProvider

	evmAddress    string
	solanaAddress string

	ledger      *ledger.Ledger
	ledgerReady chan struct{}
	ledgerUp    atomic.Bool

	log *logrus.Entry
}

// Option customizes a Facilitator, mainly for tests.
type Option func(*Facilitator)

// WithEVMGateway replaces the EVM payment gateway.
func WithEVMGateway(g gateway.PaymentGateway) Option {
	return func(f *Facilitator) { f.evmGateway = g }
}

// WithSolanaGateway replaces the Solana payment gateway.
func WithSolanaGateway(g gateway.PaymentGateway) Option {
	return func(f *Facilitator) { f.solanaGateway = g }
}

// WithBalanceProvider replaces the Solana balance provider.
func WithBalanceProvider(b gateway.BalanceProvider) Option {
	return func(f *Facilitator) { f.balances = b }
}

// WithLedger replaces the bookkeeping ledger.
func WithLedger(l *ledger.Ledger) Option {
	return func(f *Facilitator) { f.ledger = l }
}

// WithLogger replaces the default logger.
func WithLogger(log *logrus.Logger) Option {
	return func(f *Facilitator) { f.log = log.WithField("component", "facilitator") }
}

// New builds a Facilitator from config. Configuration errors fail fast;
// ledger provisioning happens in the background and its completion is
// signaled on Ready.
func New(config Config, opts ...Option) (*Facilitator, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	f := &Facilitator{
		config:      config,
		routes:      config.Routes,
		ledgerReady: make(chan struct{}),
		log:         logrus.StandardLogger().WithField("component", "facilitator"),
	}

	var evmSigner *evm.Signer
	if config.EVMPrivateKey != "" {
		signer, err := evm.NewSigner(config.EVMPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid EVM private key: %w", err)
		}
		evmSigner = signer
		f.evmAddress = signer.Address()
	}

	var solanaSigner *svm.Signer
	if config.SolanaPrivateKey != "" {
		signer, err := svm.NewSigner(config.SolanaPrivateKey)
		if err != nil {
			return nil, fmt.Errorf("invalid Solana private key: %w", err)
		}
		solanaSigner = signer
		f.solanaAddress = signer.PublicKey().String()
	}

	for _, opt := range opts {
		opt(f)
	}

	// Verification on EVM networks needs no key, so the gateway exists even
	// without one; settlement is gated separately.
	if f.evmGateway == nil && config.hasKind(KindEVM) {
		evmOpts := make([]evm.Option, 0, len(config.RPCOverrides))
		for network, url := range config.RPCOverrides {
			if KindForNetwork(network) == KindEVM {
				evmOpts = append(evmOpts, evm.WithRPCOverride(network, url))
			}
		}
		f.evmGateway = evm.New(evmSigner, evmOpts...)
	}

	if f.solanaGateway == nil && config.hasKind(KindSolana) && solanaSigner != nil {
		svmOpts := []svm.Option{}
		if config.MinConfirmations > 0 {
			svmOpts = append(svmOpts, svm.WithMinConfirmations(config.MinConfirmations))
		}
		for network, url := range config.RPCOverrides {
			if KindForNetwork(network) == KindSolana {
				svmOpts = append(svmOpts, svm.WithRPCOverride(network, url))
			}
		}
		g, err := svm.New(solanaSigner, config.SolanaFeePayer, svmOpts...)
		if err != nil {
			return nil, err
		}
		f.solanaGateway = g
		if f.balances == nil {
			f.balances = g
		}
	}

	if f.ledger == nil {
		l, err := ledger.Open(config.LedgerDSN)
		if err != nil {
			f.log.WithError(err).Warn("bookkeeping disabled: ledger unavailable")
			close(f.ledgerReady)
			return f, nil
		}
		f.ledger = l
	}

	go f.provisionLedger()
	return f, nil
}

// provisionLedger migrates the schema in the background. Failure leaves the
// facilitator in degraded mode rather than stopping it.
func (f *Facilitator) provisionLedger() {
	defer close(f.ledgerReady)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := f.ledger.Provision(ctx); err != nil {
		f.log.WithError(err).Warn("bookkeeping disabled: ledger provisioning failed")
		return
	}
	f.ledgerUp.Store(true)
	f.log.Info("ledger provisioned")
}

// Ready is closed once ledger provisioning has finished, whether or not it
// succeeded. Payment endpoints work before then.
func (f *Facilitator) Ready() <-chan struct{} {
	return f.ledgerReady
}

// ListSupportedKinds advertises one exact-scheme kind per configured network,
// in configuration order. Solana kinds carry the fee payer so clients can
// build transactions around it.
func (f *Facilitator) ListSupportedKinds() *types.SupportedResponse {
	kinds := make([]types.SupportedKind, 0, len(f.config.Networks))
	for _, network := range f.config.Networks {
		kind := types.SupportedKind{
			X402Version: 1,
			Scheme:      SchemeExact,
			Network:     network,
		}
		if KindForNetwork(network) == KindSolana && f.config.SolanaFeePayer != "" {
			kind.Extra = map[string]interface{}{"feePayer": f.config.SolanaFeePayer}
		}
		kinds = append(kinds, kind)
	}
	return &types.SupportedResponse{Kinds: kinds}
}

// PublicKeys returns the settlement addresses derived from the configured
// keys.
func (f *Facilitator) PublicKeys() *types.PublicKeysResponse {
	return &types.PublicKeysResponse{
		EvmPublicKey:    f.evmAddress,
		SolanaPublicKey: f.solanaAddress,
	}
}

// VerifyPayment checks a payment against its requirements. Expected rejections
// come back as IsValid=false with a reason; errors mean the check itself could
// not run.
func (f *Facilitator) VerifyPayment(ctx context.Context, req *types.VerifyRequest) (*types.VerifyResponse, error) {
	if req.PaymentPayload == nil || req.PaymentRequirements == nil {
		return nil, fmt.Errorf("missing payment payload or requirements")
	}
	network := req.PaymentRequirements.Network

	if !f.networkConfigured(network) {
		return &types.VerifyResponse{IsValid: false, InvalidReason: "unsupported_network"}, nil
	}

	gw := f.gatewayFor(network)
	if gw == nil {
		// Solana verification co-signs, so it needs the key.
		return &types.VerifyResponse{IsValid: false, InvalidReason: "Solana private key not configured"}, nil
	}

	resp, err := gw.Verify(ctx, req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		return nil, err
	}
	verificationsTotal.WithLabelValues(network, resultLabel(resp.IsValid)).Inc()

	if resp.IsValid && resp.Payer != "" {
		ref := req.PaymentPayload.TransactionRef()
		if ref == "" {
			ref = fmt.Sprintf("verify-%d-%s", time.Now().UnixMilli(), resp.Payer)
		}
		f.record(ctx, &ledger.Transaction{
			Client:   resp.Payer,
			TxHash:   ref,
			Amount:   amountOf(req.PaymentRequirements),
			Endpoint: req.PaymentRequirements.Resource,
			Network:  network,
			Asset:    req.PaymentRequirements.Asset,
			Status:   ledger.StatusVerified,
		})
	}
	return resp, nil
}

// SettlePayment executes a payment on-chain. Expected failures come back as
// Success=false with a reason; errors mean settlement could not be attempted.
func (f *Facilitator) SettlePayment(ctx context.Context, req *types.SettleRequest) (*types.SettleResponse, error) {
	if req.PaymentPayload == nil || req.PaymentRequirements == nil {
		return nil, fmt.Errorf("missing payment payload or requirements")
	}
	network := req.PaymentRequirements.Network

	if !f.networkConfigured(network) {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: "unsupported_network",
			Network:     network,
		}, nil
	}

	kind := KindForNetwork(network)
	if kind == KindEVM && f.config.EVMPrivateKey == "" {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: "EVM private key not configured",
			Network:     network,
		}, nil
	}
	if kind == KindSolana && f.config.SolanaPrivateKey == "" {
		return &types.SettleResponse{
			Success:     false,
			ErrorReason: "Solana private key not configured",
			Network:     network,
		}, nil
	}

	gw := f.gatewayFor(network)
	if gw == nil {
		return nil, fmt.Errorf("no gateway for network %s", network)
	}

	resp, err := gw.Settle(ctx, req.PaymentPayload, req.PaymentRequirements)
	if err != nil {
		return nil, err
	}
	settlementsTotal.WithLabelValues(network, resultLabel(resp.Success)).Inc()

	status := ledger.StatusSettled
	if !resp.Success {
		status = ledger.StatusFailed
	}
	ref := resp.Transaction
	if ref == "" {
		ref = req.PaymentPayload.TransactionRef()
	}
	if ref == "" {
		ref = fmt.Sprintf("settle-%d-%s", time.Now().UnixMilli(), resp.Payer)
	}
	f.recordStatus(ctx, ref, status, &ledger.Transaction{
		Client:   resp.Payer,
		TxHash:   ref,
		Amount:   amountOf(req.PaymentRequirements),
		Endpoint: req.PaymentRequirements.Resource,
		Network:  network,
		Asset:    req.PaymentRequirements.Asset,
		Status:   status,
	})
	return resp, nil
}

// Balance reports the fee payer's settlement-asset balance. Solana only: EVM
// settlement spends from the payer's authorization, not a facilitator float.
func (f *Facilitator) Balance(ctx context.Context, network string) (*types.BalanceResponse, error) {
	if KindForNetwork(network) != KindSolana {
		return &types.BalanceResponse{
			Success:     false,
			ErrorReason: "balance is only available for Solana networks",
		}, nil
	}
	if f.balances == nil {
		return &types.BalanceResponse{
			Success:     false,
			ErrorReason: "Solana private key not configured",
		}, nil
	}
	balance, err := f.balances.Balance(ctx, network)
	if err != nil {
		return nil, err
	}
	return &types.BalanceResponse{Success: true, Balance: balance}, nil
}

// DashboardStats returns ledger-wide aggregates.
func (f *Facilitator) DashboardStats(ctx context.Context) (*ledger.Stats, error) {
	if !f.ledgerAvailable(ctx) {
		return nil, fmt.Errorf("ledger unavailable")
	}
	return f.ledger.GetStats(ctx)
}

// GetPaywallEndpoints merges the configured routes with ledger activity for
// the requested timeframe. A failing ledger degrades to zeroed activity
// rather than an error.
func (f *Facilitator) GetPaywallEndpoints(ctx context.Context, timeframe string) (*PaywallEndpointsResponse, error) {
	var stats []ledger.EndpointStats
	if f.ledgerAvailable(ctx) {
		s, err := f.ledger.GetEndpointStats(ctx, timeframe)
		if err != nil {
			f.log.WithError(err).Warn("endpoint stats unavailable")
		} else {
			stats = s
		}
	}
	endpoints := mergeEndpointStats(f.routes, stats)
	return &PaywallEndpointsResponse{
		Endpoints:  endpoints,
		TotalCount: len(endpoints),
	}, nil
}

// ListTransactions lists recorded transactions, newest first.
func (f *Facilitator) ListTransactions(ctx context.Context, limit, offset int, status string) ([]ledger.Transaction, error) {
	if !f.ledgerAvailable(ctx) {
		return nil, fmt.Errorf("ledger unavailable")
	}
	return f.ledger.ListTransactions(ctx, limit, offset, status)
}

func (f *Facilitator) networkConfigured(network string) bool {
	for _, n := range f.config.Networks {
		if n == network {
			return true
		}
	}
	return false
}

func (f *Facilitator) gatewayFor(network string) gateway.PaymentGateway {
	if KindForNetwork(network) == KindSolana {
		return f.solanaGateway
	}
	return f.evmGateway
}

// ledgerAvailable waits for provisioning to finish, then reports whether
// bookkeeping is usable. Callers arriving during startup block until the
// gate closes or their context expires, so nothing is dropped while the
// schema migration is still running.
func (f *Facilitator) ledgerAvailable(ctx context.Context) bool {
	if f.ledger == nil {
		return false
	}
	select {
	case <-f.ledgerReady:
	case <-ctx.Done():
		return false
	}
	return f.ledgerUp.Load()
}

// record inserts a bookkeeping row, best-effort.
func (f *Facilitator) record(ctx context.Context, tx *ledger.Transaction) {
	if !f.ledgerAvailable(ctx) {
		return
	}
	if err := f.ledger.CreateTransaction(ctx, tx); err != nil {
		ledgerFailuresTotal.Inc()
		f.log.WithError(err).WithField("txHash", tx.TxHash).Warn("bookkeeping write failed")
	}
}

// recordStatus updates the row with the given hash, creating it when no
// earlier verify recorded it. Best-effort.
func (f *Facilitator) recordStatus(ctx context.Context, ref, status string, fallback *ledger.Transaction) {
	if !f.ledgerAvailable(ctx) {
		return
	}
	updated, err := f.ledger.UpdateTransactionStatus(ctx, ref, status)
	if err != nil {
		ledgerFailuresTotal.Inc()
		f.log.WithError(err).WithField("txHash", ref).Warn("bookkeeping update failed")
		return
	}
	if !updated {
		f.record(ctx, fallback)
	}
}

func amountOf(requirements *types.PaymentRequirements) int64 {
	amount, err := strconv.ParseInt(requirements.MaxAmountRequired, 10, 64)
	if err != nil {
		return 0
	}
	return amount
}
