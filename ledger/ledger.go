// Package ledger records payment activity in a relational database. All
// writes are best-effort from the caller's point of view: the facilitator
// reports ledger failures but never lets them affect a payment outcome.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	// ErrInvalidClient indicates the client address is neither a valid EVM
	// nor a valid Solana address.
	ErrInvalidClient = errors.New("ledger: invalid client address")

	// ErrInvalidAmount indicates a non-positive transaction amount.
	ErrInvalidAmount = errors.New("ledger: amount must be positive")

	// ErrInvalidStatus indicates an unknown transaction status.
	ErrInvalidStatus = errors.New("ledger: invalid transaction status")
)

// DefaultListLimit caps transaction listings when no limit is given.
const DefaultListLimit = 50

// Ledger wraps the database handle and exposes the bookkeeping operations.
type Ledger struct {
	db *gorm.DB
}

// Open connects to the database named by dsn. A postgres:// or postgresql://
// DSN selects Postgres; anything else is treated as a SQLite path, with the
// empty string meaning an in-memory database.
func Open(dsn string) (*Ledger, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		dialector = postgres.Open(dsn)
	} else {
		if dsn == "" {
			dsn = "file::memory:?cache=shared"
		}
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger database: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Provision creates or migrates the transactions table.
func (l *Ledger) Provision(ctx context.Context) error {
	if err := l.db.WithContext(ctx).AutoMigrate(&Transaction{}); err != nil {
		return fmt.Errorf("failed to migrate ledger schema: %w", err)
	}
	return nil
}

// CreateTransaction validates and inserts a new transaction record.
func (l *Ledger) CreateTransaction(ctx context.Context, tx *Transaction) error {
	if !IsValidEvmAddress(tx.Client) && !IsValidSolanaAddress(tx.Client) {
		return ErrInvalidClient
	}
	if tx.Amount <= 0 {
		return ErrInvalidAmount
	}
	if !validStatus(tx.Status) {
		return ErrInvalidStatus
	}
	if tx.Time.IsZero() {
		tx.Time = time.Now()
	}
	if err := l.db.WithContext(ctx).Create(tx).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// UpdateTransactionStatus updates the status of the transaction with the
// given hash. It reports whether a matching record existed.
func (l *Ledger) UpdateTransactionStatus(ctx context.Context, txHash, status string) (bool, error) {
	if !validStatus(status) {
		return false, ErrInvalidStatus
	}
	result := l.db.WithContext(ctx).
		Model(&Transaction{}).
		Where("tx_hash = ?", txHash).
		Update("status", status)
	if result.Error != nil {
		return false, fmt.Errorf("failed to update transaction status: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ListTransactions returns transactions newest first, optionally filtered by
// status.
func (l *Ledger) ListTransactions(ctx context.Context, limit, offset int, status string) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if offset < 0 {
		offset = 0
	}

	query := l.db.WithContext(ctx).Model(&Transaction{}).Order("time DESC")
	if status != "" {
		if !validStatus(status) {
			return nil, ErrInvalidStatus
		}
		query = query.Where("status = ?", status)
	}

	var txs []Transaction
	if err := query.Limit(limit).Offset(offset).Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// TransactionsByClient returns a client's transactions, newest first.
func (l *Ledger) TransactionsByClient(ctx context.Context, client string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var txs []Transaction
	err := l.db.WithContext(ctx).
		Where("client = ?", client).
		Order("time DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by client: %w", err)
	}
	return txs, nil
}

// TransactionsByEndpoint returns an endpoint's transactions, newest first.
func (l *Ledger) TransactionsByEndpoint(ctx context.Context, endpoint string, limit int) ([]Transaction, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var txs []Transaction
	err := l.db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Order("time DESC").
		Limit(limit).
		Find(&txs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by endpoint: %w", err)
	}
	return txs, nil
}

// GetStats returns ledger-wide aggregates for the dashboard.
func (l *Ledger) GetStats(ctx context.Context) (*Stats, error) {
	db := l.db.WithContext(ctx).Model(&Transaction{})
	stats := &Stats{}

	if err := db.Session(&gorm.Session{}).Count(&stats.TotalTransactions).Error; err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	counts := map[string]*int64{
		StatusPending:  &stats.PendingTransactions,
		StatusVerified: &stats.VerifiedTransactions,
		StatusSettled:  &stats.SettledTransactions,
		StatusFailed:   &stats.FailedTransactions,
	}
	for status, dest := range counts {
		err := db.Session(&gorm.Session{}).Where("status = ?", status).Count(dest).Error
		if err != nil {
			return nil, fmt.Errorf("failed to count %s transactions: %w", status, err)
		}
	}

	var volume struct{ Total int64 }
	err := db.Session(&gorm.Session{}).
		Select("COALESCE(SUM(amount), 0) AS total").
		Where("status = ?", StatusSettled).
		Scan(&volume).Error
	if err != nil {
		return nil, fmt.Errorf("failed to sum settled volume: %w", err)
	}
	stats.TotalVolume = volume.Total

	err = db.Session(&gorm.Session{}).
		Distinct("client").
		Count(&stats.UniqueClients).Error
	if err != nil {
		return nil, fmt.Errorf("failed to count unique clients: %w", err)
	}

	return stats, nil
}

// GetEndpointStats aggregates activity per endpoint within a timeframe.
// Recognized timeframes are "24h", "7d" and "30d"; anything else means all
// time.
func (l *Ledger) GetEndpointStats(ctx context.Context, timeframe string) ([]EndpointStats, error) {
	query := l.db.WithContext(ctx).Model(&Transaction{})
	if since := sinceForTimeframe(timeframe, time.Now()); !since.IsZero() {
		query = query.Where("time >= ?", since)
	}

	var txs []Transaction
	if err := query.Find(&txs).Error; err != nil {
		return nil, fmt.Errorf("failed to load transactions for endpoint stats: %w", err)
	}

	byEndpoint := make(map[string]*EndpointStats)
	for i := range txs {
		tx := &txs[i]
		stats, ok := byEndpoint[tx.Endpoint]
		if !ok {
			stats = &EndpointStats{Endpoint: tx.Endpoint}
			byEndpoint[tx.Endpoint] = stats
		}
		stats.NumberOfCalls++
		switch tx.Status {
		case StatusSettled:
			stats.SuccessfulCalls++
			stats.TotalRevenue += tx.Amount
		case StatusFailed:
			stats.FailedCalls++
		}
		stats.AverageAmount += float64(tx.Amount)
		if stats.LastAccessed == nil || tx.Time.After(*stats.LastAccessed) {
			t := tx.Time
			stats.LastAccessed = &t
		}
	}

	rows := make([]EndpointStats, 0, len(byEndpoint))
	for _, stats := range byEndpoint {
		stats.AverageAmount /= float64(stats.NumberOfCalls)
		rows = append(rows, *stats)
	}
	return rows, nil
}

func sinceForTimeframe(timeframe string, now time.Time) time.Time {
	switch timeframe {
	case "24h":
		return now.Add(-24 * time.Hour)
	case "7d":
		return now.AddDate(0, 0, -7)
	case "30d":
		return now.AddDate(0, 0, -30)
	default:
		return time.Time{}
	}
}

func validStatus(status string) bool {
	switch status {
	case StatusPending, StatusVerified, StatusSettled, StatusFailed:
		return true
	}
	return false
}
