package ledger

import "time"

// Transaction statuses. A record moves pending -> verified -> settled, or to
// failed when settlement does not go through.
const (
	StatusPending  = "pending"
	StatusVerified = "verified"
	StatusSettled  = "settled"
	StatusFailed   = "failed"
)

// Transaction is one payment observed by the facilitator. TxHash is unique:
// a verify followed by a settle of the same payment updates the existing row.
type Transaction struct {
	ID       uint      `gorm:"primaryKey;autoIncrement" json:"txID"`
	Client   string    `gorm:"not null;index" json:"client"`
	TxHash   string    `gorm:"not null;uniqueIndex" json:"txHash"`
	Amount   int64     `gorm:"not null" json:"amount"`
	Endpoint string    `gorm:"not null;index" json:"endpoint"`
	Network  string    `json:"network,omitempty"`
	Asset    string    `json:"asset,omitempty"`
	Status   string    `gorm:"not null;default:pending;index" json:"status"`
	Time     time.Time `gorm:"not null;index" json:"time"`
}

// Stats is the aggregate view served by the dashboard.
type Stats struct {
	TotalTransactions    int64  `json:"totalTransactions"`
	PendingTransactions  int64  `json:"pendingTransactions"`
	VerifiedTransactions int64  `json:"verifiedTransactions"`
	SettledTransactions  int64  `json:"settledTransactions"`
	FailedTransactions   int64  `json:"failedTransactions"`
	TotalVolume          int64  `json:"totalVolume"`
	UniqueClients        int64  `json:"uniqueClients"`
}

// EndpointStats aggregates ledger activity for a single endpoint path.
type EndpointStats struct {
	Endpoint        string     `json:"endpointPath"`
	NumberOfCalls   int64      `json:"numberOfCalls"`
	SuccessfulCalls int64      `json:"successfulCalls"`
	FailedCalls     int64      `json:"failedCalls"`
	TotalRevenue    int64      `json:"totalRevenue"`
	AverageAmount   float64    `json:"averageAmount"`
	LastAccessed    *time.Time `json:"lastAccessed"`
}
