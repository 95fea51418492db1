package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned by Debit when the wallet rejects the
// charge. Callers map it onto the engine's error taxonomy.
var ErrInsufficientFunds = errors.New("ledger: insufficient funds")

// Entry is one transaction record sent to the wallet subsystem.
// Reference doubles as the idempotency key: one reference per bulk
// purchase, one per block payout.
type Entry struct {
	OwnerID   string         `json:"owner_id"`
	Type      string         `json:"type"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string         `json:"reference"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

const (
	EntryBlockPurchase = "block_purchase"
	EntryProfitPayout  = "profit_payout"
)

// Gateway is the wallet subsystem seen from the engine. Debit and
// Credit move balance; RecordTransaction writes the audit entry. All
// calls are remote and may be slow or fail.
type Gateway interface {
	Debit(ctx context.Context, ownerID string, amount decimal.Decimal) error
	Credit(ctx context.Context, ownerID string, amount decimal.Decimal) error
	RecordTransaction(ctx context.Context, entry Entry) error
}
