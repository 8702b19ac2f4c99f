// internal/storage/models/swap.go
package models

import "time"

// Swap lifecycle statuses. A row moves pending → submitted → completed
// or failed; a pending row may also move straight to failed when the
// network rejects it outright. Completed rows are immutable and are the
// only rows counted toward cumulative curve volume.
const (
	SwapStatusPending   = "pending"
	SwapStatusSubmitted = "submitted"
	SwapStatusCompleted = "completed"
	SwapStatusFailed    = "failed"
)

// Swap is one OTC swap from quote to settlement. SettlementSOL and
// UnitPrice are locked at quote time and never recomputed.
type Swap struct {
	BaseModel
	SwapID        string     `gorm:"uniqueIndex;not null;type:varchar(36)"`
	BuyerAddress  string     `gorm:"index;not null;type:varchar(44)"`
	TokenAmount   uint64     `gorm:"not null"`
	SettlementSOL float64    `gorm:"type:decimal(20,9);not null"`
	UnitPriceSOL  float64    `gorm:"type:decimal(20,12);not null"`
	UnitPriceRef  float64    `gorm:"type:decimal(20,12);not null"`
	Blockhash     string     `gorm:"not null;type:varchar(44)"`
	Status        string     `gorm:"index;not null;type:varchar(20)"`
	TxSignature   *string    `gorm:"type:varchar(88)"`
	ErrorMessage  string     `gorm:"type:text"`
	ExpiresAt     time.Time  `gorm:"not null"`
	CompletedAt   *time.Time `gorm:"index"`
}
