// internal/history/history.go
package history

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-otc/internal/logger"
)

// Entry is one settled swap in the unified trade-history log.
type Entry struct {
	Timestamp     time.Time
	SwapID        string
	BuyerAddress  string
	TokenAmount   uint64
	SettlementSOL float64
	UnitPriceSOL  float64
	TxSignature   string
}

func csvHeaders() []string {
	return []string{"timestamp", "swap_id", "buyer", "token_amount", "settlement_sol", "unit_price_sol", "signature"}
}

func (e Entry) toCSV() []string {
	return []string{
		e.Timestamp.UTC().Format(time.RFC3339),
		e.SwapID,
		e.BuyerAddress,
		strconv.FormatUint(e.TokenAmount, 10),
		strconv.FormatFloat(e.SettlementSOL, 'f', 9, 64),
		strconv.FormatFloat(e.UnitPriceSOL, 'f', 12, 64),
		e.TxSignature,
	}
}

// TradeHistory manages the append-only settlement log used by
// reporting, plus an in-memory ring with aggregate statistics.
type TradeHistory struct {
	mu         sync.RWMutex
	csvWriter  *logger.SafeCSVWriter
	entries    []Entry
	maxEntries int
	logger     *zap.Logger

	totalSwaps  int
	totalUnits  uint64
	totalVolume float64
}

// Statistics holds aggregate settlement statistics.
type Statistics struct {
	TotalSwaps     int     `json:"total_swaps"`
	TotalUnitsSold uint64  `json:"total_units_sold"`
	TotalVolumeSOL float64 `json:"total_volume_sol"`
}

// NewTradeHistory creates the trade log under logDir/trades.
func NewTradeHistory(logDir string, maxEntries int, zapLogger *zap.Logger) (*TradeHistory, error) {
	csvPath := filepath.Join(logDir, "trades", "settlements.csv")

	csvWriter, err := logger.NewSafeCSVWriter(csvPath, csvHeaders(), 30*time.Second, zapLogger)
	if err != nil {
		return nil, fmt.Errorf("failed to create CSV writer: %w", err)
	}

	th := &TradeHistory{
		csvWriter:  csvWriter,
		entries:    make([]Entry, 0, maxEntries),
		maxEntries: maxEntries,
		logger:     zapLogger,
	}

	zapLogger.Info("Trade history initialized",
		zap.String("csv_file", csvPath),
		zap.Int("max_memory_entries", maxEntries))

	return th, nil
}

// Append records one completed swap.
func (th *TradeHistory) Append(entry Entry) error {
	th.mu.Lock()
	defer th.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	if err := th.csvWriter.WriteRecord(entry.toCSV()); err != nil {
		th.logger.Error("Failed to write trade to CSV",
			zap.String("swap_id", entry.SwapID),
			zap.Error(err))
		return fmt.Errorf("failed to write trade: %w", err)
	}

	if len(th.entries) >= th.maxEntries {
		th.entries = th.entries[1:]
	}
	th.entries = append(th.entries, entry)

	th.totalSwaps++
	th.totalUnits += entry.TokenAmount
	th.totalVolume += entry.SettlementSOL

	th.logger.Info("Settlement logged",
		zap.String("swap_id", entry.SwapID),
		zap.String("buyer", entry.BuyerAddress),
		zap.Uint64("token_amount", entry.TokenAmount),
		zap.Float64("settlement_sol", entry.SettlementSOL))

	return nil
}

// Recent returns up to limit most recent entries.
func (th *TradeHistory) Recent(limit int) []Entry {
	th.mu.RLock()
	defer th.mu.RUnlock()

	if limit <= 0 || limit > len(th.entries) {
		limit = len(th.entries)
	}

	start := len(th.entries) - limit
	result := make([]Entry, limit)
	copy(result, th.entries[start:])
	return result
}

// GetStatistics returns aggregate settlement stats.
func (th *TradeHistory) GetStatistics() Statistics {
	th.mu.RLock()
	defer th.mu.RUnlock()

	return Statistics{
		TotalSwaps:     th.totalSwaps,
		TotalUnitsSold: th.totalUnits,
		TotalVolumeSOL: th.totalVolume,
	}
}

// Flush forces a write of any buffered entries.
func (th *TradeHistory) Flush() error {
	return th.csvWriter.Flush()
}

// Close flushes and closes the underlying log file.
func (th *TradeHistory) Close() error {
	th.mu.Lock()
	defer th.mu.Unlock()

	th.logger.Info("Closing trade history",
		zap.Int("total_swaps", th.totalSwaps),
		zap.Uint64("total_units", th.totalUnits),
		zap.Float64("total_volume_sol", th.totalVolume))

	return th.csvWriter.Close()
}
