// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rovshanmuradov/solana-otc/internal/storage"
	"github.com/rovshanmuradov/solana-otc/internal/storage/models"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger bridges GORM logging onto zap.
type gormLogger struct {
	zapLogger *zap.Logger
	logLevel  logger.LogLevel
}

func newGormLogger(zapLogger *zap.Logger) logger.Interface {
	return &gormLogger{
		zapLogger: zapLogger,
		logLevel:  logger.Warn,
	}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	newLogger := *l
	newLogger.logLevel = level
	return &newLogger
}

func (l *gormLogger) Info(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Info {
		l.zapLogger.Sugar().Infof(msg, data...)
	}
}

func (l *gormLogger) Warn(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Warn {
		l.zapLogger.Sugar().Warnf(msg, data...)
	}
}

func (l *gormLogger) Error(_ context.Context, msg string, data ...interface{}) {
	if l.logLevel >= logger.Error {
		l.zapLogger.Sugar().Errorf(msg, data...)
	}
}

func (l *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.logLevel <= logger.Silent {
		return
	}

	elapsed := time.Since(begin)
	sql, rows := fc()

	fields := []zap.Field{
		zap.Duration("elapsed", elapsed),
		zap.String("sql", sql),
		zap.Int64("rows", rows),
	}

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		l.zapLogger.Error("trace", append(fields, zap.Error(err))...)
		return
	}

	if l.logLevel >= logger.Info {
		l.zapLogger.Info("trace", fields...)
	}
}

// postgresLedger implements storage.Ledger.
type postgresLedger struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewLedger(dsn string, zapLogger *zap.Logger) (storage.Ledger, error) {
	gormLogger := newGormLogger(zapLogger.Named("gorm"))

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger,
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return &postgresLedger{
		db:     db,
		logger: zapLogger,
	}, nil
}

func (p *postgresLedger) RunMigrations() error {
	var lockObtained bool
	err := p.db.Raw("SELECT pg_try_advisory_lock(201)").Scan(&lockObtained).Error
	if err != nil {
		return fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	if !lockObtained {
		return fmt.Errorf("another migration is in progress")
	}
	defer p.db.Exec("SELECT pg_advisory_unlock(201)")

	if err := p.db.AutoMigrate(&models.Swap{}); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

func (p *postgresLedger) CreateSwap(ctx context.Context, swap *models.Swap) error {
	return p.db.WithContext(ctx).Create(swap).Error
}

func (p *postgresLedger) GetSwap(ctx context.Context, swapID string) (*models.Swap, error) {
	var swap models.Swap
	err := p.db.WithContext(ctx).Where("swap_id = ?", swapID).First(&swap).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, storage.ErrSwapNotFound
		}
		return nil, err
	}
	return &swap, nil
}

func (p *postgresLedger) ListSwapsByBuyer(ctx context.Context, buyerAddress string, limit int) ([]*models.Swap, error) {
	var swaps []*models.Swap
	err := p.db.WithContext(ctx).
		Where("buyer_address = ?", buyerAddress).
		Order("created_at desc").
		Limit(limit).
		Find(&swaps).Error
	return swaps, err
}

func (p *postgresLedger) ListSwapsByStatus(ctx context.Context, status string, limit int) ([]*models.Swap, error) {
	var swaps []*models.Swap
	err := p.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at asc").
		Limit(limit).
		Find(&swaps).Error
	return swaps, err
}

// TransitionSwap is a single conditional UPDATE guarded by the current
// status. RowsAffected == 0 means some other caller already moved the
// row on; the transition is reported as not applied, not as an error.
func (p *postgresLedger) TransitionSwap(ctx context.Context, swapID, fromStatus, toStatus string, update storage.SwapUpdate) (bool, error) {
	fields := map[string]interface{}{
		"status": toStatus,
	}
	if update.TxSignature != nil {
		fields["tx_signature"] = *update.TxSignature
	}
	if update.ErrorMessage != "" {
		fields["error_message"] = update.ErrorMessage
	}
	if update.CompletedAt != nil {
		fields["completed_at"] = *update.CompletedAt
	}

	result := p.db.WithContext(ctx).Model(&models.Swap{}).
		Where("swap_id = ? AND status = ?", swapID, fromStatus).
		Updates(fields)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (p *postgresLedger) CumulativeCompletedVolume(ctx context.Context) (uint64, error) {
	var total *uint64
	err := p.db.WithContext(ctx).Model(&models.Swap{}).
		Where("status = ?", models.SwapStatusCompleted).
		Select("COALESCE(SUM(token_amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	if total == nil {
		return 0, nil
	}
	return *total, nil
}

func (p *postgresLedger) DeleteStalePending(ctx context.Context, olderThan time.Time) (int64, error) {
	result := p.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", models.SwapStatusPending, olderThan).
		Delete(&models.Swap{})
	return result.RowsAffected, result.Error
}
