// Package history persists completed classifications.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Brownie44l1/waste-api/internal/classify"
	"github.com/Brownie44l1/waste-api/internal/logging"
	"github.com/Brownie44l1/waste-api/internal/workflow"
)

// Classification represents a persisted classification.
type Classification struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	SessionID     string    `gorm:"column:session_id;index;size:64" json:"session_id"`
	ImageName     string    `gorm:"column:image_name;size:255" json:"image_name"`
	Label         string    `gorm:"column:label;size:32;index" json:"label"`
	Confidence    float32   `gorm:"column:confidence" json:"confidence"`
	Probabilities string    `gorm:"column:probabilities;type:text" json:"-"`
	LatencyMs     int64     `gorm:"column:latency_ms" json:"latency_ms"`
	CreatedAt     time.Time `gorm:"column:created_at;index" json:"created_at"`
}

// TableName overrides the default table name.
func (Classification) TableName() string {
	return "classifications"
}

// Result decodes the stored probability vector.
func (c Classification) Result() (classify.Result, error) {
	var probs []float32
	if err := json.Unmarshal([]byte(c.Probabilities), &probs); err != nil {
		return classify.Result{}, err
	}
	return classify.NewResult(probs)
}

// Repository provides persistence APIs for classifications.
type Repository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// Open connects to the SQLite database at path and migrates the schema.
func Open(ctx context.Context, path string, logger *zap.Logger) (*Repository, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	repo := NewRepository(db, logger)
	if err := repo.AutoMigrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate history database: %w", err)
	}
	return repo, nil
}

// NewRepository creates a new repository instance.
func NewRepository(db *gorm.DB, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger.Named("history")}
}

// AutoMigrate ensures the schema is available.
func (r *Repository) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Classification{})
}

// Record persists a completed classification.
func (r *Repository) Record(ctx context.Context, c workflow.Completion) error {
	probs, err := json.Marshal(c.Result.Probabilities)
	if err != nil {
		return logging.Wrap("history.record", c.SessionID, err)
	}
	row := &Classification{
		SessionID:     c.SessionID,
		ImageName:     c.Image.Name,
		Label:         c.Result.BestLabel(),
		Probabilities: string(probs),
		LatencyMs:     c.Took.Milliseconds(),
		CreatedAt:     c.At,
	}
	if idx, ok := c.Result.Best(); ok {
		row.Confidence = c.Result.Probabilities[idx]
	}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return logging.Wrap("history.record", c.SessionID, err)
	}
	r.logger.Debug("classification recorded", zap.String("session_id", c.SessionID), zap.String("label", row.Label))
	return nil
}

// Recent returns the newest classifications first.
func (r *Repository) Recent(ctx context.Context, limit int) ([]Classification, error) {
	var rows []Classification
	if err := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, logging.Wrap("history.recent", "", err)
	}
	return rows, nil
}

// CountByLabel aggregates the number of classifications per label.
func (r *Repository) CountByLabel(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Label string
		Total int64
	}
	if err := r.db.WithContext(ctx).Model(&Classification{}).
		Select("label, COUNT(*) AS total").Group("label").Scan(&rows).Error; err != nil {
		return nil, logging.Wrap("history.count_by_label", "", err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Label] = row.Total
	}
	return out, nil
}

// Close releases the underlying connection pool.
func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
