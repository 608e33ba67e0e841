package vault

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eizes/gis-gateway/internal/errors"
)

// GormRepo persists settings records through gorm.
type GormRepo struct {
	db *gorm.DB
}

// OpenSQLite opens (creating if needed) the sqlite settings database and
// migrates the settings table.
func OpenSQLite(path string) (*GormRepo, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open settings database: %w", err)
	}
	return NewGormRepo(db)
}

// NewGormRepo wraps an existing gorm connection and runs migrations.
func NewGormRepo(db *gorm.DB) (*GormRepo, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("migrate settings table: %w", err)
	}
	return &GormRepo{db: db}, nil
}

var _ Repo = (*GormRepo)(nil)

func (r *GormRepo) Get(ctx context.Context, name ServiceName) (*Record, error) {
	var rec Record
	err := r.db.WithContext(ctx).
		Where("service_name = ? AND is_active = ?", string(name), true).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrServiceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load settings for %s: %w", name, err)
	}
	return &rec, nil
}

func (r *GormRepo) ListActive(ctx context.Context) ([]Record, error) {
	var recs []Record
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("service_name").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list settings: %w", err)
	}
	return recs, nil
}

func (r *GormRepo) Save(ctx context.Context, rec *Record) error {
	if err := r.db.WithContext(ctx).Save(rec).Error; err != nil {
		return fmt.Errorf("save settings for %s: %w", rec.ServiceName, err)
	}
	return nil
}

func (r *GormRepo) Create(ctx context.Context, rec *Record) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("create settings for %s: %w", rec.ServiceName, err)
	}
	return nil
}
