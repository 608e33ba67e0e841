package vault

import (
	"context"
	"time"
)

// Record is the storage representation of a service configuration. Credential
// fields hold ciphertext; only the Vault sees plaintext.
type Record struct {
	ID uint `gorm:"primaryKey"`

	ServiceName string `gorm:"size:50;index:idx_settings_service,where:is_active"`
	WebsiteURL  string `gorm:"size:200"`

	DBHost     string `gorm:"size:100"`
	DBPort     int
	DBName     string `gorm:"size:100"`
	DBUser     string `gorm:"size:100"`
	DBPassword string `gorm:"size:512"`

	ServiceUser     string `gorm:"size:100"`
	ServicePassword string `gorm:"size:512"`

	Token string `gorm:"size:1024"`

	Realm        string `gorm:"size:100"`
	ClientID     string `gorm:"size:100"`
	ClientSecret string `gorm:"size:1024"`

	Workspace string `gorm:"size:100"`

	CreatedBy string `gorm:"size:100"`
	UpdatedBy string `gorm:"size:100"`
	IsActive  bool   `gorm:"default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps the table name the provisioning tooling expects.
func (Record) TableName() string { return "settings" }

// Repo is the persistence interface for service configuration records.
// Records are never hard-deleted; deactivation clears IsActive.
type Repo interface {
	// Get returns the active record for a service, or ErrServiceNotFound.
	Get(ctx context.Context, name ServiceName) (*Record, error)

	// ListActive returns all active records.
	ListActive(ctx context.Context) ([]Record, error)

	// Save persists changes to an existing record.
	Save(ctx context.Context, rec *Record) error

	// Create inserts a new record.
	Create(ctx context.Context, rec *Record) error
}
