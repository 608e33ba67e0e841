// Package mapping performs the single read-only query the gateway makes
// against the mapping service's own database: listing the maps owned by the
// logged-in user.
package mapping

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/eizes/gis-gateway/internal/errors"
	"github.com/eizes/gis-gateway/vault"
)

// DefaultTimeout bounds a whole listing run, connection included.
const DefaultTimeout = 10 * time.Second

// Map is one map owned by a user, with the number of data layers attached.
type Map struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	UpdatedAt   time.Time `json:"updated_at"`
	LayerCount  int       `json:"layer_count"`
}

// mapsDB is the minimal view of the mapping service database.
type mapsDB interface {
	OwnedMaps(ctx context.Context, username string) ([]Map, error)
	LayerCount(ctx context.Context, mapID int64) (int, error)
	Close(ctx context.Context) error
}

// DialFunc opens a connection to the mapping database.
type DialFunc func(ctx context.Context, db *vault.Database) (mapsDB, error)

// Lister lists a user's maps using credentials held in the vault.
type Lister struct {
	vault   *vault.Vault
	timeout time.Duration
	dial    DialFunc
}

// ListerOption configures a Lister.
type ListerOption func(*Lister)

// WithTimeout overrides the per-run deadline.
func WithTimeout(d time.Duration) ListerOption {
	return func(l *Lister) {
		l.timeout = d
	}
}

// WithDial overrides the database connection function (for testing).
func WithDial(dial DialFunc) ListerOption {
	return func(l *Lister) {
		l.dial = dial
	}
}

// NewLister creates a Lister reading connection credentials from the vault.
func NewLister(v *vault.Vault, options ...ListerOption) *Lister {
	l := &Lister{
		vault:   v,
		timeout: DefaultTimeout,
		dial:    dialMapsDB,
	}
	for _, opt := range options {
		opt(l)
	}
	return l
}

// ListForUser returns the maps owned by username, newest first. The layer
// count is best effort: a failed count leaves the map in the listing with a
// count of zero. The connection is scoped to this call and always released.
func (l *Lister) ListForUser(ctx context.Context, username string) ([]Map, error) {
	cfg, err := l.vault.Get(ctx, vault.ServiceMapping)
	if err != nil {
		return nil, err
	}
	if cfg.Database == nil {
		return nil, errors.Wrapf(errors.ErrInternal, "mapping service has no database configured")
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	db, err := l.dial(ctx, cfg.Database)
	if err != nil {
		return nil, errors.Wrapf(err, "connect to mapping database")
	}
	defer db.Close(ctx)

	maps, err := db.OwnedMaps(ctx, username)
	if err != nil {
		return nil, errors.Wrapf(err, "list maps for %s", username)
	}

	for i := range maps {
		count, err := db.LayerCount(ctx, maps[i].ID)
		if err != nil {
			log.Debug().Err(err).Int64("map_id", maps[i].ID).Msg("layer count lookup failed")
			continue
		}
		maps[i].LayerCount = count
	}
	return maps, nil
}
