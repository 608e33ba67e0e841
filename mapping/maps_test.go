package mapping

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eizes/gis-gateway/internal/secrets"
	"github.com/eizes/gis-gateway/vault"
)

type fakeMapsDB struct {
	maps        map[string][]Map
	layerCounts map[int64]int
	countErr    error
	ownedErr    error

	closed    bool
	dialledDB *vault.Database
}

func (f *fakeMapsDB) OwnedMaps(_ context.Context, username string) ([]Map, error) {
	if f.ownedErr != nil {
		return nil, f.ownedErr
	}
	return f.maps[username], nil
}

func (f *fakeMapsDB) LayerCount(_ context.Context, mapID int64) (int, error) {
	if f.countErr != nil {
		return 0, f.countErr
	}
	return f.layerCounts[mapID], nil
}

func (f *fakeMapsDB) Close(context.Context) error {
	f.closed = true
	return nil
}

func newMappingVault(t *testing.T, configured bool) *vault.Vault {
	t.Helper()

	dsn := fmt.Sprintf("file:maps-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	repo, err := vault.NewGormRepo(db)
	require.NoError(t, err)
	cipher, err := secrets.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	v := vault.New(repo, cipher, nil)
	require.NoError(t, v.Seed(context.Background()))

	if configured {
		host := "maps-db"
		name := "umap"
		user := "umap"
		password := secrets.Secret("s3cret")
		_, err = v.Update(context.Background(), vault.ServiceMapping, vault.Update{
			Database: &vault.DatabaseUpdate{Host: &host, Name: &name, User: &user, Password: &password},
		}, "admin")
		require.NoError(t, err)
	}
	return v
}

func TestListForUser(t *testing.T) {
	fake := &fakeMapsDB{
		maps: map[string][]Map{
			"jdoe": {
				{ID: 2, Name: "Hiking trails", UpdatedAt: time.Now()},
				{ID: 1, Name: "City parks", Description: "green spaces", UpdatedAt: time.Now().Add(-time.Hour)},
			},
		},
		layerCounts: map[int64]int{1: 3, 2: 1},
	}
	lister := NewLister(newMappingVault(t, true), WithDial(func(_ context.Context, db *vault.Database) (mapsDB, error) {
		fake.dialledDB = db
		return fake, nil
	}))

	maps, err := lister.ListForUser(context.Background(), "jdoe")
	require.NoError(t, err)
	require.Len(t, maps, 2)
	require.Equal(t, "Hiking trails", maps[0].Name)
	require.Equal(t, 1, maps[0].LayerCount)
	require.Equal(t, 3, maps[1].LayerCount)
	require.True(t, fake.closed, "connection released after the run")

	// The dial received the decrypted vault credentials.
	require.Equal(t, "maps-db", fake.dialledDB.Host)
	require.Equal(t, "s3cret", fake.dialledDB.Password.Reveal())
}

func TestListForUserNoMaps(t *testing.T) {
	fake := &fakeMapsDB{}
	lister := NewLister(newMappingVault(t, true), WithDial(func(context.Context, *vault.Database) (mapsDB, error) {
		return fake, nil
	}))

	maps, err := lister.ListForUser(context.Background(), "nobody")
	require.NoError(t, err)
	require.Empty(t, maps)
}

func TestListForUserLayerCountBestEffort(t *testing.T) {
	fake := &fakeMapsDB{
		maps:     map[string][]Map{"jdoe": {{ID: 1, Name: "City parks"}}},
		countErr: fmt.Errorf("relation does not exist"),
	}
	lister := NewLister(newMappingVault(t, true), WithDial(func(context.Context, *vault.Database) (mapsDB, error) {
		return fake, nil
	}))

	maps, err := lister.ListForUser(context.Background(), "jdoe")
	require.NoError(t, err)
	require.Len(t, maps, 1)
	require.Zero(t, maps[0].LayerCount, "failed count leaves the map listed with zero layers")
}

func TestListForUserQueryFailure(t *testing.T) {
	fake := &fakeMapsDB{ownedErr: fmt.Errorf("connection reset")}
	lister := NewLister(newMappingVault(t, true), WithDial(func(context.Context, *vault.Database) (mapsDB, error) {
		return fake, nil
	}))

	_, err := lister.ListForUser(context.Background(), "jdoe")
	require.Error(t, err)
	require.True(t, fake.closed)
}

func TestListForUserDialFailure(t *testing.T) {
	lister := NewLister(newMappingVault(t, true), WithDial(func(context.Context, *vault.Database) (mapsDB, error) {
		return nil, fmt.Errorf("dial tcp: connection refused")
	}))

	_, err := lister.ListForUser(context.Background(), "jdoe")
	require.Error(t, err)
}

func TestListForUserUnconfiguredDatabase(t *testing.T) {
	lister := NewLister(newMappingVault(t, false), WithDial(func(context.Context, *vault.Database) (mapsDB, error) {
		t.Fatal("dial must not run without a configured database")
		return nil, nil
	}))

	_, err := lister.ListForUser(context.Background(), "jdoe")
	require.Error(t, err)
}
