package vault_test

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/eizes/gis-gateway/internal/errors"
	"github.com/eizes/gis-gateway/internal/secrets"
	"github.com/eizes/gis-gateway/schema"
	"github.com/eizes/gis-gateway/vault"
)

// recordingValidator captures the parameters the vault validates with and
// returns a scripted result. When gate is set, the first validation signals
// entered and blocks until the gate closes, so tests can hold an update
// mid-validation.
type recordingValidator struct {
	mu     sync.Mutex
	result schema.Result
	params []schema.Params

	entered chan struct{}
	gate    chan struct{}
}

func (v *recordingValidator) Validate(_ context.Context, p schema.Params) schema.Result {
	v.mu.Lock()
	v.params = append(v.params, p)
	call := len(v.params)
	r := v.result
	v.mu.Unlock()

	if v.gate != nil && call == 1 {
		close(v.entered)
		<-v.gate
	}
	r.Schema = p.Schema
	return r
}

func (v *recordingValidator) calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.params)
}

func okValidator() *recordingValidator {
	return &recordingValidator{result: schema.Result{Exists: true, Message: "schema exists"}}
}

type fixture struct {
	vault     *vault.Vault
	repo      vault.Repo
	validator *recordingValidator
}

func newFixture(t *testing.T, validator *recordingValidator) *fixture {
	t.Helper()

	dsn := fmt.Sprintf("file:vault-test-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	repo, err := vault.NewGormRepo(db)
	require.NoError(t, err)

	cipher, err := secrets.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	v := vault.New(repo, cipher, validator)
	require.NoError(t, v.Seed(context.Background()))

	return &fixture{vault: v, repo: repo, validator: validator}
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

func secretPtr(s string) *secrets.Secret {
	sec := secrets.Secret(s)
	return &sec
}

func (f *fixture) configureFeatureDB(t *testing.T) {
	t.Helper()
	_, err := f.vault.Update(context.Background(), vault.ServiceFeature, vault.Update{
		Database: &vault.DatabaseUpdate{
			Host:     strPtr("db.internal"),
			Port:     intPtr(5432),
			Name:     strPtr("geodata"),
			User:     strPtr("geoserver"),
			Password: secretPtr("sw0rdfish"),
		},
	}, "admin")
	require.NoError(t, err)
}

func TestSeedCreatesAllServices(t *testing.T) {
	f := newFixture(t, okValidator())
	ctx := context.Background()

	for _, name := range vault.ServiceNames() {
		cfg, err := f.vault.Get(ctx, name)
		require.NoError(t, err, "service %s", name)
		require.Equal(t, name, cfg.Service)
		require.Equal(t, "system", cfg.CreatedBy)
	}

	// Seeding again is a no-op.
	require.NoError(t, f.vault.Seed(ctx))
	recs, err := f.repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, recs, len(vault.ServiceNames()))
}

func TestParseServiceName(t *testing.T) {
	name, err := vault.ParseServiceName("feature-server")
	require.NoError(t, err)
	require.Equal(t, vault.ServiceFeature, name)

	_, err = vault.ParseServiceName("geoserver")
	require.Error(t, err)
}

func TestUpdateUnknownService(t *testing.T) {
	f := newFixture(t, okValidator())

	_, err := f.vault.Update(context.Background(), vault.ServiceName("bogus"), vault.Update{}, "admin")
	require.ErrorIs(t, err, errors.ErrServiceNotFound)
}

func TestUpdateAppliesOnlyPresentFields(t *testing.T) {
	f := newFixture(t, okValidator())
	ctx := context.Background()

	_, err := f.vault.Update(ctx, vault.ServiceMapping, vault.Update{
		Website: &vault.WebsiteUpdate{URL: strPtr("https://maps.example.com")},
		Database: &vault.DatabaseUpdate{
			Host:     strPtr("maps-db"),
			Port:     intPtr(5433),
			Name:     strPtr("umap"),
			User:     strPtr("umap"),
			Password: secretPtr("first-password"),
		},
	}, "alice")
	require.NoError(t, err)

	// A second partial update touches only the host.
	cfg, err := f.vault.Update(ctx, vault.ServiceMapping, vault.Update{
		Database: &vault.DatabaseUpdate{Host: strPtr("maps-db-2")},
	}, "bob")
	require.NoError(t, err)

	require.Equal(t, "https://maps.example.com", cfg.Website.URL)
	require.Equal(t, "maps-db-2", cfg.Database.Host)
	require.Equal(t, 5433, cfg.Database.Port)
	require.Equal(t, "umap", cfg.Database.Name)
	require.Equal(t, "first-password", cfg.Database.Password.Reveal())
	require.Equal(t, "bob", cfg.UpdatedBy)
}

func TestPasswordEncryptedAtRestAndMaskedOnOutput(t *testing.T) {
	f := newFixture(t, okValidator())
	ctx := context.Background()

	_, err := f.vault.Update(ctx, vault.ServiceMapping, vault.Update{
		Database: &vault.DatabaseUpdate{
			Host:     strPtr("maps-db"),
			Name:     strPtr("umap"),
			User:     strPtr("umap"),
			Password: secretPtr("plain-password"),
		},
	}, "alice")
	require.NoError(t, err)

	// The stored record never contains the plaintext.
	rec, err := f.repo.Get(ctx, vault.ServiceMapping)
	require.NoError(t, err)
	require.NotEmpty(t, rec.DBPassword)
	require.NotContains(t, rec.DBPassword, "plain-password")

	// The decrypted value matches what was written, but marshals masked.
	cfg, err := f.vault.Get(ctx, vault.ServiceMapping)
	require.NoError(t, err)
	require.Equal(t, "plain-password", cfg.Database.Password.Reveal())

	out, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NotContains(t, string(out), "plain-password")
	require.Contains(t, string(out), secrets.Masked)
}

func TestUpdateShapeValidation(t *testing.T) {
	f := newFixture(t, okValidator())
	ctx := context.Background()

	var validation *errors.ValidationError

	_, err := f.vault.Update(ctx, vault.ServiceMapping, vault.Update{
		Token: secretPtr("a-token"),
	}, "admin")
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "token", validation.Field)

	_, err = f.vault.Update(ctx, vault.ServiceTracking, vault.Update{
		Credentials: &vault.CredentialsUpdate{User: strPtr("traccar")},
	}, "admin")
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "credentials", validation.Field)

	_, err = f.vault.Update(ctx, vault.ServiceMapping, vault.Update{
		Database: &vault.DatabaseUpdate{Workspace: strPtr("public")},
	}, "admin")
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "workspace", validation.Field)

	_, err = f.vault.Update(ctx, vault.ServiceMapping, vault.Update{
		Database: &vault.DatabaseUpdate{Port: intPtr(70000)},
	}, "admin")
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "port", validation.Field)
}

func TestTrackingServiceUsesToken(t *testing.T) {
	f := newFixture(t, okValidator())
	ctx := context.Background()

	cfg, err := f.vault.Update(ctx, vault.ServiceTracking, vault.Update{
		Token: secretPtr("bearer-xyz"),
	}, "admin")
	require.NoError(t, err)
	require.Equal(t, "bearer-xyz", cfg.Token.Reveal())
	require.Nil(t, cfg.Credentials)

	rec, err := f.repo.Get(ctx, vault.ServiceTracking)
	require.NoError(t, err)
	require.NotContains(t, rec.Token, "bearer-xyz")
}

func TestFeatureWorkspaceValidatedWithPostMergeParams(t *testing.T) {
	f := newFixture(t, okValidator())
	f.configureFeatureDB(t)
	ctx := context.Background()

	cfg, err := f.vault.Update(ctx, vault.ServiceFeature, vault.Update{
		Database: &vault.DatabaseUpdate{
			Password:  secretPtr("rotated-password"),
			Workspace: strPtr("cite"),
		},
	}, "alice")
	require.NoError(t, err)
	require.Equal(t, "cite", *cfg.Database.Workspace)

	// The validator must see the merged candidate values, including the
	// not-yet-committed rotated password.
	last := f.validator.params[len(f.validator.params)-1]
	require.Equal(t, "db.internal", last.Host)
	require.Equal(t, "geodata", last.Database)
	require.Equal(t, "rotated-password", last.Password)
	require.Equal(t, "cite", last.Schema)
}

func TestFeatureWorkspaceValidationFailureIsAllOrNothing(t *testing.T) {
	f := newFixture(t, okValidator())
	f.configureFeatureDB(t)
	ctx := context.Background()

	before, err := f.repo.Get(ctx, vault.ServiceFeature)
	require.NoError(t, err)

	f.validator.result = schema.Result{
		Exists:  false,
		Message: `schema "missing" does not exist, available schemas: public, cite`,
	}

	var validation *errors.ValidationError
	_, err = f.vault.Update(ctx, vault.ServiceFeature, vault.Update{
		Website:  &vault.WebsiteUpdate{URL: strPtr("https://geo.example.com")},
		Database: &vault.DatabaseUpdate{Workspace: strPtr("missing"), Host: strPtr("other-host")},
	}, "alice")
	require.ErrorAs(t, err, &validation)
	require.Equal(t, "workspace", validation.Field)
	require.Contains(t, validation.Message, "available schemas")

	// Nothing from the rejected partial update was persisted.
	after, err := f.repo.Get(ctx, vault.ServiceFeature)
	require.NoError(t, err)
	require.Equal(t, before.WebsiteURL, after.WebsiteURL)
	require.Equal(t, before.DBHost, after.DBHost)
	require.Equal(t, before.Workspace, after.Workspace)
	require.Equal(t, before.UpdatedBy, after.UpdatedBy)
}

func TestConcurrentWorkspaceUpdatesSerializeValidateAndCommit(t *testing.T) {
	validator := okValidator()
	validator.entered = make(chan struct{})
	validator.gate = make(chan struct{})
	f := newFixture(t, validator)
	f.configureFeatureDB(t)
	ctx := context.Background()

	firstDone := make(chan error, 1)
	go func() {
		_, err := f.vault.Update(ctx, vault.ServiceFeature, vault.Update{
			Database: &vault.DatabaseUpdate{Host: strPtr("host-a"), Workspace: strPtr("cite")},
		}, "alice")
		firstDone <- err
	}()
	<-validator.entered

	secondDone := make(chan error, 1)
	go func() {
		_, err := f.vault.Update(ctx, vault.ServiceFeature, vault.Update{
			Database: &vault.DatabaseUpdate{Host: strPtr("host-b"), Workspace: strPtr("topp")},
		}, "bob")
		secondDone <- err
	}()

	// While the first update is held mid-validation, the second has neither
	// validated nor committed anything.
	select {
	case err := <-secondDone:
		t.Fatalf("second update finished during the first's validation: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	require.Equal(t, 1, validator.calls())
	rec, err := f.repo.Get(ctx, vault.ServiceFeature)
	require.NoError(t, err)
	require.Empty(t, rec.Workspace)

	close(validator.gate)
	require.NoError(t, <-firstDone)
	require.NoError(t, <-secondDone)

	// Each validation ran against its own post-merge parameters.
	require.Equal(t, 2, validator.calls())
	require.Equal(t, "host-a", validator.params[0].Host)
	require.Equal(t, "cite", validator.params[0].Schema)
	require.Equal(t, "host-b", validator.params[1].Host)
	require.Equal(t, "topp", validator.params[1].Schema)

	// The committed state is the serialized result of both updates and
	// matches exactly what the final validation saw.
	rec, err = f.repo.Get(ctx, vault.ServiceFeature)
	require.NoError(t, err)
	require.Equal(t, "host-b", rec.DBHost)
	require.Equal(t, "topp", rec.Workspace)
	require.Equal(t, "bob", rec.UpdatedBy)
}

func TestFeatureEmptyWorkspaceSkipsValidation(t *testing.T) {
	f := newFixture(t, okValidator())
	f.configureFeatureDB(t)

	calls := len(f.validator.params)
	_, err := f.vault.Update(context.Background(), vault.ServiceFeature, vault.Update{
		Website: &vault.WebsiteUpdate{URL: strPtr("https://geo.example.com")},
	}, "alice")
	require.NoError(t, err)
	require.Len(t, f.validator.params, calls, "no workspace set, no validation run")
}

func TestFeatureWorkspaceAlwaysSurfaced(t *testing.T) {
	f := newFixture(t, okValidator())
	f.configureFeatureDB(t)

	cfg, err := f.vault.Get(context.Background(), vault.ServiceFeature)
	require.NoError(t, err)
	require.NotNil(t, cfg.Database.Workspace, "workspace key present even when empty")
	require.Empty(t, *cfg.Database.Workspace)

	// Non-feature services have no workspace key at all.
	_, err = f.vault.Update(context.Background(), vault.ServiceMapping, vault.Update{
		Database: &vault.DatabaseUpdate{Host: strPtr("maps-db"), Name: strPtr("umap"), User: strPtr("umap")},
	}, "alice")
	require.NoError(t, err)
	mapCfg, err := f.vault.Get(context.Background(), vault.ServiceMapping)
	require.NoError(t, err)
	require.Nil(t, mapCfg.Database.Workspace)
}

func TestListActiveExcludes(t *testing.T) {
	f := newFixture(t, okValidator())

	configs, err := f.vault.ListActive(context.Background(), vault.ServiceIdentityProvider)
	require.NoError(t, err)
	require.Len(t, configs, 3)
	require.NotContains(t, configs, vault.ServiceIdentityProvider)
	require.Contains(t, configs, vault.ServiceFeature)
}

func TestProvisionIdentityProvider(t *testing.T) {
	f := newFixture(t, okValidator())
	ctx := context.Background()

	require.NoError(t, f.vault.ProvisionIdentityProvider(ctx, vault.ProviderConfig{
		BaseURL:      "https://auth.example.com",
		Realm:        "gis",
		ClientID:     "gis-gateway",
		ClientSecret: "client-s3cret",
	}))

	provider, err := f.vault.IdentityProvider(ctx)
	require.NoError(t, err)
	require.Equal(t, "https://auth.example.com", provider.BaseURL)
	require.Equal(t, "gis", provider.Realm)
	require.Equal(t, "gis-gateway", provider.ClientID)
	require.Equal(t, "client-s3cret", provider.ClientSecret.Reveal())

	rec, err := f.repo.Get(ctx, vault.ServiceIdentityProvider)
	require.NoError(t, err)
	require.NotContains(t, rec.ClientSecret, "client-s3cret")
}

func TestIdentityProviderUnprovisioned(t *testing.T) {
	ctx := context.Background()

	// Seeded but never provisioned: the record exists without a client
	// registration. This is gateway misconfiguration, not a missing service.
	f := newFixture(t, okValidator())
	_, err := f.vault.IdentityProvider(ctx)
	require.ErrorIs(t, err, errors.ErrInternal)
	require.NotErrorIs(t, err, errors.ErrServiceNotFound)

	// Same classification when the record is missing entirely.
	dsn := fmt.Sprintf("file:vault-bare-%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	repo, err := vault.NewGormRepo(db)
	require.NoError(t, err)
	cipher, err := secrets.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)

	_, err = vault.New(repo, cipher, nil).IdentityProvider(ctx)
	require.ErrorIs(t, err, errors.ErrInternal)
	require.NotErrorIs(t, err, errors.ErrServiceNotFound)
}
