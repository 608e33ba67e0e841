package vault

import (
	"context"
	"sync"

	"github.com/eizes/gis-gateway/internal/errors"
	"github.com/eizes/gis-gateway/internal/secrets"
	"github.com/eizes/gis-gateway/schema"
)

// WorkspaceValidator is the live schema check run before a feature-server
// workspace is accepted. Satisfied by *schema.Validator.
type WorkspaceValidator interface {
	Validate(ctx context.Context, p schema.Params) schema.Result
}

// Vault is the encrypted per-service configuration store.
type Vault struct {
	repo      Repo
	cipher    *secrets.Cipher
	validator WorkspaceValidator

	// locks serializes updates per service name, so two racing writes cannot
	// both validate against stale pre-merge parameters and then overwrite
	// each other's committed state.
	locks map[ServiceName]*sync.Mutex
}

// New creates a Vault over the given repository.
func New(repo Repo, cipher *secrets.Cipher, validator WorkspaceValidator) *Vault {
	locks := make(map[ServiceName]*sync.Mutex, len(ServiceNames()))
	for _, name := range ServiceNames() {
		locks[name] = &sync.Mutex{}
	}
	return &Vault{
		repo:      repo,
		cipher:    cipher,
		validator: validator,
		locks:     locks,
	}
}

// Get returns the decrypted configuration for one service.
func (v *Vault) Get(ctx context.Context, name ServiceName) (*ServiceConfig, error) {
	rec, err := v.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	return v.decode(rec)
}

// ListActive returns all active configurations keyed by service name,
// excluding the given services. The gateway excludes the identity provider,
// whose record is bootstrap configuration rather than user-facing settings.
func (v *Vault) ListActive(ctx context.Context, excluding ...ServiceName) (map[ServiceName]*ServiceConfig, error) {
	recs, err := v.repo.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	excluded := make(map[ServiceName]bool, len(excluding))
	for _, name := range excluding {
		excluded[name] = true
	}

	configs := make(map[ServiceName]*ServiceConfig, len(recs))
	for i := range recs {
		name := ServiceName(recs[i].ServiceName)
		if excluded[name] {
			continue
		}
		cfg, err := v.decode(&recs[i])
		if err != nil {
			return nil, err
		}
		configs[name] = cfg
	}
	return configs, nil
}

// Update applies a partial update to one service's configuration. For the
// feature server, a workspace present after the merge is validated against
// the post-merge connection parameters before anything is persisted; a
// failed validation rejects the whole update. Updates to the same service
// are serialized.
func (v *Vault) Update(ctx context.Context, name ServiceName, upd Update, actor string) (*ServiceConfig, error) {
	if err := upd.ValidateFor(name); err != nil {
		return nil, err
	}

	lock, ok := v.locks[name]
	if !ok {
		return nil, errors.ErrServiceNotFound
	}
	lock.Lock()
	defer lock.Unlock()

	rec, err := v.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	merged := *rec
	if err := upd.apply(&merged, v.cipher); err != nil {
		return nil, errors.Wrapf(err, "vault: apply update for %s", name)
	}

	if name == ServiceFeature && merged.Workspace != "" {
		password, err := v.cipher.Decrypt(merged.DBPassword)
		if err != nil {
			return nil, errors.Wrapf(err, "vault: decrypt database password for %s", name)
		}
		result := v.validator.Validate(ctx, schema.Params{
			Host:     merged.DBHost,
			Port:     merged.DBPort,
			Database: merged.DBName,
			User:     merged.DBUser,
			Password: password,
			Schema:   merged.Workspace,
		})
		if !result.Exists {
			return nil, &errors.ValidationError{Field: "workspace", Message: result.Message}
		}
	}

	merged.UpdatedBy = actor
	if err := v.repo.Save(ctx, &merged); err != nil {
		return nil, err
	}
	return v.decode(&merged)
}

// IdentityProvider assembles the OAuth2 bootstrap configuration from the
// identity-provider record. A missing or unprovisioned record is gateway
// misconfiguration, not a caller error, so it surfaces as internal.
func (v *Vault) IdentityProvider(ctx context.Context) (*ProviderConfig, error) {
	cfg, err := v.Get(ctx, ServiceIdentityProvider)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInternal, "identity provider config: %v", err)
	}
	if cfg.Provider == nil {
		return nil, errors.Wrapf(errors.ErrInternal, "identity provider record has no client registration")
	}
	return &ProviderConfig{
		BaseURL:      cfg.Website.URL,
		Realm:        cfg.Provider.Realm,
		ClientID:     cfg.Provider.ClientID,
		ClientSecret: cfg.Provider.ClientSecret,
	}, nil
}

// Seed creates missing records for every known service so the update surface
// always has a row to work against. Existing records are left untouched.
func (v *Vault) Seed(ctx context.Context) error {
	for _, name := range ServiceNames() {
		_, err := v.repo.Get(ctx, name)
		if err == nil {
			continue
		}
		if !errors.Is(err, errors.ErrServiceNotFound) {
			return err
		}
		rec := &Record{
			ServiceName: string(name),
			DBPort:      5432,
			CreatedBy:   "system",
			UpdatedBy:   "system",
			IsActive:    true,
		}
		if err := v.repo.Create(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

// ProvisionIdentityProvider stores the identity provider's client
// registration, creating the record when missing. Run at startup when the
// bootstrap environment variables are set, and by provisioning tooling.
func (v *Vault) ProvisionIdentityProvider(ctx context.Context, p ProviderConfig) error {
	lock := v.locks[ServiceIdentityProvider]
	lock.Lock()
	defer lock.Unlock()

	rec, err := v.repo.Get(ctx, ServiceIdentityProvider)
	if errors.Is(err, errors.ErrServiceNotFound) {
		rec = &Record{
			ServiceName: string(ServiceIdentityProvider),
			CreatedBy:   "system",
			IsActive:    true,
		}
		if err := v.repo.Create(ctx, rec); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	secret, err := v.cipher.Encrypt(p.ClientSecret.Reveal())
	if err != nil {
		return errors.Wrapf(err, "vault: encrypt client secret")
	}
	rec.WebsiteURL = p.BaseURL
	rec.Realm = p.Realm
	rec.ClientID = p.ClientID
	rec.ClientSecret = secret
	rec.UpdatedBy = "system"
	return v.repo.Save(ctx, rec)
}

// decode decrypts a storage record into a ServiceConfig.
func (v *Vault) decode(rec *Record) (*ServiceConfig, error) {
	name := ServiceName(rec.ServiceName)
	cfg := &ServiceConfig{
		Service:   name,
		Website:   Website{URL: rec.WebsiteURL},
		CreatedBy: rec.CreatedBy,
		UpdatedBy: rec.UpdatedBy,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}

	if rec.DBHost != "" {
		password, err := v.cipher.Decrypt(rec.DBPassword)
		if err != nil {
			return nil, errors.Wrapf(err, "vault: decrypt database password for %s", name)
		}
		cfg.Database = &Database{
			Host:     rec.DBHost,
			Port:     rec.DBPort,
			Name:     rec.DBName,
			User:     rec.DBUser,
			Password: secrets.Secret(password),
		}
		// The feature server's workspace is always surfaced, even when empty.
		if name == ServiceFeature {
			workspace := rec.Workspace
			cfg.Database.Workspace = &workspace
		}
	}

	switch name.Kind() {
	case KindToken:
		token, err := v.cipher.Decrypt(rec.Token)
		if err != nil {
			return nil, errors.Wrapf(err, "vault: decrypt token for %s", name)
		}
		cfg.Token = secrets.Secret(token)
	case KindUserPassword:
		if rec.ServiceUser != "" {
			password, err := v.cipher.Decrypt(rec.ServicePassword)
			if err != nil {
				return nil, errors.Wrapf(err, "vault: decrypt service password for %s", name)
			}
			cfg.Credentials = &Credentials{
				User:     rec.ServiceUser,
				Password: secrets.Secret(password),
			}
		}
	}

	if name == ServiceIdentityProvider && rec.Realm != "" {
		secret, err := v.cipher.Decrypt(rec.ClientSecret)
		if err != nil {
			return nil, errors.Wrapf(err, "vault: decrypt client secret")
		}
		cfg.Provider = &Provider{
			Realm:        rec.Realm,
			ClientID:     rec.ClientID,
			ClientSecret: secrets.Secret(secret),
		}
	}

	return cfg, nil
}
