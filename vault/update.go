package vault

import (
	"github.com/eizes/gis-gateway/internal/errors"
	"github.com/eizes/gis-gateway/internal/secrets"
)

// Update enumerates every updatable field. Only fields that are present are
// applied; a nil pointer leaves the stored value untouched.
type Update struct {
	Website     *WebsiteUpdate     `json:"website,omitempty"`
	Database    *DatabaseUpdate    `json:"database,omitempty"`
	Credentials *CredentialsUpdate `json:"credentials,omitempty"`
	Token       *secrets.Secret    `json:"token,omitempty"`
}

type WebsiteUpdate struct {
	URL *string `json:"url,omitempty"`
}

type DatabaseUpdate struct {
	Host      *string         `json:"host,omitempty"`
	Port      *int            `json:"port,omitempty"`
	Name      *string         `json:"database,omitempty"`
	User      *string         `json:"user,omitempty"`
	Password  *secrets.Secret `json:"password,omitempty"`
	Workspace *string         `json:"workspace,omitempty"`
}

type CredentialsUpdate struct {
	User     *string         `json:"user,omitempty"`
	Password *secrets.Secret `json:"password,omitempty"`
}

// ValidateFor checks the update's shape against the service's credential
// kind before any merge is attempted.
func (u Update) ValidateFor(name ServiceName) error {
	switch name.Kind() {
	case KindToken:
		if u.Credentials != nil {
			return &errors.ValidationError{
				Field:   "credentials",
				Message: "service uses a bearer token, not user/password credentials",
			}
		}
	case KindUserPassword:
		if u.Token != nil {
			return &errors.ValidationError{
				Field:   "token",
				Message: "service uses user/password credentials, not a bearer token",
			}
		}
	}
	if u.Database != nil && u.Database.Workspace != nil && name != ServiceFeature {
		return &errors.ValidationError{
			Field:   "workspace",
			Message: "workspace is only configurable for the feature server",
		}
	}
	if u.Database != nil && u.Database.Port != nil && (*u.Database.Port < 1 || *u.Database.Port > 65535) {
		return &errors.ValidationError{
			Field:   "port",
			Message: "port must be between 1 and 65535",
		}
	}
	return nil
}

// apply merges the update into a copy of the stored record. Credential values
// are encrypted as they are written.
func (u Update) apply(rec *Record, cipher *secrets.Cipher) error {
	if u.Website != nil && u.Website.URL != nil {
		rec.WebsiteURL = *u.Website.URL
	}
	if u.Database != nil {
		if u.Database.Host != nil {
			rec.DBHost = *u.Database.Host
		}
		if u.Database.Port != nil {
			rec.DBPort = *u.Database.Port
		}
		if u.Database.Name != nil {
			rec.DBName = *u.Database.Name
		}
		if u.Database.User != nil {
			rec.DBUser = *u.Database.User
		}
		if u.Database.Password != nil {
			enc, err := cipher.Encrypt(u.Database.Password.Reveal())
			if err != nil {
				return err
			}
			rec.DBPassword = enc
		}
		if u.Database.Workspace != nil {
			rec.Workspace = *u.Database.Workspace
		}
	}
	if u.Credentials != nil {
		if u.Credentials.User != nil {
			rec.ServiceUser = *u.Credentials.User
		}
		if u.Credentials.Password != nil {
			enc, err := cipher.Encrypt(u.Credentials.Password.Reveal())
			if err != nil {
				return err
			}
			rec.ServicePassword = enc
		}
	}
	if u.Token != nil {
		enc, err := cipher.Encrypt(u.Token.Reveal())
		if err != nil {
			return err
		}
		rec.Token = enc
	}
	return nil
}
