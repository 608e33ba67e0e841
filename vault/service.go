// Package vault stores one configuration record per downstream service, with
// credential fields encrypted at rest, and applies partial updates gated by
// live workspace validation for the feature server.
package vault

import (
	"fmt"
	"time"

	"github.com/eizes/gis-gateway/internal/secrets"
)

// ServiceName is the fixed enumeration of downstream services.
type ServiceName string

const (
	ServiceIdentityProvider ServiceName = "identity-provider"
	ServiceMapping          ServiceName = "mapping-service"
	ServiceFeature          ServiceName = "feature-server"
	ServiceTracking         ServiceName = "tracking-service"
)

// ServiceNames lists every known service in a stable order.
func ServiceNames() []ServiceName {
	return []ServiceName{ServiceIdentityProvider, ServiceMapping, ServiceFeature, ServiceTracking}
}

// ParseServiceName validates a request path segment against the enumeration.
func ParseServiceName(s string) (ServiceName, error) {
	name := ServiceName(s)
	switch name {
	case ServiceIdentityProvider, ServiceMapping, ServiceFeature, ServiceTracking:
		return name, nil
	}
	return "", fmt.Errorf("unknown service %q", s)
}

// CredentialKind tags which credential shape a service uses. The tracking
// service authenticates with a bearer token; everything else carries a
// service user and password.
type CredentialKind int

const (
	KindUserPassword CredentialKind = iota
	KindToken
)

// Kind returns the credential shape for a service.
func (n ServiceName) Kind() CredentialKind {
	if n == ServiceTracking {
		return KindToken
	}
	return KindUserPassword
}

// Website is the public endpoint of a downstream service.
type Website struct {
	URL string `json:"url"`
}

// Database is a downstream service's own database connection block. The
// workspace pointer is set (possibly to an empty string) only for the feature
// server, which namespaces its layers by schema.
type Database struct {
	Host      string         `json:"host"`
	Port      int            `json:"port"`
	Name      string         `json:"database"`
	User      string         `json:"user"`
	Password  secrets.Secret `json:"password"`
	Workspace *string        `json:"workspace,omitempty"`
}

// Credentials is the service-level login for user/password services.
type Credentials struct {
	User     string         `json:"user"`
	Password secrets.Secret `json:"password"`
}

// Provider is the identity provider's client registration. This block only
// exists on the identity-provider record and is never exposed through the
// user-facing settings listing.
type Provider struct {
	Realm        string         `json:"realm"`
	ClientID     string         `json:"client_id"`
	ClientSecret secrets.Secret `json:"client_secret"`
}

// ServiceConfig is one decrypted configuration record. Secret-typed fields
// mask themselves in JSON and logs; internal callers use Reveal.
type ServiceConfig struct {
	Service     ServiceName    `json:"service_name"`
	Website     Website        `json:"website"`
	Database    *Database      `json:"database,omitempty"`
	Credentials *Credentials   `json:"credentials,omitempty"`
	Token       secrets.Secret `json:"token,omitempty"`
	Provider    *Provider      `json:"identity_provider,omitempty"`

	CreatedBy string    `json:"created_by,omitempty"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ProviderConfig is the bootstrap configuration the OAuth2 flow needs,
// assembled from the identity-provider record.
type ProviderConfig struct {
	BaseURL      string
	Realm        string
	ClientID     string
	ClientSecret secrets.Secret
}
