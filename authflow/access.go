package authflow

import (
	"strings"

	"github.com/eizes/gis-gateway/internal/errors"
	"github.com/eizes/gis-gateway/sessions"
)

// Authorize enforces single-required-group membership. An empty required
// group disables the check. Keycloak emits group paths with a leading slash
// ("/gis-users"), so comparison ignores one.
func Authorize(requiredGroup string, user sessions.User) error {
	if requiredGroup == "" {
		return nil
	}
	for _, group := range user.Groups {
		if strings.TrimPrefix(group, "/") == strings.TrimPrefix(requiredGroup, "/") {
			return nil
		}
	}
	return &errors.ForbiddenError{
		Username:      user.Username,
		Email:         user.Email,
		RequiredGroup: requiredGroup,
	}
}
