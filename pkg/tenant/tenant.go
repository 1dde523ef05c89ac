// Package tenant carries the tenant scope every relationship operation runs in.
package tenant

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/bizsuite/server/pkg/apperror"
)

// Header is the request header the transport layer reads the tenant from.
const Header = "X-Tenant-ID"

// ID identifies a tenant. The zero value is not a valid tenant.
type ID string

func (id ID) String() string { return string(id) }

// Validate rejects the empty tenant.
func (id ID) Validate() error {
	if strings.TrimSpace(string(id)) == "" {
		return apperror.NewValidation("tenant id is required")
	}
	return nil
}

// FromRequest reads the tenant from the X-Tenant-ID header.
func FromRequest(c echo.Context) (ID, error) {
	id := ID(strings.TrimSpace(c.Request().Header.Get(Header)))
	if err := id.Validate(); err != nil {
		return "", apperror.NewBadRequest("X-Tenant-ID header is required")
	}
	return id, nil
}
