package apiutil

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/astranetix/bms/common/auth"
	apperrors "github.com/astranetix/bms/common/errors"
)

// UUIDParam parses the named path parameter. On failure it writes a 400 and
// returns false.
func UUIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		apperrors.BadRequest(c, "Invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

// IntQuery reads an integer query parameter, falling back to def when it is
// absent. Out-of-range or malformed values write a 400 and return false.
func IntQuery(c *gin.Context, name string, def, min, max int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < min || v > max {
		apperrors.BadRequest(c, name+" must be an integer between "+strconv.Itoa(min)+" and "+strconv.Itoa(max))
		return 0, false
	}
	return v, true
}

// Principal returns the authenticated caller or writes a 401.
func Principal(c *gin.Context) (*auth.Principal, bool) {
	p, ok := auth.CurrentPrincipal(c)
	if !ok {
		apperrors.Unauthorized(c, "Could not validate credentials")
		return nil, false
	}
	return p, true
}

// TenantParam parses the named tenant path parameter and checks the caller
// may act on it: founders reach every tenant, everyone else only their own.
func TenantParam(c *gin.Context, name string) (*auth.Principal, uuid.UUID, bool) {
	p, ok := Principal(c)
	if !ok {
		return nil, uuid.Nil, false
	}
	tenantID, ok := UUIDParam(c, name)
	if !ok {
		return nil, uuid.Nil, false
	}
	if !auth.CanAccessTenant(p, tenantID) {
		apperrors.Forbidden(c, "Access denied")
		return nil, uuid.Nil, false
	}
	return p, tenantID, true
}

// OwnTenantParam is TenantParam for routes reserved to the tenant itself:
// founders are not let through.
func OwnTenantParam(c *gin.Context, name string) (*auth.Principal, uuid.UUID, bool) {
	p, ok := Principal(c)
	if !ok {
		return nil, uuid.Nil, false
	}
	tenantID, ok := UUIDParam(c, name)
	if !ok {
		return nil, uuid.Nil, false
	}
	if p.ID != tenantID {
		apperrors.Forbidden(c, "Access denied")
		return nil, uuid.Nil, false
	}
	return p, tenantID, true
}
