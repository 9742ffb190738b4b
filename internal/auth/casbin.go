package auth

import (
	_ "embed"
	"fmt"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
)

//go:embed model.conf
var casbinModelContent string

// RoleAdmin is the provider role key that unlocks the admin surface.
const RoleAdmin = "admin"

// InitEnforcer creates a Casbin enforcer with the embedded RBAC model and the
// static console policy set. Roles come from the identity provider, so there
// is no database-backed policy adapter; the policy is code.
func InitEnforcer() (casbin.IEnforcer, error) {
	m, err := model.NewModelFromString(casbinModelContent)
	if err != nil {
		return nil, fmt.Errorf("parse casbin model: %w", err)
	}

	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	policies := [][]string{
		{"role:" + RoleAdmin, "/admin/*", "*"},
	}
	for _, p := range policies {
		if _, err := enforcer.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, fmt.Errorf("add casbin policy: %w", err)
		}
	}

	return enforcer, nil
}

// Authorize checks whether any of the principal's roles permits the request.
func Authorize(enforcer casbin.IEnforcer, roles []string, obj, act string) (bool, error) {
	for _, role := range roles {
		ok, err := enforcer.Enforce("role:"+role, obj, act)
		if err != nil {
			return false, fmt.Errorf("enforce policy: %w", err)
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
