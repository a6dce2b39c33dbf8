package accesscontrol

import (
	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/errutil"
	"examprep-marketplace/pkg/middleware"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("accesscontrol",
	fx.Provide(NewEnforcer, NewAuthorizer),
)

// DefaultModel is RBAC over gin route templates and HTTP methods.
const DefaultModel = `
[request_definition]
r = sub, obj, act

[policy_definition]
p = sub, obj, act

[role_definition]
g = _, _

[policy_effect]
e = some(where (p.eft == allow))

[matchers]
m = g(r.sub, p.sub) && keyMatch2(r.obj, p.obj) && (r.act == p.act || p.act == "*")
`

// DefaultPolicies grants users the self-service affiliate and checkout
// routes. Admins inherit them and get the operational routes.
var DefaultPolicies = [][]string{
	{"user", "/api/v1/affiliate/links", "*"},
	{"user", "/api/v1/affiliate/links/:id", "GET"},
	{"user", "/api/v1/affiliate/links/:id/qr", "GET"},
	{"user", "/api/v1/affiliate/analytics", "GET"},
	{"user", "/api/v1/affiliate/earnings", "GET"},
	{"user", "/api/v1/payments/orders", "POST"},
	{"user", "/api/v1/payments/verify", "POST"},
	{"admin", "/api/v1/affiliate/links/:id/status", "PATCH"},
	{"admin", "/api/v1/affiliate/leaderboard/export", "GET"},
	{"admin", "/api/v1/admin/reconcile", "POST"},
	{"admin", "/api/v1/admin/jobs/:id", "GET"},
}

func NewEnforcer(cfg *config.Config) (*casbin.Enforcer, error) {
	text := DefaultModel
	if cfg != nil && cfg.AccessControl.Model != "" {
		text = cfg.AccessControl.Model
	}

	m, err := model.NewModelFromString(text)
	if err != nil {
		return nil, err
	}

	e, err := casbin.NewEnforcer(m)
	if err != nil {
		return nil, err
	}

	for _, p := range DefaultPolicies {
		if _, err := e.AddPolicy(p[0], p[1], p[2]); err != nil {
			return nil, err
		}
	}
	if _, err := e.AddGroupingPolicy("admin", "user"); err != nil {
		return nil, err
	}

	return e, nil
}

type Authorizer struct {
	enforcer *casbin.Enforcer
}

func NewAuthorizer(e *casbin.Enforcer) *Authorizer {
	return &Authorizer{enforcer: e}
}

func (a *Authorizer) Allowed(role, route, method string) bool {
	ok, err := a.enforcer.Enforce(role, route, method)
	if err != nil {
		zap.L().Error("authorization check failed", zap.String("role", role), zap.String("route", route), zap.Error(err))
		return false
	}
	return ok
}

// Middleware enforces the policy for the matched route template. It must run
// after middleware.Identity.
func (a *Authorizer) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.Allowed(middleware.Role(c), c.FullPath(), c.Request.Method) {
			_ = c.Error(errutil.Forbidden("you are not allowed to perform this action", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
