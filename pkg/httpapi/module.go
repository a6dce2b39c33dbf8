package httpapi

import (
	"net/http"

	"examprep-marketplace/pkg/accesscontrol"
	"examprep-marketplace/pkg/config"
	"examprep-marketplace/pkg/health"
	"examprep-marketplace/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("httpapi",
	fx.Provide(NewEngine, NewRouter),
	fx.Invoke(registerHealthEndpoint),
)

// Router exposes the route groups services mount their handlers on.
type Router struct {
	Public    *gin.RouterGroup
	Protected *gin.RouterGroup
}

func NewEngine(cfg *config.Config) *gin.Engine {
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestIDMiddleware(),
		middleware.AccessLog(),
		middleware.Error(),
	)
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "not_found", "message": "route not found"}})
	})
	return r
}

func NewRouter(r *gin.Engine, authz *accesscontrol.Authorizer) *Router {
	return &Router{
		Public:    r.Group("/api/v1"),
		Protected: r.Group("/api/v1", middleware.Identity(), authz.Middleware()),
	}
}

func registerHealthEndpoint(r *gin.Engine, h health.HealthService) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
