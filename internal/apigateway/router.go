// Package apigateway wires the report server's routes.
package apigateway

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"speech-eval-toolkit/internal/auth"
	"speech-eval-toolkit/internal/configmanagement"
	"speech-eval-toolkit/internal/jobmanagement"
)

// Deps are the handlers mounted by SetupRouter. Runs may be nil when no
// database is configured; the /admin/runs routes are then not registered.
type Deps struct {
	Auth     *auth.Authenticator
	Results  *ResultHandlers
	Engines  *configmanagement.EngineHandlers
	Datasets *configmanagement.DatasetHandlers
	Runs     *jobmanagement.RunHandlers
}

// SetupRouter builds the engine with public auth routes and the
// authenticated /admin group.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(requestLogger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authRoutes := router.Group("/auth")
	{
		authRoutes.POST("/login", d.Auth.LoginHandler)
		authRoutes.POST("/logout", d.Auth.LogoutHandler)
	}

	adminRoutes := router.Group("/admin")
	adminRoutes.Use(d.Auth.Middleware())
	{
		resultRoutes := adminRoutes.Group("/results")
		{
			resultRoutes.GET("", d.Results.ListResultsHandler)
			resultRoutes.GET("/:name", d.Results.GetResultHandler)
		}

		adminRoutes.GET("/engines", d.Engines.ListEnginesHandler)
		adminRoutes.GET("/engines/config", d.Engines.GetEngineConfigHandler)

		datasetRoutes := adminRoutes.Group("/dataset")
		{
			datasetRoutes.GET("/entries", d.Datasets.ListEntriesHandler)
			datasetRoutes.GET("/entries/:id", d.Datasets.GetEntryHandler)
		}

		if d.Runs != nil {
			runRoutes := adminRoutes.Group("/runs")
			{
				runRoutes.GET("", d.Runs.ListRunsHandler)
				runRoutes.GET("/:id", d.Runs.GetRunHandler)
				runRoutes.GET("/:id/records", d.Runs.GetRunRecordsHandler)
			}
		}
	}

	return router
}
