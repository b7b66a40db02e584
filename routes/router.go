// file: routes/router.go
package routes

import (
	"CTFBox/controllers"
	"CTFBox/middlewares"
	"CTFBox/models"
	"github.com/gin-gonic/gin"
)

func SetupRouter(containerCtl *controllers.ContainerController) *gin.Engine {
	r := gin.Default()

	apiV1 := r.Group("/api/v1")
	{
		usersPublic := apiV1.Group("/users")
		{
			usersPublic.POST("/register", controllers.Register)
			usersPublic.POST("/login", controllers.Login)
		}

		// --- 容器模块路由 ---
		containerRoutes := apiV1.Group("/containers")
		containerRoutes.Use(middlewares.JWTAuthMiddleware())
		{
			containerRoutes.POST("", containerCtl.RequestContainer)
			containerRoutes.GET("", containerCtl.ListContainers)
			containerRoutes.DELETE("/:challenge_id", containerCtl.StopContainer)
			containerRoutes.POST("/:challenge_id/renew", containerCtl.RenewContainer)
		}

		adminRoutes := apiV1.Group("/admin")
		adminRoutes.Use(middlewares.JWTAuthMiddleware(), middlewares.RoleAuthMiddleware(models.RoleAdmin))
		{
			adminRoutes.GET("/containers", containerCtl.AdminListContainers)
			adminRoutes.DELETE("/containers/:instance_id", containerCtl.AdminDestroyContainer)
			adminRoutes.GET("/settings", controllers.GetSettings)
			adminRoutes.PUT("/settings/:key", controllers.UpdateSetting)
		}
	}

	return r
}
