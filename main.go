package main

import (
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/musable/musable/config"
	"github.com/musable/musable/controllers"
	"github.com/musable/musable/database"
	"github.com/musable/musable/docs"
	"github.com/musable/musable/middleware"
	"github.com/musable/musable/repository"
	"github.com/musable/musable/websocket"
)

// @title           Musable API
// @version         1.0
// @description     API Server for the Musable streaming sync service
// @host            localhost:8080
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using system environment variables")
	}

	cfg := config.Load()

	// Initialize database
	database.Connect(cfg)
	database.Migrate()

	// Repositories
	roomRepo := repository.NewRoomRepository(database.DB, cfg.RoomCodeLength)
	sessionRepo := repository.NewSessionRepository(database.DB, cfg.MaxDevicesPerUser)
	controllers.Init(roomRepo, sessionRepo)

	// Real-time engines
	hub := websocket.NewHub()
	states := websocket.NewStateStore()
	roomEngine := websocket.NewRoomEngine(roomRepo, states, hub)
	deviceEngine := websocket.NewDeviceEngine(sessionRepo, hub)
	hub.OnDisconnect(roomEngine.HandleDisconnect)
	hub.OnDisconnect(deviceEngine.HandleDisconnect)
	router := websocket.NewRouter(hub, roomEngine, deviceEngine)

	go hub.Run()

	// Background loops
	stop := make(chan struct{})
	reconciler := websocket.NewReconciler(roomRepo, states, cfg.ReconcileInterval, cfg.StalenessWindow)
	go reconciler.Run(stop)
	go deviceEngine.RunDeviceSweep(cfg.DeviceSweepPeriod, cfg.DeviceSweepAge, stop)

	// Set up Swagger info
	docs.SwaggerInfo.Host = "localhost:" + cfg.Port

	// Set up router
	r := gin.Default()

	// CORS middleware
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Swagger documentation
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Authentication routes
	auth := r.Group("/api")
	{
		auth.POST("/register", controllers.Register)
		auth.POST("/login", controllers.Login)
	}

	// Protected routes
	api := r.Group("/api")
	api.Use(middleware.JWTAuth())
	{
		// Room routes
		api.GET("/rooms", controllers.GetRooms)
		api.POST("/rooms", controllers.CreateRoom)
		api.GET("/rooms/:id", controllers.GetRoom)

		// Invite routes
		api.GET("/invites/pending", controllers.GetPendingInvites)
		api.POST("/invites", controllers.SendInvite)
		api.POST("/invites/respond", controllers.RespondToInvite)

		// Device and session routes
		api.GET("/devices", controllers.GetDevices)
		api.DELETE("/devices/:deviceId", controllers.DeleteDevice)
		api.GET("/session", controllers.GetSession)
	}

	// WebSocket route
	r.GET("/ws", router.HandleConnection)

	logrus.Infof("Server running on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		logrus.Fatalf("Failed to start server: %v", err)
	}
}
