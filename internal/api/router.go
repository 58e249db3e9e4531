package api

import (
	"github.com/gin-gonic/gin"

	"github.com/rl-arena/ladder-backend/internal/api/handlers"
	"github.com/rl-arena/ladder-backend/internal/api/middleware"
	"github.com/rl-arena/ladder-backend/internal/config"
	"github.com/rl-arena/ladder-backend/internal/service"
	"github.com/rl-arena/ladder-backend/internal/websocket"
	"github.com/rl-arena/ladder-backend/pkg/ratelimit"
)

// SetupRouter API routes. Every path id is an engine id; adapters resolve
// their platform ids through /identities first.
func SetupRouter(cfg *config.Config, engine *service.Engine, hub *websocket.Hub, limiter ratelimit.Limiter) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.CORSAllowedOrigins))

	authHandler := handlers.NewAuthHandler(cfg)
	identityHandler := handlers.NewIdentityHandler(engine.Players)
	playerHandler := handlers.NewPlayerHandler(engine.Players, engine.Ratings)
	lobbyHandler := handlers.NewLobbyHandler(engine.Lobbies, engine.Matchmaking, engine.Confirmation)
	setHandler := handlers.NewSetHandler(engine.Sets)
	schedulerHandler := handlers.NewSchedulerHandler(engine.Lobbies, engine.Sets)
	wsHandler := handlers.NewWebSocketHandler(hub, cfg.CORSAllowedOrigins)

	router.GET("/health", handlers.HealthCheck)

	auth := middleware.Auth(cfg)
	limit := middleware.RateLimit(limiter, middleware.DefaultKeyFunc)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/ws", auth, wsHandler.HandleWebSocket)
		v1.POST("/auth/token", middleware.RateLimit(limiter, middleware.IPKeyFunc), authHandler.Token)

		identities := v1.Group("/identities", auth, limit)
		{
			identities.POST("/players", identityHandler.ResolvePlayer)
			identities.POST("/guilds", identityHandler.ResolveGuild)
		}

		guild := v1.Group("/guilds/:guildId", auth, middleware.RequireGuild(), limit)
		{
			guild.GET("/tiers", playerHandler.ListTiers)
			guild.PUT("/tiers", playerHandler.SaveTier)
			guild.POST("/messages", lobbyHandler.RegisterMessage)

			player := guild.Group("/players/:playerId")
			{
				player.GET("/profile", playerHandler.GetProfile)
				player.PUT("/profile", playerHandler.UpdateProfile)
				player.GET("/rating", playerHandler.GetRating)

				player.GET("/lobby", lobbyHandler.GetLobby)
				player.POST("/search", lobbyHandler.Search)
				player.POST("/stop", lobbyHandler.StopSearch)
				player.POST("/direct-match", lobbyHandler.DirectMatch)
				player.POST("/accept", lobbyHandler.Accept)
				player.POST("/decline", lobbyHandler.Decline)
				player.POST("/resume", lobbyHandler.Resume)

				set := player.Group("/set")
				{
					set.GET("", setHandler.GetState)
					set.POST("/ban", setHandler.Ban)
					set.POST("/stage", setHandler.PickStage)
					set.POST("/character", setHandler.PickCharacter)
					set.POST("/winner", setHandler.VoteWinner)
					set.POST("/surrender", setHandler.Surrender)
					set.POST("/force-surrender", setHandler.ForceSurrender)
					set.POST("/remake", setHandler.Remake)
					set.POST("/cancel", setHandler.VoteCancel)
					set.POST("/rematch", setHandler.VoteRematch)
				}
			}

			lobbies := guild.Group("/lobbies/:lobbyId")
			{
				lobbies.POST("/timeout", lobbyHandler.TimeoutConfirmation)
				lobbies.PUT("/arena", lobbyHandler.BindArena)
				lobbies.POST("/arena/close", lobbyHandler.CloseArena)
				lobbies.DELETE("", lobbyHandler.RemoveLobby)
				lobbies.POST("/sets", setHandler.StartSet)
			}

			guild.POST("/sets/:setId/cancel", setHandler.CancelSet)
		}

		scheduler := v1.Group("/scheduler", auth, middleware.RequireGlobal())
		{
			scheduler.POST("/lobbies/purge", schedulerHandler.PurgeLobbies)
			scheduler.POST("/sets/cancel-stale", schedulerHandler.CancelStaleSets)
		}
	}

	return router
}
