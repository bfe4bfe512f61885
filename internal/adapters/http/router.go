package http

import (
	"context"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/roomkit/internal/adapters/signal"
	"github.com/dkeye/roomkit/internal/config"
	"github.com/dkeye/roomkit/internal/domain"
	"github.com/dkeye/roomkit/internal/room"
)

func genClientToken() string {
	return uuid.NewString()
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.Config, rooms *room.NotificationManager, ctl *signal.Controller) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("RoomkitSessions", store))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	api := r.Group("/api")

	api.GET("/ws/signal", func(c *gin.Context) {
		log.Info().Str("module", "adapters.http").Str("pid", c.GetString("client_token")).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c)
	})

	api.GET("/rooms", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"rooms": rooms.Manager().GetRooms()})
	})

	api.GET("/rooms/:name/participants", func(c *gin.Context) {
		name := domain.RoomName(c.Param("name"))
		participants, err := rooms.Manager().GetParticipants(name)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"participants": participants})
	})

	api.GET("/rooms/:name/publishers", func(c *gin.Context) {
		name := domain.RoomName(c.Param("name"))
		publishers, err := rooms.Manager().GetPublishers(name)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"publishers": publishers})
	})

	api.DELETE("/rooms/:name", func(c *gin.Context) {
		name := domain.RoomName(c.Param("name"))
		if err := rooms.CloseRoom(c.Request.Context(), name); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusNoContent)
	})

	return r
}

func statusFor(err error) int {
	switch room.ErrorCode(err) {
	case room.RoomNotFound, room.UserNotFound:
		return http.StatusNotFound
	case room.RoomClosed, room.RoomAlreadyExists, room.UserAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
