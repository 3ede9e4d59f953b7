package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/dkeye/Pairwise/internal/adapters/signal"
	"github.com/dkeye/Pairwise/internal/app/orch"
	"github.com/dkeye/Pairwise/internal/config"
	"github.com/dkeye/Pairwise/internal/domain"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

const (
	sessionName     = "PairwiseSessions"
	clientTokenKey  = "ct"
	sessionLifetime = 3600 * 24 * 7
)

// NewSessionStore returns the signed cookie store that carries the
// client token.
func NewSessionStore(secret string) sessions.Store {
	store := cookie.NewStore([]byte(secret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   sessionLifetime,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return store
}

// ClientTokenMiddleware tags every browser with a long-lived participant
// token kept in the session. It is used for logs and connect rate
// limiting only. sessions.Sessions must run first.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		s := sessions.Default(c)
		token, _ := s.Get(clientTokenKey).(string)
		if token == "" {
			token = genClientToken()
			s.Set(clientTokenKey, token)
			if err := s.Save(); err != nil {
				log.Warn().Err(err).Str("module", "adapters.http").Msg("save client token")
			}
		}
		c.Set("client_token", token)
		c.Next()
	}
}

// RequestLogger logs one line per request and stamps X-Request-ID.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := uuid.NewString()
		c.Header("X-Request-ID", requestID)
		start := time.Now()

		c.Next()

		status := c.Writer.Status()
		ev := log.Info()
		if status >= http.StatusInternalServerError {
			ev = log.Error()
		}
		ev.Str("module", "adapters.http").
			Str("request_id", requestID).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.ClientIP()).
			Msg("request")
	}
}

func respond(c *gin.Context, code int, message string, data any) {
	c.JSON(code, gin.H{"message": message, "data": data})
}

func SetupRouter(ctx context.Context, cfg *config.Config, o *orch.Orchestrator, ctrl *signal.SignalWSController) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())
	r.Use(RequestLogger())

	r.Use(sessions.Sessions(sessionName, NewSessionStore(cfg.Secret)))
	r.Use(ClientTokenMiddleware())

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "index.html"))
	})
	r.GET("/health", func(c *gin.Context) {
		respond(c, http.StatusOK, "ok", gin.H{
			"rooms":    len(o.Rooms.List()),
			"sessions": o.Registry.Count(),
		})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	r.POST("/room", func(c *gin.Context) {
		id, err := domain.NewRoomID()
		if err != nil {
			log.Error().Err(err).Str("module", "adapters.http").Msg("generate room id")
			respond(c, http.StatusInternalServerError, "failed to create room", nil)
			return
		}
		log.Info().Str("module", "adapters.http").Str("room", string(id)).Msg("room created")
		c.JSON(http.StatusOK, gin.H{
			"roomId": id,
			"url":    fmt.Sprintf("%s/room/%s", origin(c.Request), id),
		})
	})

	room := r.Group("/room/:id", roomID())
	room.GET("", func(c *gin.Context) {
		c.File(filepath.Join(cfg.StaticPath, "room.html"))
	})
	room.GET("/ws", func(c *gin.Context) {
		id := c.MustGet("room_id").(domain.RoomID)
		log.Info().Str("module", "adapters.http").Str("client", c.GetString("client_token")).Str("room", string(id)).Msg("ws endpoint hit")
		ctrl.HandleSignal(ctx, c, id)
	})

	api := r.Group("/api")
	api.GET("/rooms", func(c *gin.Context) {
		respond(c, http.StatusOK, "ok", o.Rooms.List())
	})

	return r
}

// roomID validates the :id path parameter and stores it as "room_id".
func roomID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := domain.ParseRoomID(c.Param("id"))
		if errors.Is(err, domain.ErrInvalidRoomID) {
			respond(c, http.StatusBadRequest, "invalid room id", nil)
			c.Abort()
			return
		}
		c.Set("room_id", id)
		c.Next()
	}
}

func origin(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
		scheme = "https"
	}
	return scheme + "://" + r.Host
}
