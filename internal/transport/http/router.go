package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"learning-progress-service/internal/app"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the use cases exposed over HTTP.
type Services struct {
	Sessions *app.SessionService
	Progress *app.ProgressService
	Store    Pinger
}

// Options tune the router.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	TimerTick      time.Duration
}

// NewRouter wires every route behind bearer auth, except the health check.
func NewRouter(svc Services, opts Options) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(corsConfig(opts.AllowedOrigins)))

	r.GET("/healthz", func(c *gin.Context) {
		if svc.Store != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := svc.Store.Ping(ctx); err != nil {
				c.String(http.StatusServiceUnavailable, "store unavailable")
				return
			}
		}
		c.String(http.StatusOK, "ok")
	})

	h := &handlers{sessions: svc.Sessions, progress: svc.Progress}
	ws := NewWSHandler(svc.Sessions, opts.TimerTick)

	authed := r.Group("/", Authenticate([]byte(opts.JWTSecret)), RequireRole(RoleStudent, RoleInstructor, RoleAdmin))
	{
		authed.POST("/quiz-sessions/start", h.startSession)
		authed.GET("/quiz-sessions/:quizId/status", h.sessionStatus)
		authed.PUT("/quiz-sessions/:sessionId/answers", h.saveAnswers)
		authed.POST("/quiz-sessions/:sessionId/submit", h.submit)
		authed.GET("/quiz-sessions/:quizId/completion-status", h.completionStatus)
		authed.PUT("/courses/:courseId/modules/:moduleId/items/:itemId/complete", h.completeItem)
		authed.GET("/courses/:courseId/progress", h.courseProgress)
		authed.GET("/ws/quiz-sessions/:sessionId", ws.ServeWS)
	}
	return r
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Content-Length", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
