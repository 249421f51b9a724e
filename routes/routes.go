package routes

import (
	"strings"
	"time"

	"unmute/handlers"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// Options carries the middleware the route groups depend on.
type Options struct {
	Auth        gin.HandlerFunc
	ChatLimiter gin.HandlerFunc
	// CORSOrigins is a comma-separated allow list; empty allows any origin.
	CORSOrigins string
}

// RegisterChatRoutes registers transcript endpoints.
func RegisterChatRoutes(r *gin.Engine, hb *handlers.HandlerBundle, opts Options) {
	api := r.Group("/api/chat")
	{
		api.Use(opts.Auth)
		api.GET("/transcript", hb.GetTranscript)
		api.GET("/stream", hb.Stream)
		api.POST("/messages", opts.ChatLimiter, hb.SendMessage)
		api.POST("/voice", opts.ChatLimiter, hb.SendVoice)
	}
}

// RegisterBookingRoutes registers booking ledger endpoints.
func RegisterBookingRoutes(r *gin.Engine, hb *handlers.HandlerBundle, opts Options) {
	bookingGroup := r.Group("/api/bookings")
	{
		bookingGroup.GET("/services", hb.ListServices)

		bookingGroup.Use(opts.Auth)
		bookingGroup.POST("", hb.SubmitBooking)
		bookingGroup.GET("", hb.ListBookings)
	}
}

// RegisterSessionRoutes registers sign-out.
func RegisterSessionRoutes(r *gin.Engine, hb *handlers.HandlerBundle, opts Options) {
	r.DELETE("/api/session", opts.Auth, hb.SignOut)
}

// RegisterHealthRoute registers a health-check endpoint.
func RegisterHealthRoute(r *gin.Engine, hb *handlers.HandlerBundle) {
	r.GET("/health", hb.Health)
}

// RegisterRoutes centralizes registration of all endpoints and middleware.
func RegisterRoutes(r *gin.Engine, hb *handlers.HandlerBundle, opts Options) {
	r.Use(cors.New(corsConfig(opts.CORSOrigins)))

	if opts.ChatLimiter == nil {
		opts.ChatLimiter = func(c *gin.Context) { c.Next() }
	}

	RegisterChatRoutes(r, hb, opts)
	RegisterBookingRoutes(r, hb, opts)
	RegisterSessionRoutes(r, hb, opts)
	RegisterHealthRoute(r, hb)
}

func corsConfig(origins string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Authorization", "Content-Type"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	for _, o := range strings.Split(origins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			cfg.AllowOrigins = append(cfg.AllowOrigins, o)
		}
	}
	if len(cfg.AllowOrigins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowCredentials = true
	}
	return cfg
}
