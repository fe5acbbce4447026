package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"aurelienallenic/api/metrics"
	"aurelienallenic/api/middleware"
	"aurelienallenic/api/session"
)

// Dependencies is everything NewRouter wires together.
type Dependencies struct {
	Log      *logrus.Logger
	Metrics  *metrics.Collector
	Redis    *redis.Client
	Sessions *session.Store
	Cookie   middleware.SessionCookie

	AllowedOrigins []string
	// TrustedProxies lists the peers whose X-Forwarded-For is believed.
	// Empty means the socket address is the client address.
	TrustedProxies []string
	CronSecret     string
	GlobalLimit    middleware.RateLimitConfig
	LoginLimit     middleware.RateLimitConfig

	Analytics *AnalyticsHandlers
	Auth      *AuthHandlers
	Contact   *ContactHandlers
	Messages  *MessageHandlers
	CV        *CVHandlers
	Health    *HealthHandlers
}

func NewRouter(d Dependencies) *gin.Engine {
	r := gin.New()
	if err := r.SetTrustedProxies(d.TrustedProxies); err != nil {
		d.Log.WithError(err).Warn("invalid trusted proxies, using socket address only")
		_ = r.SetTrustedProxies(nil)
	}
	r.Use(gin.Recovery())
	r.Use(middleware.LoggingMiddleware(d.Log))
	if d.Metrics != nil {
		r.Use(middleware.Metrics(d.Metrics))
	}
	r.Use(middleware.CORSMiddleware(d.AllowedOrigins))
	r.Use(middleware.RateLimit(d.Redis, d.GlobalLimit, d.Log))
	r.Use(middleware.Sessions(d.Sessions, d.Cookie, d.Log))

	r.GET("/", d.Health.Root)
	r.GET("/health", d.Health.Health)
	if d.Metrics != nil {
		r.GET("/metrics", gin.WrapH(d.Metrics.Handler()))
	}

	r.POST("/track", d.Analytics.TrackEvent)
	r.POST("/contact", d.Contact.HandleContact)

	analytics := r.Group("/analytics")
	{
		cron := analytics.Group("")
		cron.Use(middleware.CronSecret(d.CronSecret))
		{
			cron.GET("/cron-aggregate", d.Analytics.CronDaily)
			cron.GET("/cron-aggregate-monthly", d.Analytics.CronMonthly)
			cron.GET("/cron-aggregate-yearly", d.Analytics.CronYearly)
		}

		admin := analytics.Group("")
		admin.Use(middleware.RequireAdmin())
		{
			admin.GET("", d.Analytics.GetOverview)
			admin.POST("/aggregate", d.Analytics.Aggregate)
			admin.GET("/daily", d.Analytics.GetDaily)
			admin.GET("/monthly", d.Analytics.GetMonthly)
			admin.GET("/yearly", d.Analytics.GetYearly)
		}
	}

	auth := r.Group("/auth")
	{
		auth.POST("/login", middleware.RateLimit(d.Redis, d.LoginLimit, d.Log), d.Auth.Login)
		auth.POST("/logout", d.Auth.Logout)
		auth.GET("/check", d.Auth.Check)
		auth.POST("/create-user", middleware.RequireAdmin(), d.Auth.CreateUser)
		auth.GET("/google", d.Auth.GoogleLogin)
		auth.GET("/google/callback", d.Auth.GoogleCallback)
	}

	r.GET("/cv", d.CV.Get)

	protected := r.Group("/")
	protected.Use(middleware.RequireAuth())
	{
		protected.PUT("/cv", d.CV.Put)
		protected.DELETE("/cv", d.CV.Delete)

		protected.GET("/messages", d.Messages.List)
		protected.GET("/messages/:id", d.Messages.Get)
		protected.DELETE("/messages/:id", d.Messages.Delete)
	}

	return r
}
