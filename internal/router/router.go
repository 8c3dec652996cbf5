package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/studyquest-api/internal/config"
	"github.com/noah-isme/studyquest-api/internal/handler"
	"github.com/noah-isme/studyquest-api/internal/middleware"
	"github.com/noah-isme/studyquest-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ChatHandler    *handler.ChatHandler
	PaymentHandler *handler.PaymentHandler
	WalletHandler  *handler.WalletHandler
	BlogHandler    *handler.BlogHandler
	TutorHandler   *handler.TutorHandler
	HealthProbes   map[string]handler.HealthProbe
	// JWTMiddleware rejects requests without a valid token.
	JWTMiddleware fiber.Handler
	// OptionalJWTMiddleware identifies the caller when a token is sent.
	OptionalJWTMiddleware fiber.Handler
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	// Common v1 group for health & headers
	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg, deps.HealthProbes))

	passthrough := func(c *fiber.Ctx) error { return c.Next() }
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = passthrough
	}
	optionalJWT := deps.OptionalJWTMiddleware
	if optionalJWT == nil {
		optionalJWT = passthrough
	}

	v2 := app.Group("/api/v2")

	// Chat allows anonymous reads; writes are guarded per route
	if deps.ChatHandler != nil {
		deps.ChatHandler.Register(v2.Group("/chat", optionalJWT))
	}

	if deps.PaymentHandler != nil {
		deps.PaymentHandler.Register(v2.Group("/payments", optionalJWT))
	}

	if deps.WalletHandler != nil {
		wallet := v2.Group("/wallet", jwtMiddleware, middleware.WithAuth(passthrough, middleware.AuthOptions{RequireUser: true}))
		deps.WalletHandler.Register(wallet)
	}

	if deps.BlogHandler != nil {
		deps.BlogHandler.Register(v2.Group("/blog", optionalJWT))
	}

	if deps.TutorHandler != nil {
		tutor := v2.Group("/tutor", jwtMiddleware, middleware.WithAuth(passthrough, middleware.AuthOptions{RequireUser: true}))
		deps.TutorHandler.Register(tutor)
	}
}
