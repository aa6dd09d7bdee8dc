// Package server assembles the Fiber application: repositories, services,
// handlers and middleware.
package server

import (
	"errors"
	"log"
	"strings"
	"time"

	"arokya/internal/apperr"
	"arokya/internal/handlers"
	"arokya/internal/payment"
	"arokya/internal/repositories"
	"arokya/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const instrumentationName = "arokya/internal/server"

// Options carries the collaborators and settings the app is built from.
type Options struct {
	DB          *gorm.DB
	Gateway     payment.Gateway
	Publisher   services.EventPublisher // nil disables order events
	JWTSecret   string
	JWTTTL      time.Duration
	Currency    string
	CORSOrigins string
	// RecordCreated puts minted orders of signed-in users in the ledger.
	RecordCreated bool
	// RequestLog turns on the per-request access log.
	RequestLog bool
}

// New builds the application with every route mounted.
func New(opts Options) *fiber.App {
	productRepo := repositories.NewGORMProductRepository(opts.DB)
	userRepo := repositories.NewGORMUserRepository(opts.DB)
	orderRepo := repositories.NewGORMOrderRepository(opts.DB)

	productService := services.NewProductService(productRepo)
	authService := services.NewAuthService(userRepo, opts.JWTSecret, opts.JWTTTL)
	orderService := services.NewOrderService(orderRepo, userRepo, opts.Gateway, opts.Publisher, opts.Currency)
	orderService.SetRecordCreated(opts.RecordCreated)

	productHandler := handlers.NewProductHandler(productService)
	authHandler := handlers.NewAuthHandler(authService)
	orderHandler := handlers.NewOrderHandler(orderService, authService)

	app := fiber.New(fiber.Config{
		AppName:      "arokya",
		ErrorHandler: errorHandler,
	})

	app.Use(recover.New())
	if opts.RequestLog {
		app.Use(logger.New())
	}
	origins := opts.CORSOrigins
	if origins == "" {
		origins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
	}))
	app.Use(tracing())

	app.Get("/health", health(opts.DB))

	api := app.Group("/api")
	productHandler.RegisterRoutes(api)
	authHandler.RegisterRoutes(api)
	orderHandler.RegisterRoutes(api)

	return app
}

func health(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		status := "healthy"
		database := "up"
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.UserContext()) != nil {
			status = "degraded"
			database = "down"
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":   status,
			"time":     time.Now().Format(time.RFC3339),
			"database": database,
		})
	}
}

// tracing starts a server span per request and hands its context to the
// handlers through UserContext.
func tracing() fiber.Handler {
	tracer := otel.Tracer(instrumentationName)
	return func(c *fiber.Ctx) error {
		ctx, span := tracer.Start(c.UserContext(), c.Method()+" "+strings.Clone(c.Path()), trace.WithSpanKind(trace.SpanKindServer))
		defer span.End()
		c.SetUserContext(ctx)

		if err := c.Next(); err != nil {
			span.RecordError(err)
			// answer the error here so the span records the status sent
			if herr := c.App().Config().ErrorHandler(c, err); herr != nil {
				_ = c.SendStatus(fiber.StatusInternalServerError)
			}
		}

		status := c.Response().StatusCode()
		span.SetAttributes(
			attribute.String("http.method", c.Method()),
			attribute.String("http.target", strings.Clone(c.OriginalURL())),
			attribute.Int("http.status_code", status),
		)
		if status >= fiber.StatusInternalServerError {
			span.SetStatus(codes.Error, "request failed")
		}
		return nil
	}
}

// errorHandler answers errors that escape a handler (unknown routes, panics)
// with the same JSON body the handlers use.
func errorHandler(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		status = fiberErr.Code
		message = fiberErr.Message
	} else if code := apperr.HTTPStatus(err); code != fiber.StatusOK {
		status = code
	}
	if status >= fiber.StatusInternalServerError {
		log.Printf("Unhandled error on %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(fiber.Map{
		"message": message,
		"error":   err.Error(),
	})
}
