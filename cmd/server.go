package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/gardenledger/fieldsync/pkg/config"
	"github.com/gardenledger/fieldsync/pkg/errx"
	"github.com/gardenledger/fieldsync/pkg/logx"
)

func main() {
	cfg := config.Load()

	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		logx.SetLevel(logx.ParseLevel(lvl))
	}

	logx.Info("starting fieldsync server")

	container := NewContainer(cfg)
	defer container.Cleanup()

	app := fiber.New(fiber.Config{
		AppName:               "fieldsync",
		DisableStartupMessage: true,
		ErrorHandler:          globalErrorHandler(cfg),
		BodyLimit:             cfg.Server.BodyLimit,
	})

	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(requestid.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(logger.New(logger.Config{
		Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${reqHeader:X-Request-ID}\n",
		TimeFormat: "2006-01-02 15:04:05",
	}))

	container.Handlers.RegisterRoutes(app, container.Tokens.Authenticate())

	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Route not found",
			"code":  "NOT_FOUND",
			"path":  c.Path(),
		})
	})

	bgCtx, stopBackground := context.WithCancel(context.Background())
	container.StartBackgroundServices(bgCtx)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Server.Port)
		logx.Infof("listening on %s", addr)
		if err := app.Listen(addr); err != nil {
			logx.Fatalf("server stopped: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logx.Info("shutting down")
	stopBackground()

	if err := app.ShutdownWithTimeout(30 * time.Second); err != nil {
		logx.Errorf("graceful shutdown failed: %v", err)
	}
	logx.Info("server stopped")
}

// globalErrorHandler converts internal errors to standard HTTP responses.
func globalErrorHandler(cfg *config.Config) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		logx.WithFields(logx.Fields{
			"path":       c.Path(),
			"method":     c.Method(),
			"request_id": c.Get("X-Request-ID"),
		}).Errorf("request error: %v", err)

		if e, ok := err.(*fiber.Error); ok {
			return c.Status(e.Code).JSON(fiber.Map{
				"error": e.Message,
				"code":  "FIBER_ERROR",
			})
		}

		if e, ok := err.(*errx.Error); ok {
			response := fiber.Map{
				"error": e.Message,
				"code":  e.Code,
				"type":  string(e.Type),
			}
			if len(e.Details) > 0 {
				response["details"] = e.Details
			}
			if cfg.Server.Debug && e.Err != nil {
				response["underlying_error"] = e.Err.Error()
			}
			return c.Status(e.HTTPStatus).JSON(response)
		}

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Internal server error",
			"code":  "INTERNAL_ERROR",
		})
	}
}
