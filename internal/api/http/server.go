package httpapi

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp builds the Fiber app with middleware, the health endpoint and the
// API routes.
func NewApp(deps Deps, accessLog bool) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "holfuy",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	if accessLog {
		app.Use(logger.New())
	}
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		st := deps.Poller.State()
		status := "ok"
		if st.ConsecutiveErrors > 0 {
			status = "degraded"
		}
		return c.JSON(fiber.Map{
			"status":             status,
			"service":            "holfuy",
			"consecutive_errors": st.ConsecutiveErrors,
			"open_issues":        len(deps.Issues.Open()),
		})
	})

	RegisterRoutes(app, deps)
	return app
}
