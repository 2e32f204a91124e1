// Package httpapi exposes the Pipeline Orchestrator over a single
// demo HTTP route, in the shape of the teacher's fiber handlers
// (typed request/response structs, ErrorResponse on failure) but
// trimmed to the one operation this repository's core needs exposed.
package httpapi

import (
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"civicpipe/internal/config"
	"civicpipe/internal/pipeline"
)

// ErrorResponse is the uniform JSON error body, matching the
// teacher's handlers.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code"`
	Error   string `json:"error"`
}

// ExecuteRequest is the body of POST /v1/execute.
type ExecuteRequest struct {
	RegionID string                    `json:"regionId"`
	Source   config.DataSourceConfig   `json:"source"`
}

// NewServer builds a fiber app exposing the orchestrator as
// POST /v1/execute.
func NewServer(orch *pipeline.Orchestrator, logger *slog.Logger) *fiber.App {
	app := fiber.New()

	app.Use(func(c *fiber.Ctx) error {
		c.Locals("orchestrator", orch)
		return c.Next()
	})

	app.Post("/v1/execute", executeHandler)

	return app
}

func executeHandler(c *fiber.Ctx) error {
	var req ExecuteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST_INVALID_JSON",
			Error:   "Bad request, malformed JSON",
		})
	}

	if req.RegionID == "" || req.Source.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
			Success: false,
			Code:    "BAD_REQUEST",
			Error:   "Missing required field 'regionId' or 'source.url'",
		})
	}

	orch, ok := c.Locals("orchestrator").(*pipeline.Orchestrator)
	if !ok || orch == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false,
			Code:    "INTERNAL_ERROR",
			Error:   "orchestrator not configured",
		})
	}

	result := orch.Execute(c.Context(), req.Source, req.RegionID)
	return c.JSON(result)
}
