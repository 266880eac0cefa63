package api

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the full control-plane HTTP surface from spec.md §6.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/workflow-templates", h.ListTemplates)

	e.GET("/workflows", h.ListRuns)
	e.POST("/workflows", h.CreateRun)
	e.GET("/workflows/:id", h.GetRun)
	e.GET("/workflows/:id/run-details", h.GetRunDetails)
	e.POST("/workflows/:id/continue", h.ContinueRun)
	e.POST("/workflows/:id/cancel", h.CancelRun)

	e.GET("/workflow-triggers", h.ListTriggers)
	e.POST("/workflow-triggers", h.CreateTrigger)
	e.PATCH("/workflow-triggers/:id", h.UpdateTrigger)
	e.DELETE("/workflow-triggers/:id", h.DeleteTrigger)
}
