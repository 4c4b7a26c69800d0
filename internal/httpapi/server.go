// Package httpapi exposes the workflow engine over HTTP.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/arkadian-io/flume/integrations"
	"github.com/arkadian-io/flume/internal/persistence"
	"github.com/arkadian-io/flume/pkg/api"
	"github.com/arkadian-io/flume/pkg/registry"
)

// defaultUserID stands in for authentication. Callers identify
// themselves with the X-User-ID header; absent that, everything
// belongs to a single demo user.
const defaultUserID = "demo-user"

// Server holds the dependencies for the API server.
type Server struct {
	engine   api.Engine
	registry *registry.Registry
	catalog  *integrations.Catalog
	creds    persistence.CredentialStore
	logger   *slog.Logger
}

// NewServer creates a new Server.
func NewServer(engine api.Engine, reg *registry.Registry, catalog *integrations.Catalog, creds persistence.CredentialStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, registry: reg, catalog: catalog, creds: creds, logger: logger}
}

// Router builds the echo instance with all routes mounted.
func (s *Server) Router() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus: true,
		LogURI:    true,
		LogMethod: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info("request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status)
			return nil
		},
	}))

	v1 := e.Group("/api/v1")
	v1.GET("/nodes", s.ListNodes)
	v1.GET("/integrations", s.ListIntegrations)
	v1.POST("/integrations/connect", s.ConnectIntegration)
	v1.POST("/integrations/disconnect", s.DisconnectIntegration)
	v1.POST("/executions", s.StartExecution)
	v1.GET("/executions", s.ListExecutions)
	v1.GET("/executions/:id", s.GetExecution)
	v1.POST("/executions/:id/cancel", s.CancelExecution)

	return e
}

func userID(c echo.Context) string {
	if id := c.Request().Header.Get("X-User-ID"); id != "" {
		return id
	}
	return defaultUserID
}

// nodeInfo is the wire form of a registered node type.
type nodeInfo struct {
	Type        string          `json:"type"`
	DisplayName string          `json:"displayName"`
	Description string          `json:"description,omitempty"`
	Category    string          `json:"category,omitempty"`
	Inputs      []api.PortSpec  `json:"inputs,omitempty"`
	Outputs     []api.PortSpec  `json:"outputs,omitempty"`
	Parameters  []api.ParamSpec `json:"parameters,omitempty"`
}

// ListNodes returns every registered node type with its schema
// (GET /api/v1/nodes).
func (s *Server) ListNodes(c echo.Context) error {
	types := s.registry.Types()
	out := make([]nodeInfo, 0, len(types))
	for _, typ := range types {
		schema, ok := s.registry.Schema(typ)
		if !ok {
			continue
		}
		out = append(out, nodeInfo{
			Type:        typ,
			DisplayName: schema.DisplayName,
			Description: schema.Description,
			Category:    schema.Category,
			Inputs:      schema.Inputs,
			Outputs:     schema.Outputs,
			Parameters:  schema.Parameters,
		})
	}
	return c.JSON(http.StatusOK, out)
}

// ListIntegrations returns the catalog annotated with the caller's
// connection state (GET /api/v1/integrations).
func (s *Server) ListIntegrations(c echo.Context) error {
	infos, err := s.catalog.List(userID(c))
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, infos)
}

type connectRequest struct {
	IntegrationID string            `json:"integrationId"`
	Credentials   map[string]string `json:"credentials"`
}

// ConnectIntegration stores credentials for an integration
// (POST /api/v1/integrations/connect).
func (s *Server) ConnectIntegration(c echo.Context) error {
	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.IntegrationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "integrationId is required")
	}
	if !s.catalog.Has(req.IntegrationID) {
		return echo.NewHTTPError(http.StatusNotFound, "unknown integration: "+req.IntegrationID)
	}
	err := s.creds.Put(persistence.Credential{
		UserID:        userID(c),
		IntegrationID: req.IntegrationID,
		Data:          req.Credentials,
		CreatedAt:     time.Now(),
	})
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"integrationId": req.IntegrationID,
		"connected":     true,
	})
}

type disconnectRequest struct {
	IntegrationID string `json:"integrationId"`
}

// DisconnectIntegration removes stored credentials
// (POST /api/v1/integrations/disconnect). Responds 404 when no
// credentials were stored for the caller.
func (s *Server) DisconnectIntegration(c echo.Context) error {
	var req disconnectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.IntegrationID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "integrationId is required")
	}
	if err := s.creds.Delete(userID(c), req.IntegrationID); err != nil {
		if errors.Is(err, persistence.ErrCredentialNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "integration not connected")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]any{
		"integrationId": req.IntegrationID,
		"connected":     false,
	})
}

type startExecutionRequest struct {
	Workflow *api.Graph `json:"workflow"`
	Input    any        `json:"input"`
	Wait     bool       `json:"wait"`
}

// StartExecution validates and runs a workflow
// (POST /api/v1/executions). By default the run is asynchronous and
// the response carries the execution id; wait=true blocks until the
// run reaches a terminal status and returns the full snapshot.
func (s *Server) StartExecution(c echo.Context) error {
	var req startExecutionRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body: "+err.Error())
	}
	if req.Workflow == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "workflow is required")
	}

	ctx := c.Request().Context()
	if req.Wait {
		x, err := s.engine.Execute(ctx, req.Workflow, req.Input)
		if err != nil {
			var verr *api.ValidationError
			if errors.As(err, &verr) {
				return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
			}
			// Run-level failure still produced an execution; report
			// its snapshot rather than a bare error.
			if x != nil {
				return c.JSON(http.StatusOK, x.Snapshot())
			}
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		return c.JSON(http.StatusOK, x.Snapshot())
	}

	// Detach from the request context so the run outlives the response.
	x, err := s.engine.StartExecution(context.WithoutCancel(ctx), req.Workflow, req.Input)
	if err != nil {
		var verr *api.ValidationError
		if errors.As(err, &verr) {
			return echo.NewHTTPError(http.StatusUnprocessableEntity, verr.Error())
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{
		"executionId": x.ID(),
		"status":      x.Status(),
	})
}

// ListExecutions lists known executions, newest first
// (GET /api/v1/executions).
func (s *Server) ListExecutions(c echo.Context) error {
	filter := api.ExecutionFilter{
		WorkflowName: c.QueryParam("workflow"),
		Status:       api.Status(c.QueryParam("status")),
	}
	return c.JSON(http.StatusOK, s.engine.ListExecutions(filter))
}

// GetExecution returns the snapshot of one execution
// (GET /api/v1/executions/:id).
func (s *Server) GetExecution(c echo.Context) error {
	x, err := s.engine.GetExecution(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusNotFound, "execution not found")
	}
	return c.JSON(http.StatusOK, x.Snapshot())
}

// CancelExecution requests cooperative cancellation of a live run
// (POST /api/v1/executions/:id/cancel).
func (s *Server) CancelExecution(c echo.Context) error {
	if err := s.engine.Cancel(c.Param("id")); err != nil {
		if errors.Is(err, api.ErrExecutionNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "execution not found")
		}
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	}
	return c.JSON(http.StatusAccepted, map[string]any{"executionId": c.Param("id")})
}
