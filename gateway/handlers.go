package gateway

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/isdmx/sandgate/api"
)

// writeError renders an operation failure as the REST error body.
func writeError(c echo.Context, err error) error {
	var opErr *Error
	if errors.As(err, &opErr) {
		return c.JSON(opErr.Status, api.ErrorResponse{
			Code:      opErr.Code,
			Message:   opErr.Message,
			Timestamp: time.Now().UnixMilli(),
		})
	}
	return c.JSON(http.StatusInternalServerError, api.ErrorResponse{
		Code:      "INTERNAL",
		Message:   err.Error(),
		Timestamp: time.Now().UnixMilli(),
	})
}

// timed wraps a handler so every REST job lands in the gateway counters.
func (s *Server) timed(h echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		started := time.Now()
		err := h(c)
		s.svc.RecordJob(err == nil, time.Since(started))
		return err
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRegister(c echo.Context) error {
	token, userID := s.tokens.Register()
	s.logger.Info("api key issued", zap.String("user_id", userID))
	return c.JSON(http.StatusOK, api.RegisterResponse{Token: token, UserID: userID})
}

func (s *Server) handleMetrics(c echo.Context) error {
	return c.JSON(http.StatusOK, s.svc.Metrics())
}

func (s *Server) handleCreateSandbox(c echo.Context) error {
	var req api.CreateSandboxRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	userID := currentUser(c)
	sb, err := s.svc.CreateSandbox(userID, userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, api.CreateSandboxResponse{Sandbox: sb})
}

func (s *Server) handleDeleteSandbox(c echo.Context) error {
	if err := s.svc.DeleteSandbox(currentUser(c), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleSandboxStatus(c echo.Context) error {
	status, err := s.svc.SandboxStatus(currentUser(c), c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, api.SandboxStatusResponse{Status: status})
}

func (s *Server) handleExecute(c echo.Context) error {
	var req api.ExecuteRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	req.SandboxID = c.Param("id")
	execution, err := s.svc.RunCode(currentUser(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, execution)
}

func (s *Server) handleTerminal(c echo.Context) error {
	var req api.TerminalRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	req.SandboxID = c.Param("id")
	resp, err := s.svc.RunTerminal(currentUser(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFileRead(c echo.Context) error {
	req := api.FileRequest{SandboxID: c.Param("id"), Path: c.QueryParam("path")}
	resp, err := s.svc.ReadFile(currentUser(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFileWrite(c echo.Context) error {
	var req api.FileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	req.SandboxID = c.Param("id")
	if req.Path == "" {
		req.Path = c.QueryParam("path")
	}
	resp, err := s.svc.WriteFile(currentUser(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleFileDelete(c echo.Context) error {
	req := api.FileRequest{SandboxID: c.Param("id"), Path: c.QueryParam("path")}
	if err := s.svc.DeleteFile(currentUser(c), req); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleFileList(c echo.Context) error {
	req := api.FileRequest{SandboxID: c.Param("id"), Path: c.QueryParam("path")}
	resp, err := s.svc.ListFiles(currentUser(c), req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCreateContext(c echo.Context) error {
	var req api.CreateContextRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	req.SandboxID = c.Param("id")
	userID := currentUser(c)
	cc, err := s.svc.CreateContext(userID, userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, cc)
}

func (s *Server) handleDeleteContext(c echo.Context) error {
	req := api.DeleteContextRequest{SandboxID: c.Param("id"), ContextID: c.Param("contextId")}
	if err := s.svc.DeleteContext(currentUser(c), req); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleListTemplates(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("pageSize"))
	return c.JSON(http.StatusOK, s.svc.ListTemplates(page, pageSize))
}

func (s *Server) handleGetTemplate(c echo.Context) error {
	tpl, err := s.svc.GetTemplate(c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tpl)
}

func (s *Server) handleCreateTemplate(c echo.Context) error {
	var req api.CreateTemplateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "malformed request body")
	}
	userID := currentUser(c)
	tpl, err := s.svc.CreateTemplate(userID, userID, req)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, tpl)
}
