package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/baalimago/chatmux/internal/models"
	"github.com/baalimago/chatmux/internal/ratelimit"
	"github.com/baalimago/chatmux/internal/router"
	"github.com/baalimago/chatmux/internal/tools/mcp"
	pub_models "github.com/baalimago/chatmux/pkg/text/models"
	"github.com/baalimago/go_away_boilerplate/pkg/ancli"
	"github.com/labstack/echo/v5"
)

func (s *Server) handleHealth(c *echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

type chatRequest struct {
	ModelID  string               `json:"modelId"`
	Messages []pub_models.Message `json:"messages"`
	UserID   string               `json:"userId"`
	Tier     string               `json:"tier"`
}

var validRoles = map[string]bool{
	pub_models.RoleSystem:    true,
	pub_models.RoleUser:      true,
	pub_models.RoleAssistant: true,
	pub_models.RoleTool:      true,
}

// validateMessages returns a description of the first problem, or "".
func validateMessages(msgs []pub_models.Message) string {
	if len(msgs) == 0 {
		return "messages are required"
	}
	for i, m := range msgs {
		if !validRoles[m.Role] {
			return fmt.Sprintf("messages[%v]: invalid role: '%v'", i, m.Role)
		}
	}
	return ""
}

// identity fills userId and tier from the headers when the body lacks them.
// The tier is only read when the server trusts it.
func (s *Server) identity(c *echo.Context, userID, tier string) (string, ratelimit.Tier) {
	if userID == "" {
		userID = strings.TrimSpace(c.Request().Header.Get(HeaderUserID))
	}
	if !s.trustTier {
		return userID, ratelimit.TierFree
	}
	if tier == "" {
		tier = c.Request().Header.Get(HeaderTier)
	}
	return userID, ratelimit.ParseTier(tier)
}

// handleChat streams the answer as newline delimited json, one chunk per
// line. Errors past the first byte are reported as error chunks.
func (s *Server) handleChat(c *echo.Context) error {
	var req chatRequest
	if err := c.Bind(&req); err != nil {
		return c.String(http.StatusBadRequest, "malformed request body")
	}
	if problem := validateMessages(req.Messages); problem != "" {
		return c.String(http.StatusBadRequest, problem)
	}
	if strings.TrimSpace(req.ModelID) == "" {
		return c.String(http.StatusBadRequest, "modelId is required")
	}
	userID, tier := s.identity(c, req.UserID, req.Tier)

	rw := c.Response()
	flusher, ok := rw.(http.Flusher)
	if !ok {
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
	}
	rw.Header().Set(echo.HeaderContentType, "application/x-ndjson")
	rw.Header().Set("Cache-Control", "no-cache")
	rw.Header().Set("X-Accel-Buffering", "no")
	rw.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()
	enc := json.NewEncoder(rw)
	stream := s.router.StreamChat(ctx, router.Request{
		ModelID:  req.ModelID,
		Messages: req.Messages,
		UserID:   userID,
		Tier:     tier,
	})
	for chunk := range stream {
		if ctx.Err() != nil {
			// Drain until the router notices the cancellation
			continue
		}
		if err := enc.Encode(chunk); err != nil {
			ancli.Warnf("[%v] failed to write chunk, client likely gone: %v\n", requestID(c), err)
			cancel()
			continue
		}
		flusher.Flush()
	}
	return nil
}

type titleRequest struct {
	ModelID  string               `json:"modelId"`
	Messages []pub_models.Message `json:"messages"`
}

type titleResponse struct {
	Title string `json:"title"`
}

func (s *Server) handleTitle(c *echo.Context) error {
	var req titleRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}
	if problem := validateMessages(req.Messages); problem != "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: problem})
	}
	if strings.TrimSpace(req.ModelID) == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "modelId is required"})
	}
	title, err := s.router.GenerateTitle(c.Request().Context(), req.ModelID, req.Messages)
	if err != nil {
		if router.IsClientError(err) {
			return c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		}
		ancli.Warnf("[%v] failed to generate title: %v\n", requestID(c), err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	return c.JSON(http.StatusOK, titleResponse{Title: title})
}

type modelInfo struct {
	ID           string              `json:"id"`
	Provider     string              `json:"provider"`
	Capabilities models.Capabilities `json:"capabilities"`
	Available    bool                `json:"available"`
}

type modelsResponse struct {
	Models []modelInfo `json:"models"`
}

func (s *Server) handleModels(c *echo.Context) error {
	list := s.router.Catalog().List()
	resp := modelsResponse{Models: make([]modelInfo, 0, len(list))}
	for _, m := range list {
		resp.Models = append(resp.Models, modelInfo{
			ID:           m.ID,
			Provider:     m.Provider,
			Capabilities: m.Capabilities,
			Available:    s.router.Available(m),
		})
	}
	return c.JSON(http.StatusOK, resp)
}

type integrationRequest struct {
	UserID  string            `json:"userId"`
	Name    string            `json:"name"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

type integrationResponse struct {
	Tools []string `json:"tools"`
}

func (s *Server) handleConnectIntegration(c *echo.Context) error {
	if s.integrations == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "integrations are disabled"})
	}
	var req integrationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "malformed request body"})
	}
	userID, _ := s.identity(c, req.UserID, "")
	switch {
	case userID == "":
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "userId is required"})
	case req.Name == "":
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "name is required"})
	case !strings.HasPrefix(req.URL, "http://") && !strings.HasPrefix(req.URL, "https://"):
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "url must be http or https"})
	}
	// The session outlives the request
	ctx := context.WithoutCancel(c.Request().Context())
	names, err := s.integrations.Connect(ctx, userID, mcp.Server{
		Name:     req.Name,
		URL:      req.URL,
		Headers:  req.Headers,
		Verbatim: true,
	})
	if err != nil {
		ancli.Warnf("[%v] failed to connect integration '%v' for user '%v': %v\n", requestID(c), req.Name, userID, err)
		return c.JSON(http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
	if names == nil {
		names = []string{}
	}
	return c.JSON(http.StatusOK, integrationResponse{Tools: names})
}

func (s *Server) handleDisconnectIntegrations(c *echo.Context) error {
	if s.integrations == nil {
		return c.JSON(http.StatusServiceUnavailable, errorResponse{Error: "integrations are disabled"})
	}
	userID, _ := s.identity(c, c.QueryParam("userId"), "")
	if userID == "" {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "userId is required"})
	}
	s.integrations.Disconnect(userID)
	return c.NoContent(http.StatusNoContent)
}
