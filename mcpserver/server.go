// Package mcpserver provides the Model Context Protocol (MCP) facade.
//
// The mcpserver package exposes the gateway's execution capability as an
// MCP tool. It uses the mark3labs/mcp-go library to handle the protocol
// details and provides the run_sandboxed_code tool so agent frameworks
// can execute code without speaking the gateway's own protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/sandgate/config"
	"github.com/isdmx/sandgate/simulator"
)

// MCPServer represents the MCP facade
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	sim       *simulator.Simulator
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, sim *simulator.Simulator) (*MCPServer, error) {
	s := &MCPServer{
		config: cfg,
		logger: logger,
		sim:    sim,
	}

	logger.Info("mcp facade configured",
		zap.Bool("mcp.enabled", cfg.MCP.Enabled),
		zap.String("mcp.transport", cfg.MCP.Transport),
		zap.Int("mcp.http_port", cfg.MCP.HTTPPort))

	s.mcpServer = server.NewMCPServer("sandgate", "A sandboxed code execution gateway")

	s.registerRunSandboxedCodeTool()

	return s, nil
}

// registerRunSandboxedCodeTool registers the run_sandboxed_code tool
func (s *MCPServer) registerRunSandboxedCodeTool() {
	tool := mcp.Tool{
		Name:        "run_sandboxed_code",
		Description: "Execute code in a sandboxed environment and return its output",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Source code to execute",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Runtime language",
					"enum":        []string{"python", "nodejs"},
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleRunSandboxedCode)
}

// handleRunSandboxedCode handles the run_sandboxed_code tool
func (s *MCPServer) handleRunSandboxedCode(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}

	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	if language != simulator.LanguagePython && language != simulator.LanguageNodeJS {
		return nil, fmt.Errorf("invalid language: %s, must be one of: python, nodejs", language)
	}

	s.logger.Info("executing code via mcp", zap.String("language", language))

	execution := s.sim.Run(code, language)

	s.logger.Info("code execution completed",
		zap.String("language", language),
		zap.Int("exit_code", execution.ExitCode),
		zap.Int("stdout_lines", len(execution.Logs.Stdout)),
		zap.Int("stderr_lines", len(execution.Logs.Stderr)))

	resultJSON, err := json.Marshal(execution)
	if err != nil {
		return nil, fmt.Errorf("failed to encode execution result: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(resultJSON),
			},
		},
		IsError: execution.Error != nil,
	}, nil
}

// ServeStdio starts the facade on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP facade on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the facade on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.MCP.HTTPPort
	s.logger.Info("starting MCP facade on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
