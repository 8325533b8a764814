// Package mcpserver provides the Model Context Protocol (MCP) facade.
//
// The mcpserver package exposes sandboxed code execution as an
// MCP-compliant tool server. It uses the mark3labs/mcp-go library to
// handle the protocol details and provides the run_sandboxed_code tool
// as the interface for agent frameworks.
//
// The facade supports both stdio and HTTP transports as configured by
// the application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, sim)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
