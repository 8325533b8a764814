// Package main is the entry point for the Sandgate gateway server.
//
// The gateway serves the sandbox REST API and the websocket job stream,
// backed by an in-memory registry and a deterministic execution
// simulator. An optional MCP facade exposes code execution to agent
// frameworks over stdio or HTTP.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/isdmx/sandgate/config"
	"github.com/isdmx/sandgate/gateway"
	"github.com/isdmx/sandgate/logger"
	"github.com/isdmx/sandgate/mcpserver"
	"github.com/isdmx/sandgate/registry"
	"github.com/isdmx/sandgate/simulator"
)

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// In-memory registry seeded with the template catalog
			registry.New,

			// Execution simulator
			simulator.New,

			// Shared operation layer
			func(cfg *config.Config, log *zap.Logger, reg *registry.Registry, sim *simulator.Simulator) *gateway.Service {
				return gateway.NewService(log, reg, sim, cfg.GetSimulatedDelay())
			},

			// HTTP gateway
			gateway.NewServer,

			// MCP facade
			mcpserver.New,
		),

		// Run the gateway under the fx lifecycle
		fx.Invoke(
			func(lc fx.Lifecycle, server *gateway.Server) {
				lc.Append(fx.Hook{
					OnStart: func(context.Context) error {
						go func() {
							if err := server.Start(); err != nil {
								panic(err)
							}
						}()
						return nil
					},
					OnStop: server.Shutdown,
				})
			},

			// Start the MCP facade when enabled
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				if !cfg.MCP.Enabled {
					return
				}
				switch cfg.MCP.Transport {
				case "stdio":
					go func() {
						if err := server.ServeStdio(); err != nil {
							panic(err)
						}
					}()
				case "http":
					go func() {
						if err := server.ServeHTTP(); err != nil {
							panic(err)
						}
					}()
				default:
					panic("unsupported mcp transport: " + cfg.MCP.Transport)
				}
			},
		),

		// Use the application logger for fx logs
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
	)

	// Start the application
	app.Run()
}
