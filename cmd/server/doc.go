// Package main is the entry point for the Sandgate gateway server.
//
// The Sandgate gateway serves sandbox lifecycle, code execution, file
// and context operations over two transports: a REST API and a
// websocket job stream with correlated, streamed result frames. An
// optional MCP facade exposes code execution to agent frameworks.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main
