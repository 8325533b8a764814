// Package config provides gateway configuration management.
//
// The config package handles loading and validation of the gateway's
// configuration from YAML files. It supports configuration for server
// settings, logging, simulated sandbox behavior, and the MCP facade.
//
// Usage:
//
//	cfg, err := config.New()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("HTTP port: %d\n", cfg.Server.HTTPPort)
package config
