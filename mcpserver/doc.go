// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// execution engine to orchestration clients. It uses the mark3labs/mcp-go
// library to handle the protocol details and provides the execute_analysis
// tool as the primary interface for running candidate analysis code, plus a
// profile_dataset tool that describes a dataset for prompt construction.
//
// The server supports both stdio and HTTP transports as configured by the
// application configuration.
//
// Usage:
//
//	server, err := mcpserver.New(config, logger, executor)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = server.ServeStdio() // or server.ServeHTTP()
package mcpserver
