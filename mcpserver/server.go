// Package mcpserver provides the Model Context Protocol (MCP) server implementation.
//
// The mcpserver package implements an MCP-compliant server that exposes the
// execution engine to orchestration clients. It uses the mark3labs/mcp-go
// library to handle the protocol details and provides the execute_analysis
// tool as the primary interface for running candidate analysis code, plus a
// profile_dataset tool that describes a dataset for prompt construction.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/datakiln/plotbox/config"
	"github.com/datakiln/plotbox/dataset"
	"github.com/datakiln/plotbox/engine"
)

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	executor  engine.Executor
	mcpServer *server.MCPServer
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, executor engine.Executor) (*MCPServer, error) {
	s := &MCPServer{
		config:   cfg,
		logger:   logger,
		executor: executor,
	}

	// Log configuration parameters on startup
	logger.Info("configuration loaded",
		zap.String("server.transport", s.config.Server.Transport),
		zap.Int("server.http_port", s.config.Server.HTTPPort),
		zap.Int("engine.timeout_sec", s.config.Engine.TimeoutSec),
		zap.String("engine.result_variable", s.config.Engine.ResultVariable),
		zap.Int("engine.max_call_stack", s.config.Engine.MaxCallStack),
		zap.Int("engine.max_source_kb", s.config.Engine.MaxSourceKB),
		zap.String("allowlist.path", s.config.AllowList.Path),
	)

	// Create the MCP server
	s.mcpServer = server.NewMCPServer("plotbox-engine", "A safe execution engine for LLM-generated analysis code")

	s.registerExecuteAnalysisTool()
	s.registerProfileDatasetTool()

	return s, nil
}

// registerExecuteAnalysisTool registers the execute_analysis tool
func (s *MCPServer) registerExecuteAnalysisTool() {
	tool := mcp.Tool{
		Name:        "execute_analysis",
		Description: "Execute untrusted analysis code against a dataset in a restricted environment",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Candidate analysis source code (JavaScript)",
				},
				"dataset": map[string]any{
					"type":        "string",
					"description": `Column-oriented dataset JSON: {"columns":[{"name":"x","values":[1,2,3]}]}`,
				},
				"result_variable": map[string]any{
					"type":        "string",
					"description": "Variable the code must assign its output to (optional)",
				},
				"timeout_sec": map[string]any{
					"type":        "number",
					"description": "Execution budget in seconds, capped by server configuration (optional)",
				},
				"attempt": map[string]any{
					"type":        "number",
					"description": "Generation attempt counter for retry loops (optional)",
				},
			},
			Required: []string{"code", "dataset"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleExecuteAnalysis)
}

// registerProfileDatasetTool registers the profile_dataset tool
func (s *MCPServer) registerProfileDatasetTool() {
	tool := mcp.Tool{
		Name:        "profile_dataset",
		Description: "Profile a dataset: column types, null counts, statistics and an LLM-ready text summary",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"dataset": map[string]any{
					"type":        "string",
					"description": `Column-oriented dataset JSON: {"columns":[{"name":"x","values":[1,2,3]}]}`,
				},
			},
			Required: []string{"dataset"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleProfileDataset)
}

// handleExecuteAnalysis handles the execute_analysis tool
func (s *MCPServer) handleExecuteAnalysis(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	s.logger.Info("analysis execution requested")

	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}
	if len(code) > s.config.Engine.MaxSourceKB*1024 {
		return nil, fmt.Errorf("code exceeds size limit: %d bytes > %d KB", len(code), s.config.Engine.MaxSourceKB)
	}

	ds, err := s.datasetParam(request)
	if err != nil {
		return nil, err
	}

	timeout := s.config.GetTimeout()
	if sec := request.GetInt("timeout_sec", 0); sec > 0 {
		requested := time.Duration(sec) * time.Second
		if requested < timeout {
			timeout = requested
		}
	}

	req := engine.Request{
		Program: engine.CandidateProgram{
			Source:  code,
			Attempt: request.GetInt("attempt", 1),
		},
		Dataset:   ds,
		Timeout:   timeout,
		ResultVar: request.GetString("result_variable", s.config.Engine.ResultVariable),
	}

	s.logger.Info("executing candidate program",
		zap.Int("code_length", len(code)),
		zap.Int("attempt", req.Program.Attempt),
		zap.Duration("timeout", timeout))

	outcome := s.executor.Execute(ctx, req)

	s.logger.Info("candidate execution completed",
		zap.String("status", string(outcome.Status)),
		zap.Duration("duration", outcome.Duration))

	payload, err := json.Marshal(outcome)
	if err != nil {
		return nil, fmt.Errorf("failed to encode outcome: %w", err)
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(payload),
			},
		},
	}, nil
}

// handleProfileDataset handles the profile_dataset tool
func (s *MCPServer) handleProfileDataset(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ds, err := s.datasetParam(request)
	if err != nil {
		return nil, err
	}

	profile := dataset.ProfileOf(ds)
	payload, err := json.Marshal(map[string]any{
		"profile": profile,
		"summary": profile.TextSummary(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode profile: %w", err)
	}

	s.logger.Info("dataset profiled",
		zap.Int("rows", profile.RowCount),
		zap.Int("columns", profile.ColumnCount))

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(payload),
			},
		},
	}, nil
}

func (s *MCPServer) datasetParam(request mcp.CallToolRequest) (*dataset.Dataset, error) {
	raw, err := request.RequireString("dataset")
	if err != nil {
		return nil, fmt.Errorf("dataset parameter is required: %w", err)
	}
	ds, err := dataset.FromJSON([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid dataset: %w", err)
	}
	return ds, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the server on HTTP
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.HTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
