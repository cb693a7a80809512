// Package main is the entry point for the Plotbox execution engine.
//
// The Plotbox server implements a Model Context Protocol (MCP) server that
// safely executes untrusted LLM-generated analysis code against tabular
// datasets. Candidate programs are statically validated, run inside a
// capability-restricted JavaScript environment with a hard time budget, and
// their outputs are classified into structured outcomes. The server supports
// both stdio and HTTP transports.
//
// The application uses Uber's fx framework for dependency injection and
// lifecycle management, with zap for structured logging and viper for
// configuration.
package main

import (
	"time"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/datakiln/plotbox/config"
	"github.com/datakiln/plotbox/engine"
	"github.com/datakiln/plotbox/logger"
	"github.com/datakiln/plotbox/mcpserver"
)

// newAllowList builds the capability allow list from configuration. A file
// path takes precedence over inline lists; with neither, defaults apply.
func newAllowList(cfg *config.Config) (*engine.AllowList, error) {
	if cfg.AllowList.Path != "" {
		return engine.LoadAllowList(cfg.AllowList.Path)
	}

	if len(cfg.AllowList.Modules) > 0 || len(cfg.AllowList.Builtins) > 0 ||
		len(cfg.AllowList.BlockedCalls) > 0 || len(cfg.AllowList.BlockedAttrs) > 0 {
		allow := engine.DefaultAllowList()
		if len(cfg.AllowList.Modules) > 0 {
			allow.Modules = cfg.AllowList.Modules
		}
		if len(cfg.AllowList.Builtins) > 0 {
			allow.Builtins = cfg.AllowList.Builtins
		}
		if len(cfg.AllowList.BlockedCalls) > 0 {
			allow.BlockedCalls = cfg.AllowList.BlockedCalls
		}
		if len(cfg.AllowList.BlockedAttrs) > 0 {
			allow.BlockedAttrs = cfg.AllowList.BlockedAttrs
		}
		if err := allow.Validate(); err != nil {
			return nil, err
		}
		return allow, nil
	}

	return engine.DefaultAllowList(), nil
}

// newEngine builds the execution engine from configuration.
func newEngine(allow *engine.AllowList, cfg *config.Config, log *zap.Logger) (*engine.Engine, error) {
	return engine.New(allow, engine.Options{
		DefaultTimeout: time.Duration(cfg.Engine.TimeoutSec) * time.Second,
		ResultVar:      cfg.Engine.ResultVariable,
		MaxCallStack:   cfg.Engine.MaxCallStack,
		MaxLogEntries:  cfg.Engine.MaxLogEntries,
	}, log)
}

func main() {
	app := fx.New(
		// Provide dependencies
		fx.Provide(
			// Config
			config.New,

			// Logger with configuration
			logger.NewFromConfig,

			// Capability allow list from config
			newAllowList,

			// Execution engine
			newEngine,
			func(e *engine.Engine) engine.Executor { return e },

			// MCP Server
			mcpserver.New,
		),

		// Start the appropriate transport based on config
		fx.Invoke(
			func(cfg *config.Config, server *mcpserver.MCPServer) {
				switch cfg.Server.Transport {
				case "stdio":
					// Use fx to run this as a background task
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
					panic("unsupported transport: " + cfg.Server.Transport)
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
