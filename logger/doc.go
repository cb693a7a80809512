// Package logger constructs the application's zap loggers.
//
// Every component that reports activity, from the MCP server down to the
// execution engine, shares a single structured logger built here from the
// logging section of the application configuration.
//
// Usage:
//
//	log, err := logger.New("production", "info")
//	if err != nil {
//	    return err
//	}
//	log.Info("server listening", zap.String("transport", "stdio"))
package logger
