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
