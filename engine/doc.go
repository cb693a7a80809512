// Package engine implements the safe execution core for LLM-generated
// analysis code.
//
// Candidate programs are JavaScript, executed in-process on the goja
// interpreter. Each execution passes through four stages: static AST
// validation against a process-wide allow-list, construction of a fresh
// restricted environment (default-deny globals, intercepted imports),
// bounded execution on a dedicated worker with a hard wall-clock timeout,
// and result harvesting from a deep copy of the caller's dataset. The
// outcome is classified into exactly one of success, validation_rejected,
// runtime_failure or timeout.
//
// Usage:
//
//	eng, err := engine.New(engine.DefaultAllowList(), engine.DefaultOptions(), logger)
//	outcome := eng.Execute(ctx, engine.Request{
//	    Program: engine.CandidateProgram{Source: code, Attempt: 1},
//	    Dataset: ds,
//	})
package engine
