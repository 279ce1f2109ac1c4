// Package log provides the logging abstraction for the optimizer pipeline.
//
// Every stage logs through the small Logger interface; the default writes to
// stderr via the standard library and GologLogger adapts a kataras/golog
// instance for structured deployments. Auxiliary subsystems (cache, state,
// ledger) log failures at Warn and never surface them to callers.
package log
