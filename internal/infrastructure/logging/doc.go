// Package logging provides structured logging for Caseta Bridge.
//
// It wraps log/slog so that every record carries the service name and build
// version, and so components can be tagged with a "component" attribute.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Usage
//
//	logger := logging.New(cfg.Logging, version)
//	logger.Component("platform").Info("pass complete", "hub_id", hubID)
//
// Packages that log accept a small Logger interface (Debug, Info, Warn,
// Error) rather than this concrete type, so *Logger satisfies all of them.
//
// Never log hub private keys or certificates.
package logging
