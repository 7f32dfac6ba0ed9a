// Package common provides shared constants, sentinel errors, interfaces and
// logging used throughout merlink.
//
// This package serves as the foundation for cross-cutting concerns:
//
//   - Constants: dashboard endpoints, timeouts, file names
//   - Errors: sentinel errors for authentication, catalog and navigation failures
//   - Interfaces: abstractions for credential storage and logging
//   - Logger: leveled logging with file rotation and secret redaction
//   - Utils: config/data directory helpers and string utilities
//
// # Usage
//
//	import "github.com/yllada/merlink/common"
//
//	common.LogInfo("Selecting organization %q", name)
//
//	if errors.Is(err, common.ErrUnknownNetwork) {
//	    // re-prompt with a different selector
//	}
package common
