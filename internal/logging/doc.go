// Package logging configures the process-wide zerolog logger.
//
// Binaries call ConfigureRuntime once at start-up; tests call ConfigureTests
// (through testutil/testlog). The ENCLAVELINK_LOG_* variables override the
// profile defaults. Packages obtain tagged sub-loggers with For.
package logging
