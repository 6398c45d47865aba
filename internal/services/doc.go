// Package services holds what the external tool integrations share.
//
// Errors returned by an integration carry one of the sentinel markers in this
// package, wrapped with Wrap so callers can classify a failure without
// parsing messages. Command execution goes through the Executor interface so
// tests can replay recorded tool output instead of running binaries.
package services
