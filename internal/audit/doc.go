// Package audit defines the audit event model and the built-in sinks.
//
// Dispatching (buffering, backpressure, drop accounting) lives in the root
// package; this package owns only the event shape and sink contracts. The
// root package re-exports both through type aliases, so sink implementations
// outside the module program against otpAuth.AuditEvent and otpAuth.AuditSink.
package audit
