// Package hvac owns the controller runtime for one multi-zone HVAC unit.
//
// Ownership boundary:
// - TCP link lifecycle and frame reassembly
// - single-in-flight request correlation and timeout recovery
// - durable zone setpoint state
// - public command API and event fan-out
package hvac
