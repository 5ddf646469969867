// Package climate owns the HVAC unit wire contract.
//
// Ownership boundary:
// - command/status frame layout and constants
// - temperature raw encoding
// - frame boundary reassembly from a byte stream
package climate
