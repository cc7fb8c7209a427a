// Package core defines the shared language of the LeapAsk system.
//
// This package contains:
//   - The AllowedSchema snapshot (table -> permitted columns)
//   - Live catalog entities (employees, machines, parts, lots)
//   - Resolution results (Intent, Timeframe, ResolvedEntities)
//   - Adapter configuration and result row types
//   - Severity levels shared by validator findings
//
// The Golden Rule: pkg/core imports ONLY stdlib.
// All other packages depend on core, not the reverse.
package core
