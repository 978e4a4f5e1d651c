// Package flows contains the orchestration logic for authentication,
// refresh rotation, and logout, decoupled from the root package through
// dependency structs.
//
// Each flow returns a result value carrying a failure-kind enum instead of a
// root-level error; the root package maps kinds to its public sentinels.
// This keeps the decision logic testable with plain function stubs and free
// of import cycles.
package flows
