// Package shared holds helpers used across annadata packages that belong to
// no single domain.
//
// # Structure
//
//   - testutil: slog capture for asserting on structured log output
package shared
