// Package preflight provides readiness checks for the key files, external
// tools and paths that nxinfo depends on.
//
// These checks run in two contexts:
//   - The CLI "nxinfo doctor" command runs RunAll and prints every result.
//   - Scan commands call RunAll before loading keys and stop on the first
//     failed mandatory check, so a missing prod.keys is reported once instead
//     of as a failure on every container.
//
// Optional checks (SD keys, title keys, the version list) never block a scan.
package preflight
