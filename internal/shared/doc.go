// Package shared holds utilities used across packages that belong to no
// specific pipeline stage. The testutil subpackage provides a buffered slog
// handler and log assertions for tests.
package shared
