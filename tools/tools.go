//go:build tools
// +build tools

// Package tools documents development tool dependencies.
// These tools are installed globally via `go install` and are not tracked in go.mod
// since they are development tools, not runtime dependencies.
package tools

// Development tools (install via `go install`):
//
// mockgen - Mock generation for store interfaces (see internal/mocks/generate.go)
//   Install: go install go.uber.org/mock/mockgen@v0.6.0
//   Docs: https://github.com/uber-go/mock
