//go:build tools

// Package lint pins the linters run over go-asmref. It is a separate
// module so the library's go.mod carries only what the code imports.
//
// Usage from the repository root:
//
//	go run -modfile=tools/lint/go.mod github.com/golangci/golangci-lint/v2/cmd/golangci-lint run ./...
//	go run -modfile=tools/lint/go.mod honnef.co/go/tools/cmd/staticcheck ./...
package lint
