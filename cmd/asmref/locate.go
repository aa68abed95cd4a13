package main

import (
	"context"
	"io"
	"time"

	asmref "github.com/albertocavalcante/go-asmref"
)

// LocateCmd maps a symbol in a compile-time assembly to its
// implementation assembly.
type LocateCmd struct {
	Path    string        `arg:"" help:"Assembly the symbol was compiled against." type:"existingfile"`
	DocID   string        `arg:"" name:"doc-id" help:"Documentation comment id, e.g. T:System.String."`
	Timeout time.Duration `help:"Overall deadline." default:"30s"`
}

type locateResult struct {
	DocID           string `json:"doc_id" yaml:"doc_id"`
	TargetFramework string `json:"target_framework,omitempty" yaml:"target_framework,omitempty"`
	Assembly        string `json:"assembly" yaml:"assembly"`
	Path            string `json:"path" yaml:"path"`
}

func (r *locateResult) writeText(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("%s\n", r.DocID)
	if r.TargetFramework != "" {
		ew.printf("  target framework: %s\n", r.TargetFramework)
	}
	ew.printf("  assembly:         %s\n", r.Assembly)
	ew.printf("  path:             %s\n", r.Path)
	return ew.err
}

// Run locates the symbol.
func (c *LocateCmd) Run(app *App) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	s, err := asmref.NewSession(app.Options...)
	if err != nil {
		return err
	}
	info, err := s.LocateSymbol(ctx, asmref.SymbolRequest{
		AssemblyPath: c.Path,
		DocID:        c.DocID,
		IndexID:      c.DocID,
	})
	if err != nil {
		return err
	}
	return render(app, &locateResult{
		DocID:           c.DocID,
		TargetFramework: info.TargetFramework.String(),
		Assembly:        info.AssemblyName,
		Path:            info.AssemblyPath,
	})
}
