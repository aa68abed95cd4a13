package main

import (
	"context"
	"io"
	"time"

	asmref "github.com/albertocavalcante/go-asmref"
)

// ResolveCmd resolves references made by one assembly.
type ResolveCmd struct {
	Path       string        `arg:"" help:"Referencing assembly." type:"existingfile"`
	References []string      `arg:"" optional:"" sep:"none" help:"Assembly display names. Defaults to every reference of the assembly."`
	Open       []string      `sep:"none" help:"Assemblies to open before resolving, as a host would have them loaded."`
	NoLoad     bool          `help:"Report only references satisfied by already opened assemblies."`
	Timeout    time.Duration `help:"Overall deadline." default:"30s"`
}

type resolution struct {
	Reference string `json:"reference" yaml:"reference"`
	Resolved  bool   `json:"resolved" yaml:"resolved"`
	Assembly  string `json:"assembly,omitempty" yaml:"assembly,omitempty"`
	Path      string `json:"path,omitempty" yaml:"path,omitempty"`
}

type resolveResult struct {
	Assembly    string       `json:"assembly" yaml:"assembly"`
	Resolutions []resolution `json:"resolutions" yaml:"resolutions"`
}

func (r *resolveResult) writeText(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("%s\n", r.Assembly)
	for _, res := range r.Resolutions {
		if !res.Resolved {
			ew.printf("  %s\n    unresolved\n", res.Reference)
			continue
		}
		ew.printf("  %s\n    -> %s\n", res.Reference, res.Path)
	}
	return ew.err
}

// Run resolves the references in order.
func (c *ResolveCmd) Run(app *App) error {
	ctx, cancel := context.WithTimeout(context.Background(), c.Timeout)
	defer cancel()

	s, err := asmref.NewSession(app.Options...)
	if err != nil {
		return err
	}
	owner := s.Open(c.Path)
	m, err := owner.Module(ctx)
	if err != nil {
		return err
	}
	for _, p := range c.Open {
		s.Open(p)
	}

	refs, err := c.references(m)
	if err != nil {
		return err
	}

	r := owner.Resolver(!c.NoLoad)
	res := &resolveResult{Assembly: m.FullName(), Resolutions: []resolution{}}
	for _, ref := range refs {
		found, err := r.Resolve(ctx, ref)
		if err != nil {
			return err
		}
		out := resolution{Reference: ref.FullName()}
		if found != nil {
			out.Resolved = true
			out.Assembly = found.FullName()
			out.Path = found.FileName()
		}
		res.Resolutions = append(res.Resolutions, out)
	}
	return render(app, res)
}

func (c *ResolveCmd) references(m *asmref.Module) ([]asmref.Reference, error) {
	if len(c.References) == 0 {
		return m.Metadata().AssemblyReferences(), nil
	}
	refs := make([]asmref.Reference, 0, len(c.References))
	for _, s := range c.References {
		ref, err := asmref.ParseReference(s)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}
