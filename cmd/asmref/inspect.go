package main

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"

	asmref "github.com/albertocavalcante/go-asmref"
)

// InspectCmd prints what the loader knows about one file.
type InspectCmd struct {
	Path  string `arg:"" help:"Assembly or module file." type:"existingfile"`
	Types bool   `help:"List type definitions."`
}

type inspectResult struct {
	Path              string   `json:"path" yaml:"path"`
	Name              string   `json:"name" yaml:"name"`
	IsAssembly        bool     `json:"is_assembly" yaml:"is_assembly"`
	ReferenceAssembly bool     `json:"reference_assembly" yaml:"reference_assembly"`
	RuntimeVersion    string   `json:"runtime_version" yaml:"runtime_version"`
	MVID              string   `json:"mvid,omitempty" yaml:"mvid,omitempty"`
	TargetFramework   string   `json:"target_framework,omitempty" yaml:"target_framework,omitempty"`
	RuntimePack       string   `json:"runtime_pack,omitempty" yaml:"runtime_pack,omitempty"`
	References        []string `json:"references" yaml:"references"`
	ModuleReferences  []string `json:"module_references,omitempty" yaml:"module_references,omitempty"`
	Files             []string `json:"files,omitempty" yaml:"files,omitempty"`
	ForwardedTypes    []string `json:"forwarded_types,omitempty" yaml:"forwarded_types,omitempty"`
	Types             []string `json:"types,omitempty" yaml:"types,omitempty"`
}

func (r *inspectResult) writeText(w io.Writer) error {
	ew := &errWriter{w: w}
	ew.printf("%s\n", r.Name)
	ew.printf("  path:               %s\n", r.Path)
	ew.printf("  runtime version:    %s\n", r.RuntimeVersion)
	if r.MVID != "" {
		ew.printf("  mvid:               %s\n", r.MVID)
	}
	if r.TargetFramework != "" {
		ew.printf("  target framework:   %s\n", r.TargetFramework)
	}
	if r.RuntimePack != "" {
		ew.printf("  runtime pack:       %s\n", r.RuntimePack)
	}
	ew.printf("  reference assembly: %t\n", r.ReferenceAssembly)
	for _, section := range []struct {
		title string
		items []string
	}{
		{"references", r.References},
		{"module references", r.ModuleReferences},
		{"files", r.Files},
		{"forwarded types", r.ForwardedTypes},
		{"types", r.Types},
	} {
		if len(section.items) == 0 {
			continue
		}
		ew.printf("  %s:\n", section.title)
		for _, item := range section.items {
			ew.printf("    %s\n", item)
		}
	}
	return ew.err
}

// Run loads the file and renders its summary.
func (c *InspectCmd) Run(app *App) error {
	ctx := context.Background()
	s, err := asmref.NewSession(app.Options...)
	if err != nil {
		return err
	}
	l := s.Open(c.Path)
	m, err := l.Module(ctx)
	if err != nil {
		return err
	}
	md := m.Metadata()

	res := &inspectResult{
		Path:              m.FileName(),
		Name:              m.FullName(),
		IsAssembly:        m.IsAssembly(),
		ReferenceAssembly: m.IsReferenceAssembly(),
		RuntimeVersion:    md.RuntimeVersion(),
		MVID:              formatGUID(md.MVID()),
		References:        []string{},
		ModuleReferences:  md.ModuleReferences(),
		Files:             md.Files(),
	}
	if m.IsAssembly() {
		if res.TargetFramework, err = l.FrameworkID(ctx); err != nil {
			return err
		}
		if res.RuntimePack, err = l.RuntimePack(ctx); err != nil {
			return err
		}
	}
	for _, ref := range md.AssemblyReferences() {
		res.References = append(res.References, ref.FullName())
	}
	for _, e := range md.ExportedTypes() {
		if e.IsForwarder() && e.Scope != nil {
			res.ForwardedTypes = append(res.ForwardedTypes, e.FullName()+" -> "+e.Scope.Name)
		}
	}
	if c.Types {
		for _, t := range md.Types() {
			if t.Name == "<Module>" {
				continue
			}
			res.Types = append(res.Types, t.FullName())
		}
	}
	return render(app, res)
}

// formatGUID renders a 16-byte GUID heap entry in registry form. The
// first three groups are stored little-endian.
func formatGUID(b []byte) string {
	if len(b) != 16 {
		return ""
	}
	return fmt.Sprintf("%08x-%04x-%04x-%x-%x",
		binary.LittleEndian.Uint32(b[0:4]),
		binary.LittleEndian.Uint16(b[4:6]),
		binary.LittleEndian.Uint16(b[6:8]),
		b[8:10], b[10:16])
}
