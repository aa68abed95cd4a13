package asmref

import (
	"context"
	"errors"
	"slices"
	"strings"

	"github.com/albertocavalcante/go-asmref/docid"
	"github.com/albertocavalcante/go-asmref/metadata"
)

// maxForwardDepth bounds how many type forwarders FindEntity follows.
const maxForwardDepth = 8

// Entity is a symbol located inside a module.
type Entity struct {
	Kind   docid.Kind
	Module *Module
	// Type is the declaring type of a member, the type itself for type
	// ids, and nil for namespaces.
	Type *metadata.TypeDef
	// Member is the metadata name of the member, "" for types and
	// namespaces.
	Member string
}

// FindEntity locates id in the module of l. Reference assemblies are
// skipped so callers can keep looking for an implementation. Types that
// the module only forwards are followed through l's resolver.
func FindEntity(ctx context.Context, l *Loader, id docid.ID) (*Entity, error) {
	return findEntity(ctx, l, id, 0)
}

// FindEntityIn returns the first entity FindEntity locates in loaders.
func FindEntityIn(ctx context.Context, loaders []*Loader, id docid.ID) (*Entity, error) {
	for _, l := range loaders {
		e, err := FindEntity(ctx, l, id)
		if err != nil || e != nil {
			return e, err
		}
	}
	return nil, nil
}

func findEntity(ctx context.Context, l *Loader, id docid.ID, depth int) (*Entity, error) {
	m, err := l.Module(ctx)
	if err != nil {
		if errors.Is(err, ErrLoadFailed) {
			return nil, nil
		}
		return nil, err
	}
	if m.IsReferenceAssembly() {
		return nil, nil
	}

	if id.Kind == docid.Namespace {
		for _, t := range m.file.Types() {
			if t.DeclaringType == nil && t.Namespace == id.TypeName {
				return &Entity{Kind: id.Kind, Module: m}, nil
			}
		}
		return nil, nil
	}

	for _, split := range id.TypeSplits() {
		t := findNestedType(m.file, split)
		if t == nil {
			continue
		}
		member, ok := findMember(t, id)
		if !ok {
			continue
		}
		return &Entity{Kind: id.Kind, Module: m, Type: t, Member: member}, nil
	}

	if depth >= maxForwardDepth {
		return nil, nil
	}
	for _, split := range id.TypeSplits() {
		e := m.file.FindExportedType(split.Namespace, split.Types[0])
		if e == nil || !e.IsForwarder() {
			continue
		}
		target, err := l.Resolver(true).Resolve(ctx, *e.Scope)
		if err != nil {
			return nil, err
		}
		if target == nil {
			l.session.logger.Debug("forwarded type target unresolved", "type", e.FullName(), "target", e.Scope.FullName())
			continue
		}
		tl, err := l.session.LoaderFor(target)
		if err != nil {
			return nil, err
		}
		return findEntity(ctx, tl, id, depth+1)
	}
	return nil, nil
}

func findNestedType(f *metadata.File, split docid.Split) *metadata.TypeDef {
	t := f.FindType(split.Namespace, split.Types[0])
	for _, name := range split.Types[1:] {
		if t == nil {
			return nil
		}
		t = t.NestedType(name)
	}
	return t
}

// memberName maps a documentation id member name to its metadata
// spelling: "#ctor" becomes ".ctor" and explicit implementations use '.'.
func memberName(s string) string {
	return strings.ReplaceAll(s, "#", ".")
}

func findMember(t *metadata.TypeDef, id docid.ID) (string, bool) {
	name := memberName(id.Member)
	switch id.Kind {
	case docid.Type:
		return "", true
	case docid.Method:
		for _, m := range t.Methods {
			if m.Name == name && m.GenericArity == id.MemberArity && sameParams(m.Params, id) {
				return m.Name, true
			}
		}
	case docid.Field:
		for _, f := range t.Fields {
			if f.Name == name {
				return f.Name, true
			}
		}
	case docid.Property:
		for _, p := range t.Properties {
			if p.Name == name && sameParams(p.Params, id) {
				return p.Name, true
			}
		}
	case docid.Event:
		for _, e := range t.Events {
			if e.Name == name {
				return e.Name, true
			}
		}
	}
	return "", false
}

// sameParams compares decoded parameter types with the id's list. An id
// without a list names a member without parameters.
func sameParams(params []string, id docid.ID) bool {
	if !id.HasParams {
		return len(params) == 0
	}
	return slices.Equal(params, id.Params)
}
