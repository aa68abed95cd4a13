package asmref

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/go-asmref/docid"
	"github.com/albertocavalcante/go-asmref/metadata/metadatatest"
)

// contosoCore builds the implementation assembly used by the entity and
// locate tests.
func contosoCore() *metadatatest.Assembly {
	asm := metadatatest.NewAssembly("Contoso.Core", "1.0.0.0").TargetFramework(netcore31)
	widget := asm.Type("Contoso", "Widget").
		Method(".ctor").
		Method("Spin", metadatatest.Int32).
		Method("Spin", metadatatest.String, metadatatest.Int32).
		GenericMethod("Map", 1, metadatatest.MethodVar(0)).
		Method("System.IDisposable.Dispose").
		Field("count").
		Property("Name").
		Property("Item", metadatatest.Int32).
		Event("Changed")
	widget.Nested("Part").Method("Run")
	asm.Type("Contoso", "Box`1").Method("Put", metadatatest.TypeVar(0))
	asm.Type("Contoso.Text", "Rune")
	return asm
}

func TestFindEntity(t *testing.T) {
	path := contosoCore().WriteFile(t, t.TempDir(), "Contoso.Core.dll")
	s := newTestSession(t)
	l := s.Open(path)
	ctx := testContext(t)

	tests := []struct {
		id       string
		wantType string
		member   string
	}{
		{"T:Contoso.Widget", "Contoso.Widget", ""},
		{"T:Contoso.Widget.Part", "Contoso.Widget+Part", ""},
		{"T:Contoso.Box`1", "Contoso.Box`1", ""},
		{"T:Contoso.Text.Rune", "Contoso.Text.Rune", ""},
		{"M:Contoso.Widget.#ctor", "Contoso.Widget", ".ctor"},
		{"M:Contoso.Widget.Spin(System.Int32)", "Contoso.Widget", "Spin"},
		{"M:Contoso.Widget.Spin(System.String,System.Int32)", "Contoso.Widget", "Spin"},
		{"M:Contoso.Widget.Map``1(``0)", "Contoso.Widget", "Map"},
		{"M:Contoso.Widget.System#IDisposable#Dispose", "Contoso.Widget", "System.IDisposable.Dispose"},
		{"M:Contoso.Widget.Part.Run", "Contoso.Widget+Part", "Run"},
		{"M:Contoso.Box`1.Put(`0)", "Contoso.Box`1", "Put"},
		{"F:Contoso.Widget.count", "Contoso.Widget", "count"},
		{"P:Contoso.Widget.Name", "Contoso.Widget", "Name"},
		{"P:Contoso.Widget.Item(System.Int32)", "Contoso.Widget", "Item"},
		{"E:Contoso.Widget.Changed", "Contoso.Widget", "Changed"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			id, err := docid.Parse(tt.id)
			require.NoError(t, err)
			e, err := FindEntity(ctx, l, id)
			require.NoError(t, err)
			require.NotNil(t, e)
			require.Equal(t, id.Kind, e.Kind)
			require.Equal(t, tt.wantType, e.Type.FullName())
			require.Equal(t, tt.member, e.Member)
			require.Equal(t, path, e.Module.FileName())
		})
	}
}

func TestFindEntityMisses(t *testing.T) {
	path := contosoCore().WriteFile(t, t.TempDir(), "Contoso.Core.dll")
	s := newTestSession(t)
	l := s.Open(path)
	ctx := testContext(t)

	for _, raw := range []string{
		"T:Contoso.Gadget",
		"T:Contoso.Widget.Missing",
		"M:Contoso.Widget.Spin",
		"M:Contoso.Widget.Spin(System.Int64)",
		"M:Contoso.Widget.Map(``0)",
		"M:Contoso.Widget.Map``2(``0)",
		"F:Contoso.Widget.Count",
		"P:Contoso.Widget.Item",
		"E:Contoso.Widget.Spin",
	} {
		t.Run(raw, func(t *testing.T) {
			id, err := docid.Parse(raw)
			require.NoError(t, err)
			e, err := FindEntity(ctx, l, id)
			require.NoError(t, err)
			require.Nil(t, e)
		})
	}
}

func TestFindEntityNamespace(t *testing.T) {
	path := contosoCore().WriteFile(t, t.TempDir(), "Contoso.Core.dll")
	s := newTestSession(t)
	l := s.Open(path)
	ctx := testContext(t)

	e, err := FindEntity(ctx, l, docid.ID{Kind: docid.Namespace, TypeName: "Contoso.Text"})
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Nil(t, e.Type)

	e, err = FindEntity(ctx, l, docid.ID{Kind: docid.Namespace, TypeName: "Fabrikam"})
	require.NoError(t, err)
	require.Nil(t, e)
}

func TestFindEntitySkipsReferenceAssemblies(t *testing.T) {
	dir := t.TempDir()
	refPath := contosoCore().ReferenceAssembly().WriteFile(t, filepath.Join(dir, "ref"), "Contoso.Core.dll")
	implPath := contosoCore().WriteFile(t, filepath.Join(dir, "lib"), "Contoso.Core.dll")
	s := newTestSession(t)
	ref := s.Open(refPath)
	impl := s.Open(implPath)

	id, err := docid.Parse("M:Contoso.Widget.Spin(System.Int32)")
	require.NoError(t, err)
	ctx := testContext(t)

	e, err := FindEntity(ctx, ref, id)
	require.NoError(t, err)
	require.Nil(t, e)

	e, err = FindEntityIn(ctx, []*Loader{ref, impl}, id)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, implPath, e.Module.FileName())
}

func TestFindEntityFollowsForwarders(t *testing.T) {
	dir := t.TempDir()
	implPath := contosoCore().WriteFile(t, filepath.Join(dir, "impl"), "Contoso.Core.dll")
	facadePath := metadatatest.NewAssembly("Contoso.Facade", "1.0.0.0").
		TargetFramework(netcore31).
		Reference("Contoso.Core, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null").
		Forward("Contoso", "Widget", "Contoso.Core").
		WriteFile(t, filepath.Join(dir, "facade"), "Contoso.Facade.dll")

	sf := NewStaticFinder(map[string]string{"Contoso.Core": implPath})
	s := newTestSession(t, WithFinderFactory(sf.Factory()))
	facade := s.Open(facadePath)

	id, err := docid.Parse("M:Contoso.Widget.Part.Run")
	require.NoError(t, err)
	e, err := FindEntity(testContext(t), facade, id)
	require.NoError(t, err)
	require.NotNil(t, e)
	require.Equal(t, "Contoso.Core", e.Module.ShortName())
	require.Equal(t, implPath, e.Module.FileName())
	require.Equal(t, "Run", e.Member)
}

func TestFindEntityUnresolvedForwarder(t *testing.T) {
	facadePath := metadatatest.NewAssembly("Contoso.Facade", "1.0.0.0").
		Reference("Contoso.Core, Version=1.0.0.0").
		Forward("Contoso", "Widget", "Contoso.Core").
		WriteFile(t, t.TempDir(), "Contoso.Facade.dll")
	s := newTestSession(t, WithFinderFactory(func(FinderContext) (FileFinder, error) { return NoopFinder{}, nil }))

	id, err := docid.Parse("T:Contoso.Widget")
	require.NoError(t, err)
	e, err := FindEntity(testContext(t), s.Open(facadePath), id)
	require.NoError(t, err)
	require.Nil(t, e)
}
