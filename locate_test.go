package asmref

import (
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/go-asmref/finder"
	"github.com/albertocavalcante/go-asmref/framework"
	"github.com/albertocavalcante/go-asmref/metadata/metadatatest"
	"github.com/albertocavalcante/go-asmref/version"
)

func TestLocateSymbol(t *testing.T) {
	dir := t.TempDir()
	refPath := contosoCore().ReferenceAssembly().WriteFile(t, filepath.Join(dir, "ref"), "Contoso.Core.dll")
	implDir := filepath.Join(dir, "impl")
	implPath := contosoCore().WriteFile(t, implDir, "Contoso.Core.dll")
	netcore31TF := framework.TargetFramework{Identifier: framework.NETCoreApp, Version: version.New(3, 1, 0, 0)}

	newSession := func(t *testing.T, searchPaths ...string) *Session {
		return newTestSession(t, WithFinderConfig(finder.Config{
			SearchPaths: searchPaths,
			Extensions:  []string{".dll"},
		}))
	}

	tests := []struct {
		name        string
		searchPaths []string
		req         SymbolRequest
		want        SymbolInfo
	}{
		{
			name:        "implementation found",
			searchPaths: []string{implDir},
			req: SymbolRequest{
				AssemblyPath: refPath,
				AssemblyName: "Contoso.Core",
				DocID:        "M:Contoso.Widget.Spin(System.Int32)",
				IndexID:      "M:Contoso.Widget.Spin(System.Int32)",
			},
			want: SymbolInfo{
				TargetFramework: netcore31TF,
				IndexID:         "M:Contoso.Widget.Spin(System.Int32)",
				AssemblyPath:    implPath,
				AssemblyName:    "Contoso.Core",
			},
		},
		{
			name: "no implementation file",
			req: SymbolRequest{
				AssemblyPath: refPath,
				DocID:        "T:Contoso.Widget",
				IsLocal:      true,
			},
			want: SymbolInfo{
				TargetFramework: netcore31TF,
				IsLocal:         true,
				AssemblyPath:    refPath,
				AssemblyName:    "Contoso.Core",
			},
		},
		{
			name:        "symbol missing from implementation",
			searchPaths: []string{implDir},
			req: SymbolRequest{
				AssemblyPath: refPath,
				AssemblyName: "Contoso.Core",
				DocID:        "T:Contoso.Gadget",
			},
			want: SymbolInfo{
				TargetFramework: netcore31TF,
				AssemblyPath:    refPath,
				AssemblyName:    "Contoso.Core",
			},
		},
		{
			name: "no assembly file",
			req: SymbolRequest{
				AssemblyName: "Contoso.Core",
				DocID:        "T:Contoso.Widget",
				IndexID:      "T:Contoso.Widget",
			},
			want: SymbolInfo{
				IndexID:      "T:Contoso.Widget",
				AssemblyName: "Contoso.Core",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newSession(t, tt.searchPaths...)
			got, err := s.LocateSymbol(testContext(t), tt.req)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, *got); diff != "" {
				t.Errorf("LocateSymbol() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLocateSymbolLegacyFramework(t *testing.T) {
	dir := t.TempDir()
	path := metadatatest.NewAssembly("Contoso.Legacy", "1.0.0.0").
		TargetFramework(".NETFramework,Version=v4.7.2").
		WriteFile(t, dir, "Contoso.Legacy.dll")
	ff := NewFailingFinder(nil)
	s := newTestSession(t, WithFinderFactory(ff.Factory()))

	got, err := s.LocateSymbol(testContext(t), SymbolRequest{AssemblyPath: path, DocID: "T:Contoso.Widget"})
	require.NoError(t, err)
	require.Equal(t, framework.NETFramework, got.TargetFramework.Identifier)
	require.Equal(t, path, got.AssemblyPath)
	require.Equal(t, "Contoso.Legacy", got.AssemblyName)
	require.Zero(t, ff.Calls())
}

func TestLocateSymbolErrors(t *testing.T) {
	dir := t.TempDir()
	path := contosoCore().WriteFile(t, dir, "Contoso.Core.dll")
	s := newTestSession(t)
	ctx := testContext(t)

	_, err := s.LocateSymbol(ctx, SymbolRequest{AssemblyPath: path, DocID: "Q:nonsense"})
	require.Error(t, err)

	_, err = s.LocateSymbol(ctx, SymbolRequest{AssemblyPath: filepath.Join(dir, "missing.dll"), DocID: "T:Contoso.Widget"})
	require.ErrorIs(t, err, ErrLoadFailed)
}
