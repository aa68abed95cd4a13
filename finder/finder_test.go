package finder

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/go-asmref/metadata"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("MZ"), 0o644))
	return path
}

func ref(t *testing.T, s string) metadata.AssemblyName {
	t.Helper()
	name, err := metadata.ParseAssemblyName(s)
	require.NoError(t, err)
	return name
}

func testConfig() Config {
	return Config{Extensions: []string{".dll", ".exe", ".winmd"}}
}

func newFinder(t *testing.T, cfg Config, opts Options) *Finder {
	t.Helper()
	f, err := New(cfg, opts)
	require.NoError(t, err)
	return f
}

func TestFindSibling(t *testing.T) {
	dir := t.TempDir()
	main := touch(t, filepath.Join(dir, "App.dll"))
	want := touch(t, filepath.Join(dir, "Lib.dll"))
	winmd := touch(t, filepath.Join(dir, "Windows.winmd"))

	f := newFinder(t, testConfig(), Options{MainAssemblyPath: main})

	got, err := f.FindAssemblyFile(context.Background(), ref(t, "Lib, Version=1.0.0.0"))
	require.NoError(t, err)
	require.Equal(t, want, got)

	got, err = f.FindAssemblyFile(context.Background(), ref(t, "Windows, Version=255.255.255.255, ContentType=WindowsRuntime"))
	require.NoError(t, err)
	require.Equal(t, winmd, got)
}

func TestFindSiblingInsidePackage(t *testing.T) {
	pkg := filepath.Join(t.TempDir(), "contoso.core", "1.0.0")
	main := touch(t, filepath.Join(pkg, "lib", "net6.0", "Contoso.Core.dll"))
	want := touch(t, filepath.Join(pkg, "ref", "net6.0", "Contoso.Abstractions.dll"))

	f := newFinder(t, testConfig(), Options{MainAssemblyPath: main})
	got, err := f.FindAssemblyFile(context.Background(), ref(t, "Contoso.Abstractions"))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSearchPathsInOrder(t *testing.T) {
	root := t.TempDir()
	first := touch(t, filepath.Join(root, "a", "Shared.dll"))
	touch(t, filepath.Join(root, "b", "Shared.dll"))

	cfg := testConfig()
	cfg.SearchPaths = []string{filepath.Join(root, "missing"), filepath.Join(root, "a"), filepath.Join(root, "b")}
	f := newFinder(t, cfg, Options{})

	got, err := f.FindAssemblyFile(context.Background(), ref(t, "Shared"))
	require.NoError(t, err)
	require.Equal(t, first, got)
}

func TestSiblingsBeforeSearchPaths(t *testing.T) {
	root := t.TempDir()
	main := touch(t, filepath.Join(root, "app", "App.dll"))
	sibling := touch(t, filepath.Join(root, "app", "Shared.dll"))
	touch(t, filepath.Join(root, "search", "Shared.dll"))

	cfg := testConfig()
	cfg.SearchPaths = []string{filepath.Join(root, "search")}
	f := newFinder(t, cfg, Options{MainAssemblyPath: main})

	got, err := f.FindAssemblyFile(context.Background(), ref(t, "Shared"))
	require.NoError(t, err)
	require.Equal(t, sibling, got)
}

const depsJSON = `{
  "runtimeTarget": {"name": ".NETCoreApp,Version=v6.0"},
  "targets": {
    ".NETCoreApp,Version=v6.0": {
      "App/1.0.0": {
        "dependencies": {"Newtonsoft.Json": "13.0.1"},
        "runtime": {"App.dll": {}}
      },
      "Newtonsoft.Json/13.0.1": {
        "runtime": {
          "lib/netstandard2.0/Newtonsoft.Json.dll": {"assemblyVersion": "13.0.0.0", "fileVersion": "13.0.1.25517"}
        }
      },
      "Contoso.Refs/2.0.0": {
        "compile": {"ref/net6.0/Contoso.Refs.dll": {}}
      }
    }
  },
  "libraries": {
    "App/1.0.0": {"type": "project", "serviceable": false, "sha512": ""},
    "Newtonsoft.Json/13.0.1": {"type": "package", "path": "newtonsoft.json/13.0.1"},
    "Contoso.Refs/2.0.0": {"type": "package"}
  }
}`

func TestFindInDeps(t *testing.T) {
	root := t.TempDir()
	main := touch(t, filepath.Join(root, "app", "App.dll"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app", "App.deps.json"), []byte(depsJSON), 0o644))

	packages := filepath.Join(root, "packages")
	newtonsoft := touch(t, filepath.Join(packages, "newtonsoft.json", "13.0.1", "lib", "netstandard2.0", "Newtonsoft.Json.dll"))
	refs := touch(t, filepath.Join(packages, "contoso.refs", "2.0.0", "ref", "net6.0", "Contoso.Refs.dll"))

	cfg := testConfig()
	cfg.NuGetPackages = packages
	f := newFinder(t, cfg, Options{MainAssemblyPath: main, TargetFrameworkID: ".NETCoreApp,Version=v6.0"})

	got, err := f.FindAssemblyFile(context.Background(), ref(t, "Newtonsoft.Json, Version=13.0.0.0, PublicKeyToken=30ad4fe6b2a6aeed"))
	require.NoError(t, err)
	require.Equal(t, newtonsoft, got)

	got, err = f.FindAssemblyFile(context.Background(), ref(t, "contoso.refs"))
	require.NoError(t, err)
	require.Equal(t, refs, got)
}

func TestFindInDepsIgnoresBrokenManifest(t *testing.T) {
	root := t.TempDir()
	main := touch(t, filepath.Join(root, "App.dll"))
	require.NoError(t, os.WriteFile(filepath.Join(root, "App.deps.json"), []byte("{not json"), 0o644))

	cfg := testConfig()
	cfg.NuGetPackages = filepath.Join(root, "packages")
	f := newFinder(t, cfg, Options{MainAssemblyPath: main})

	got, err := f.FindAssemblyFile(context.Background(), ref(t, "Newtonsoft.Json"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFindInRuntimePack(t *testing.T) {
	dotnet := t.TempDir()
	shared := filepath.Join(dotnet, "shared", "Microsoft.NETCore.App")
	for _, v := range []string{"3.1.4", "5.0.0", "6.0.0-preview.1", "not-a-version"} {
		touch(t, filepath.Join(shared, v, "System.Runtime.dll"))
	}
	desktop := touch(t, filepath.Join(dotnet, "shared", "Microsoft.WindowsDesktop.App", "5.0.0", "PresentationCore.dll"))

	cfg := testConfig()
	cfg.DotnetRoot = dotnet

	tests := []struct {
		name string
		tfm  string
		pack string
		ref  string
		want string
	}{
		{"exact minor", ".NETCoreApp,Version=v3.1", "", "System.Runtime", filepath.Join(shared, "3.1.4", "System.Runtime.dll")},
		{"next higher", ".NETCoreApp,Version=v4.0", "", "System.Runtime", filepath.Join(shared, "5.0.0", "System.Runtime.dll")},
		{"prerelease", ".NETCoreApp,Version=v6.0", "", "System.Runtime", filepath.Join(shared, "6.0.0-preview.1", "System.Runtime.dll")},
		{"above all", ".NETCoreApp,Version=v8.0", "", "System.Runtime", filepath.Join(shared, "6.0.0-preview.1", "System.Runtime.dll")},
		{"desktop pack", ".NETCoreApp,Version=v5.0", "Microsoft.WindowsDesktop.App", "PresentationCore", desktop},
		{"desktop pack falls back to base", ".NETCoreApp,Version=v5.0", "Microsoft.WindowsDesktop.App", "System.Runtime", filepath.Join(shared, "5.0.0", "System.Runtime.dll")},
		{"not for netstandard", ".NETStandard,Version=v2.0", "", "System.Runtime", ""},
		{"not for legacy", ".NETFramework,Version=v4.7.2", "", "System.Runtime", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFinder(t, cfg, Options{TargetFrameworkID: tt.tfm, RuntimePack: tt.pack})
			got, err := f.FindAssemblyFile(context.Background(), ref(t, tt.ref))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestFindInFrameworkAndGAC(t *testing.T) {
	root := t.TempDir()
	fw := touch(t, filepath.Join(root, "Framework64", "v4.0.30319", "System.Xml.dll"))
	gac := touch(t, filepath.Join(root, "assembly", "GAC_MSIL", "System.Web", "v4.0_4.0.0.0__b03f5f7f11d50a3a", "System.Web.dll"))

	cfg := testConfig()
	cfg.FrameworkDirs = []string{filepath.Join(root, "Framework64", "v4.0.30319")}
	cfg.GACRoots = []string{filepath.Join(root, "assembly")}

	legacy := newFinder(t, cfg, Options{TargetFrameworkID: ".NETFramework,Version=v4.7.2"})
	got, err := legacy.FindAssemblyFile(context.Background(), ref(t, "System.Xml, Version=4.0.0.0"))
	require.NoError(t, err)
	require.Equal(t, fw, got)

	got, err = legacy.FindAssemblyFile(context.Background(), ref(t, "System.Web, Version=4.0.0.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a"))
	require.NoError(t, err)
	require.Equal(t, gac, got)

	// Unknown frameworks follow legacy rules.
	unknown := newFinder(t, cfg, Options{})
	got, err = unknown.FindAssemblyFile(context.Background(), ref(t, "System.Xml"))
	require.NoError(t, err)
	require.Equal(t, fw, got)

	core := newFinder(t, cfg, Options{TargetFrameworkID: ".NETCoreApp,Version=v3.1"})
	got, err = core.FindAssemblyFile(context.Background(), ref(t, "System.Xml, Version=4.0.0.0"))
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestFindInFrameworkForPlaceholderReferences(t *testing.T) {
	root := t.TempDir()
	fwDir := filepath.Join(root, "Framework64", "v4.0.30319")
	fw := touch(t, filepath.Join(fwDir, "System.Xml.dll"))
	touch(t, filepath.Join(root, "assembly", "GAC_MSIL", "System.Web", "v4.0_0.0.0.0__b03f5f7f11d50a3a", "System.Web.dll"))

	cfg := testConfig()
	cfg.FrameworkDirs = []string{fwDir}
	cfg.GACRoots = []string{filepath.Join(root, "assembly")}

	tests := []struct {
		name      string
		reference string
		want      string
	}{
		{"zero version", "System.Xml, Version=0.0.0.0", fw},
		{"all ones version", "System.Xml, Version=65535.65535.65535.65535", fw},
		{"retargetable", "System.Xml, Version=2.0.5.0, Retargetable=Yes", fw},
		{"pinned version", "System.Xml, Version=2.0.5.0", ""},
		{"no GAC outside legacy targets", "System.Web, Version=0.0.0.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFinder(t, cfg, Options{TargetFrameworkID: ".NETStandard,Version=v2.0"})
			got, err := f.FindAssemblyFile(context.Background(), ref(t, tt.reference))
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestExclude(t *testing.T) {
	root := t.TempDir()
	main := touch(t, filepath.Join(root, "bin", "App.dll"))
	touch(t, filepath.Join(root, "bin", "Generated.dll"))
	want := touch(t, filepath.Join(root, "lib", "Generated.dll"))

	cfg := testConfig()
	cfg.Exclude = []string{"**/bin/Generated.dll"}
	cfg.SearchPaths = []string{filepath.Join(root, "lib")}
	f := newFinder(t, cfg, Options{MainAssemblyPath: main})

	got, err := f.FindAssemblyFile(context.Background(), ref(t, "Generated"))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestNotFoundAndCancellation(t *testing.T) {
	f := newFinder(t, testConfig(), Options{MainAssemblyPath: filepath.Join(t.TempDir(), "App.dll")})

	got, err := f.FindAssemblyFile(context.Background(), ref(t, "Nowhere"))
	require.NoError(t, err)
	require.Empty(t, got)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.FindAssemblyFile(ctx, ref(t, "Nowhere"))
	require.ErrorIs(t, err, context.Canceled)
}

func TestLookupIsCached(t *testing.T) {
	dir := t.TempDir()
	main := touch(t, filepath.Join(dir, "App.dll"))
	lib := touch(t, filepath.Join(dir, "Lib.dll"))

	f := newFinder(t, testConfig(), Options{MainAssemblyPath: main})
	first, err := f.FindAssemblyFile(context.Background(), ref(t, "Lib"))
	require.NoError(t, err)
	require.Equal(t, lib, first)

	require.NoError(t, os.Remove(lib))
	second, err := f.FindAssemblyFile(context.Background(), ref(t, "Lib"))
	require.NoError(t, err)
	require.Equal(t, first, second)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.Extensions = []string{"dll"}
	_, err := New(cfg, Options{})
	require.Error(t, err)
}
