package finder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asmref.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	t.Setenv("DOTNET_ROOT", "/env/dotnet")
	t.Setenv("NUGET_PACKAGES", "/env/packages")
	t.Setenv("WINDIR", "")

	path := writeConfig(t, `
search_paths   = ["/src/app/bin", "/src/lib"]
nuget_packages = "/cache/packages"
framework_dirs = ["/fx/v4.0.30319"]
gac_roots      = ["/fx/assembly"]
exclude        = ["**/obj/**"]
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, []string{"/src/app/bin", "/src/lib"}, cfg.SearchPaths)
	require.Equal(t, "/env/dotnet", cfg.DotnetRoot, "unset keys keep the environment default")
	require.Equal(t, "/cache/packages", cfg.NuGetPackages)
	require.Equal(t, []string{"/fx/v4.0.30319"}, cfg.FrameworkDirs)
	require.Equal(t, []string{"/fx/assembly"}, cfg.GACRoots)
	require.Equal(t, []string{"**/obj/**"}, cfg.Exclude)
	require.Equal(t, []string{".dll", ".exe", ".winmd"}, cfg.Extensions)
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"syntax", `search_paths = [`},
		{"unknown key", `serch_paths = ["/x"]`},
		{"empty search path", `search_paths = [""]`},
		{"extension without dot", `extensions = ["dll"]`},
		{"no extensions", `extensions = []`},
		{"empty exclude pattern", `exclude = [""]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}

func TestDefaultConfigFromEnvironment(t *testing.T) {
	home := t.TempDir()
	t.Setenv("DOTNET_ROOT", "/opt/dotnet")
	t.Setenv("NUGET_PACKAGES", "")
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("WINDIR", `/win`)

	cfg := DefaultConfig()
	require.Equal(t, "/opt/dotnet", cfg.DotnetRoot)
	require.Equal(t, filepath.Join(home, ".nuget", "packages"), cfg.NuGetPackages)
	require.Contains(t, cfg.FrameworkDirs, filepath.Join("/win", "Microsoft.NET", "Framework64", "v4.0.30319"))
	require.Contains(t, cfg.GACRoots, filepath.Join("/win", "Microsoft.NET", "assembly"))
	require.NoError(t, cfg.Validate())
}
