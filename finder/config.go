package finder

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"github.com/gobwas/glob"
)

// Config controls where the finder looks for assembly files.
//
// A config file is TOML:
//
//	search_paths   = ["/src/app/bin/Debug/net6.0"]
//	dotnet_root    = "/usr/share/dotnet"
//	nuget_packages = "/home/dev/.nuget/packages"
//	exclude        = ["**/obj/**"]
type Config struct {
	// SearchPaths are probed in order after the main assembly's siblings.
	SearchPaths []string `toml:"search_paths" validate:"dive,required"`
	// DotnetRoot holds shared/<runtime pack>/<version>/ directories.
	DotnetRoot string `toml:"dotnet_root"`
	// NuGetPackages is the package root that deps.json paths are relative to.
	NuGetPackages string `toml:"nuget_packages"`
	// FrameworkDirs are probed for legacy (.NET Framework) targets.
	FrameworkDirs []string `toml:"framework_dirs" validate:"dive,required"`
	// GACRoots are global assembly cache roots, e.g.
	// C:\Windows\Microsoft.NET\assembly.
	GACRoots []string `toml:"gac_roots" validate:"dive,required"`
	// Exclude lists glob patterns (forward slashes) of files never returned.
	Exclude []string `toml:"exclude" validate:"dive,required"`
	// Extensions are the file extensions tried for a simple name.
	Extensions []string `toml:"extensions" validate:"min=1,dive,startswith=."`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// DefaultConfig returns the configuration derived from the environment:
// DOTNET_ROOT, NUGET_PACKAGES (or ~/.nuget/packages) and, on Windows,
// the framework directories and GAC under WINDIR.
func DefaultConfig() Config {
	cfg := Config{
		DotnetRoot:    os.Getenv("DOTNET_ROOT"),
		NuGetPackages: os.Getenv("NUGET_PACKAGES"),
		Extensions:    []string{".dll", ".exe", ".winmd"},
	}
	if cfg.DotnetRoot == "" {
		cfg.DotnetRoot = firstDir(defaultDotnetRoots())
	}
	if cfg.NuGetPackages == "" {
		if home, err := os.UserHomeDir(); err == nil {
			cfg.NuGetPackages = filepath.Join(home, ".nuget", "packages")
		}
	}
	if windir := os.Getenv("WINDIR"); windir != "" {
		cfg.FrameworkDirs = []string{
			filepath.Join(windir, "Microsoft.NET", "Framework64", "v4.0.30319"),
			filepath.Join(windir, "Microsoft.NET", "Framework", "v4.0.30319"),
		}
		cfg.GACRoots = []string{
			filepath.Join(windir, "Microsoft.NET", "assembly"),
			filepath.Join(windir, "assembly"),
		}
	}
	return cfg
}

func defaultDotnetRoots() []string {
	switch runtime.GOOS {
	case "windows":
		return []string{`C:\Program Files\dotnet`}
	case "darwin":
		return []string{"/usr/local/share/dotnet", "/opt/homebrew/share/dotnet"}
	default:
		return []string{"/usr/share/dotnet", "/usr/lib/dotnet", "/usr/local/share/dotnet"}
	}
}

func firstDir(candidates []string) string {
	for _, c := range candidates {
		if fi, err := os.Stat(c); err == nil && fi.IsDir() {
			return c
		}
	}
	return ""
}

// LoadConfig reads a TOML config file on top of DefaultConfig. Unknown
// keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("load finder config %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		sort.Strings(keys)
		return Config{}, fmt.Errorf("load finder config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("load finder config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks field constraints and that every exclude pattern
// compiles.
func (c Config) Validate() error {
	var errs []error
	if err := validate.Struct(c); err != nil {
		errs = append(errs, err)
	}
	if _, err := compileExcludes(c.Exclude); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func compileExcludes(patterns []string) ([]glob.Glob, error) {
	globs := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			return nil, fmt.Errorf("exclude pattern %q: %w", p, err)
		}
		globs = append(globs, g)
	}
	return globs, nil
}
