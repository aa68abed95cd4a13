// Package finder locates assembly files on disk for an assembly reference.
//
// A Finder is bound to the assembly whose references it resolves (the
// main assembly) and probes, in order:
//
//  1. files next to the main assembly, including sibling target
//     directories when the main assembly lives inside a NuGet package;
//  2. configured search paths;
//  3. package assets declared by <main>.deps.json under the NuGet
//     package root;
//  4. the shared runtime pack closest to the target framework version
//     (.NET Core targets);
//  5. framework directories and global assembly caches (legacy targets).
//
// Files matching an exclude pattern are never returned.
package finder

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/albertocavalcante/go-asmref/framework"
	"github.com/albertocavalcante/go-asmref/metadata"
	"github.com/albertocavalcante/go-asmref/version"
)

// Options bind a Finder to the assembly whose references it resolves.
type Options struct {
	// MainAssemblyPath is the referencing assembly. Empty disables the
	// sibling and deps.json steps.
	MainAssemblyPath string
	// TargetFrameworkID is the referencing assembly's framework id.
	TargetFrameworkID string
	// RuntimePack names the shared framework, e.g. Microsoft.NETCore.App.
	RuntimePack string
	// Logger receives debug records for every probe. Nil discards.
	Logger *slog.Logger
}

// Finder implements the file search for one main assembly. It is safe
// for concurrent use.
type Finder struct {
	cfg      Config
	main     string
	tf       framework.TargetFramework
	pack     string
	excludes []glob.Glob
	logger   *slog.Logger

	deps  *depsIndex
	found *lru.Cache[string, string]
}

const lookupCacheSize = 512

// New creates a Finder. The config is validated.
func New(cfg Config, opts Options) (*Finder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	excludes, err := compileExcludes(cfg.Exclude)
	if err != nil {
		return nil, err
	}
	found, err := lru.New[string, string](lookupCacheSize)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	pack := opts.RuntimePack
	if pack == "" {
		pack = framework.RuntimePackNETCore
	}

	f := &Finder{
		cfg:      cfg,
		main:     opts.MainAssemblyPath,
		tf:       framework.Parse(opts.TargetFrameworkID),
		pack:     pack,
		excludes: excludes,
		logger:   logger,
		found:    found,
	}
	if f.main != "" {
		f.deps = newDepsIndex(depsPath(f.main), logger)
	}
	return f, nil
}

// TargetFramework returns the parsed target framework of the main assembly.
func (f *Finder) TargetFramework() framework.TargetFramework {
	return f.tf
}

// FindAssemblyFile returns the path of a file defining ref, or "" when
// none is found. Only context cancellation produces an error.
func (f *Finder) FindAssemblyFile(ctx context.Context, ref metadata.AssemblyName) (string, error) {
	key := ref.FullName()
	if path, ok := f.found.Get(key); ok {
		return path, nil
	}

	steps := []struct {
		name  string
		probe func(metadata.AssemblyName) string
	}{
		{"siblings", f.findSibling},
		{"search-paths", f.findInSearchPaths},
		{"deps.json", f.findInDeps},
		{"runtime-pack", f.findInRuntimePack},
		{"framework", f.findInFramework},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if path := step.probe(ref); path != "" {
			f.logger.Debug("assembly file found", "reference", key, "step", step.name, "path", path)
			f.found.Add(key, path)
			return path, nil
		}
	}
	f.logger.Debug("assembly file not found", "reference", key, "framework", f.tf.String())
	return "", nil
}

// candidate reports whether path is an existing, non-excluded file.
func (f *Finder) candidate(path string) bool {
	fi, err := os.Stat(path)
	if err != nil || !fi.Mode().IsRegular() {
		return false
	}
	slashed := filepath.ToSlash(path)
	for _, g := range f.excludes {
		if g.Match(slashed) {
			f.logger.Debug("candidate excluded", "path", path)
			return false
		}
	}
	return true
}

// probeDir tries <dir>/<name><ext> for every configured extension.
func (f *Finder) probeDir(dir, name string) string {
	if dir == "" {
		return ""
	}
	for _, ext := range f.extensionsFor(name) {
		path := filepath.Join(dir, name+ext)
		if f.candidate(path) {
			return path
		}
	}
	return ""
}

func (f *Finder) extensionsFor(name string) []string {
	// A reference that already carries an extension is probed verbatim
	// first.
	lower := strings.ToLower(name)
	for _, ext := range f.cfg.Extensions {
		if strings.HasSuffix(lower, strings.ToLower(ext)) {
			return append([]string{""}, f.cfg.Extensions...)
		}
	}
	return f.cfg.Extensions
}

func (f *Finder) findSibling(ref metadata.AssemblyName) string {
	if f.main == "" {
		return ""
	}
	dir := filepath.Dir(f.main)
	if path := f.probeDir(dir, ref.Name); path != "" {
		return path
	}
	for _, d := range packageTFMDirs(dir) {
		if path := f.probeDir(d, ref.Name); path != "" {
			return path
		}
	}
	return ""
}

// packageTFMDirs returns <pkg>/lib/<tfm> and <pkg>/ref/<tfm> for a
// directory inside a package's lib or ref tree, excluding dir itself.
func packageTFMDirs(dir string) []string {
	tfm := filepath.Base(dir)
	parent := filepath.Dir(dir)
	switch strings.ToLower(filepath.Base(parent)) {
	case "lib", "ref":
	default:
		return nil
	}
	root := filepath.Dir(parent)
	var out []string
	for _, kind := range []string{"lib", "ref"} {
		d := filepath.Join(root, kind, tfm)
		if d != dir {
			out = append(out, d)
		}
	}
	return out
}

func (f *Finder) findInSearchPaths(ref metadata.AssemblyName) string {
	for _, dir := range f.cfg.SearchPaths {
		if path := f.probeDir(dir, ref.Name); path != "" {
			return path
		}
	}
	return ""
}

func (f *Finder) findInDeps(ref metadata.AssemblyName) string {
	if f.deps == nil || f.cfg.NuGetPackages == "" {
		return ""
	}
	for _, rel := range f.deps.assets(ref.Name) {
		path := filepath.Join(f.cfg.NuGetPackages, filepath.FromSlash(rel))
		if f.candidate(path) {
			return path
		}
	}
	return ""
}

func (f *Finder) findInRuntimePack(ref metadata.AssemblyName) string {
	if f.tf.Identifier != framework.NETCoreApp || f.cfg.DotnetRoot == "" {
		return ""
	}
	packDir := filepath.Join(f.cfg.DotnetRoot, "shared", f.pack)
	dir := closestVersionDir(packDir, f.tf.Version)
	if dir == "" {
		return ""
	}
	if path := f.probeDir(dir, ref.Name); path != "" {
		return path
	}
	// Everything in a desktop or ASP.NET pack builds on the base runtime.
	if f.pack != framework.RuntimePackNETCore {
		base := closestVersionDir(filepath.Join(f.cfg.DotnetRoot, "shared", framework.RuntimePackNETCore), f.tf.Version)
		return f.probeDir(base, ref.Name)
	}
	return ""
}

// closestVersionDir picks the subdirectory of dir whose version is the
// smallest at least want, else the highest. Pre-release suffixes are
// ignored for ordering.
func closestVersionDir(dir string, want version.Version) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var (
		names    []string
		versions []version.Version
	)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		core, _, _ := strings.Cut(e.Name(), "-")
		v, err := version.Parse(core)
		if err != nil {
			continue
		}
		names = append(names, e.Name())
		versions = append(versions, v)
	}
	i := version.Closest(versions, want)
	if i < 0 {
		return ""
	}
	return filepath.Join(dir, names[i])
}

// findInFramework probes the framework directories, then the GAC, for
// legacy targets. Other targets only probe the framework directories, and
// only for retargetable references or ones pinned to a placeholder
// version.
func (f *Finder) findInFramework(ref metadata.AssemblyName) string {
	legacy := f.tf.IsLegacy()
	if !legacy && !ref.IsRetargetable() && !ref.Version.IsRetargetableSentinel() {
		return ""
	}
	for _, dir := range f.cfg.FrameworkDirs {
		if path := f.probeDir(dir, ref.Name); path != "" {
			return path
		}
	}
	if !legacy {
		return ""
	}
	return f.findInGAC(ref)
}

var gacSubdirs = []string{"GAC_MSIL", "GAC_32", "GAC_64", "GAC"}

func (f *Finder) findInGAC(ref metadata.AssemblyName) string {
	if len(ref.PublicKeyToken) == 0 {
		return ""
	}
	token := ref.TokenString()
	culture := ref.Culture
	ver := ref.Version.String()
	for _, root := range f.cfg.GACRoots {
		for _, sub := range gacSubdirs {
			base := filepath.Join(root, sub, ref.Name)
			for _, dirName := range []string{
				"v4.0_" + ver + "_" + culture + "_" + token,
				ver + "_" + culture + "_" + token,
			} {
				path := filepath.Join(base, dirName, ref.Name+".dll")
				if f.candidate(path) {
					return path
				}
			}
		}
	}
	return ""
}
