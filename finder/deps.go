package finder

import (
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// depsPath returns the deps.json file that accompanies an assembly.
func depsPath(mainAssembly string) string {
	ext := filepath.Ext(mainAssembly)
	return strings.TrimSuffix(mainAssembly, ext) + ".deps.json"
}

// depsFile is the subset of the .NET dependency manifest the finder reads.
type depsFile struct {
	Targets   map[string]map[string]depsTarget `json:"targets"`
	Libraries map[string]depsLibrary           `json:"libraries"`
}

type depsTarget struct {
	Runtime map[string]json.RawMessage `json:"runtime"`
	Compile map[string]json.RawMessage `json:"compile"`
}

type depsLibrary struct {
	Type string `json:"type"`
	Path string `json:"path"`
}

// depsIndex maps lowercase assembly names to package-relative asset paths.
// The manifest is read on first use.
type depsIndex struct {
	file   string
	logger *slog.Logger

	once   sync.Once
	byName map[string][]string
}

func newDepsIndex(file string, logger *slog.Logger) *depsIndex {
	return &depsIndex{file: file, logger: logger}
}

func (d *depsIndex) assets(name string) []string {
	d.once.Do(d.load)
	return d.byName[strings.ToLower(name)]
}

func (d *depsIndex) load() {
	data, err := os.ReadFile(d.file)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("read deps.json", "path", d.file, "error", err)
		}
		return
	}
	var deps depsFile
	if err := json.Unmarshal(data, &deps); err != nil {
		d.logger.Warn("parse deps.json", "path", d.file, "error", err)
		return
	}
	d.byName = indexDeps(&deps)
	d.logger.Debug("deps.json loaded", "path", d.file, "assemblies", len(d.byName))
}

// indexDeps lists, per assembly name, the runtime assets of every package
// library followed by its compile assets. Package paths default to the
// lowercase "<id>/<version>" layout of the NuGet global packages folder.
func indexDeps(deps *depsFile) map[string][]string {
	index := make(map[string][]string)

	targetNames := make([]string, 0, len(deps.Targets))
	for name := range deps.Targets {
		targetNames = append(targetNames, name)
	}
	sort.Strings(targetNames)

	seen := make(map[string]bool)
	add := func(pkgPath, asset string) {
		if !strings.EqualFold(path.Ext(asset), ".dll") && !strings.EqualFold(path.Ext(asset), ".exe") {
			return
		}
		full := path.Join(pkgPath, asset)
		if seen[full] {
			return
		}
		seen[full] = true
		name := strings.ToLower(strings.TrimSuffix(path.Base(asset), path.Ext(asset)))
		index[name] = append(index[name], full)
	}

	for _, tn := range targetNames {
		libs := deps.Targets[tn]
		libNames := make([]string, 0, len(libs))
		for ln := range libs {
			libNames = append(libNames, ln)
		}
		sort.Strings(libNames)

		for _, ln := range libNames {
			lib, ok := deps.Libraries[ln]
			if !ok || lib.Type != "package" {
				continue
			}
			pkgPath := lib.Path
			if pkgPath == "" {
				pkgPath = strings.ToLower(ln)
			}
			target := libs[ln]
			for _, asset := range sortedKeys(target.Runtime) {
				add(pkgPath, asset)
			}
			for _, asset := range sortedKeys(target.Compile) {
				add(pkgPath, asset)
			}
		}
	}
	return index
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
