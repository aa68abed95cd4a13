package framework

import (
	"regexp"
	"strings"

	"github.com/albertocavalcante/go-asmref/metadata"
)

// Attribute type names inspected by the detector.
const (
	TargetFrameworkAttribute   = "System.Runtime.Versioning.TargetFrameworkAttribute"
	ReferenceAssemblyAttribute = "System.Runtime.CompilerServices.ReferenceAssemblyAttribute"
)

// Runtime pack names returned by DetectRuntimePack.
const (
	RuntimePackNETCore        = "Microsoft.NETCore.App"
	RuntimePackAspNetCore     = "Microsoft.AspNetCore.App"
	RuntimePackWindowsDesktop = "Microsoft.WindowsDesktop.App"
)

var (
	// ...\Reference Assemblies\Microsoft\Framework\.NETFramework\v4.6.1\mscorlib.dll
	netFrameworkRefPath = regexp.MustCompile(`(?i)Reference Assemblies[/\\]Microsoft[/\\]Framework[/\\]\.NETFramework[/\\]v([^/\\]+)[/\\]`)

	// ...\sdk\NuGetFallbackFolder\microsoft.netcore.app\2.1.0\ref\netcoreapp2.1\System.Console.dll
	// ...\packs\Microsoft.NETCore.App.Ref\3.0.0\ref\netcoreapp3.0\System.Runtime.Extensions.dll
	// ...\NuGetFallbackFolder\netstandard.library\2.0.3\build\netstandard2.0\ref\netstandard.dll
	packRefPath = regexp.MustCompile(`(?i)(?:NuGetFallbackFolder|packs|\.nuget[/\\]packages)[/\\]([^/\\]+)[/\\]([^/\\]+)(?:[/\\].*)?[/\\]ref[/\\]`)

	fallbackRefPath = regexp.MustCompile(`(?i)NuGetFallbackFolder[/\\][^/\\]+[/\\][^/\\]+[/\\]ref[/\\]`)
)

// DetectID returns the target framework id declared by a
// TargetFrameworkAttribute in attrs. Without one, it matches path against
// known reference-assembly layouts. It returns "" when neither applies.
func DetectID(attrs []metadata.CustomAttribute, path string) string {
	for _, a := range attrs {
		if !a.Is(TargetFrameworkAttribute) {
			continue
		}
		if s, ok := a.StringArg(0); ok {
			return s
		}
	}
	if path == "" {
		return ""
	}

	if m := netFrameworkRefPath.FindStringSubmatch(path); m != nil {
		return ".NETFramework,Version=v" + m[1]
	}
	if m := packRefPath.FindStringSubmatch(path); m != nil {
		folder := strings.ToLower(m[1])
		switch {
		case strings.Contains(folder, "netcore"):
			return ".NETCoreApp,Version=v" + m[2]
		case strings.Contains(folder, "netstandard"):
			return ".NETStandard,Version=v" + m[2]
		}
	}
	return ""
}

// Detect parses the id found by DetectID.
func Detect(attrs []metadata.CustomAttribute, path string) TargetFramework {
	return Parse(DetectID(attrs, path))
}

// IsReferenceAssembly reports whether a module is a compile-time stub
// without method bodies: either it carries ReferenceAssemblyAttribute or
// it lives under a NuGetFallbackFolder package's ref directory.
func IsReferenceAssembly(attrs []metadata.CustomAttribute, path string) bool {
	for _, a := range attrs {
		if a.Is(ReferenceAssemblyAttribute) {
			return true
		}
	}
	return fallbackRefPath.MatchString(path)
}

// DetectRuntimePack names the shared framework a module runs on, judged
// by its assembly references.
func DetectRuntimePack(refs []metadata.AssemblyName) string {
	for _, r := range refs {
		switch r.Name {
		case "WindowsBase", "PresentationCore", "PresentationFramework":
			return RuntimePackWindowsDesktop
		}
		if r.Name == "Microsoft.AspNetCore" || strings.HasPrefix(r.Name, "Microsoft.AspNetCore.") {
			return RuntimePackAspNetCore
		}
	}
	return RuntimePackNETCore
}
