// Package framework derives a module's target framework from its
// metadata, falling back to well-known install and package-cache layouts
// when the metadata carries no declaration.
//
// Target framework ids have the form
//
//	<Identifier>,Version=v<version>[,<key>=<value>...]
//
// for example ".NETCoreApp,Version=v3.1" or
// ".NETFramework,Version=v4.7.2,Profile=Client".
package framework

import (
	"strings"

	"github.com/albertocavalcante/go-asmref/version"
)

// Identifier is a runtime family.
type Identifier int

const (
	// Unknown means no framework could be detected. It has the same
	// resolution semantics as NETFramework.
	Unknown Identifier = iota
	NETFramework
	NETCoreApp
	NETStandard
	Silverlight
)

func (i Identifier) String() string {
	switch i {
	case NETFramework:
		return ".NETFramework"
	case NETCoreApp:
		return ".NETCoreApp"
	case NETStandard:
		return ".NETStandard"
	case Silverlight:
		return "Silverlight"
	default:
		return ""
	}
}

// TargetFramework is a parsed target framework id.
type TargetFramework struct {
	Identifier Identifier
	Version    version.Version
}

// IsLegacy reports whether the framework follows desktop .NET binding
// rules (GAC and framework directories rather than runtime packs).
func (tf TargetFramework) IsLegacy() bool {
	switch tf.Identifier {
	case NETCoreApp, NETStandard:
		return false
	default:
		return true
	}
}

// String renders the canonical id, or "" for Unknown. Trailing zero
// version components beyond major.minor are omitted.
func (tf TargetFramework) String() string {
	if tf.Identifier == Unknown {
		return ""
	}
	return tf.Identifier.String() + ",Version=v" + shortVersion(tf.Version)
}

func shortVersion(v version.Version) string {
	parts := strings.Split(v.String(), ".")
	for len(parts) > 2 && parts[len(parts)-1] == "0" {
		parts = parts[:len(parts)-1]
	}
	return strings.Join(parts, ".")
}

// Parse parses a target framework id. An empty id yields Unknown; any
// other unrecognised identifier yields NETFramework. A missing or
// malformed version yields 0.0.0.0.
func Parse(id string) TargetFramework {
	tokens := strings.Split(id, ",")

	var tf TargetFramework
	switch strings.ToUpper(strings.TrimSpace(tokens[0])) {
	case "":
		tf.Identifier = Unknown
	case ".NETCOREAPP":
		tf.Identifier = NETCoreApp
	case ".NETSTANDARD":
		tf.Identifier = NETStandard
	case "SILVERLIGHT":
		tf.Identifier = Silverlight
	default:
		tf.Identifier = NETFramework
	}

	for _, token := range tokens[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(token), "=")
		if !ok || strings.Contains(value, "=") {
			continue
		}
		if !strings.EqualFold(strings.TrimSpace(key), "version") {
			continue
		}
		v := strings.TrimLeft(value, "v \t")
		if (tf.Identifier == NETCoreApp || tf.Identifier == NETStandard) && len(v) == 3 {
			v += ".0"
		}
		tf.Version = version.ParseOrZero(v)
	}
	return tf
}
