package metadata

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/albertocavalcante/go-asmref/version"
)

// Assembly flags (ECMA-335 II.23.1.2).
const (
	AssemblyFlagPublicKey      uint32 = 0x0001
	AssemblyFlagRetargetable   uint32 = 0x0100
	AssemblyFlagContentTypeMsk uint32 = 0x0E00
	AssemblyFlagWindowsRuntime uint32 = 0x0200
)

// AssemblyName identifies an assembly. The same shape describes an
// assembly definition and a reference to one.
type AssemblyName struct {
	Name    string
	Version version.Version
	// Culture is empty for culture-neutral assemblies.
	Culture string
	// PublicKeyToken is the 8-byte token, or nil for unsigned assemblies.
	PublicKeyToken []byte
	Flags          uint32
}

// IsWindowsRuntime reports whether the name carries the WindowsRuntime
// content type.
func (n AssemblyName) IsWindowsRuntime() bool {
	return n.Flags&AssemblyFlagContentTypeMsk == AssemblyFlagWindowsRuntime
}

// IsRetargetable reports whether the reference may bind to another
// publisher's assembly.
func (n AssemblyName) IsRetargetable() bool {
	return n.Flags&AssemblyFlagRetargetable != 0
}

// TokenString renders the public key token as lowercase hex or "null".
func (n AssemblyName) TokenString() string {
	if len(n.PublicKeyToken) == 0 {
		return "null"
	}
	return hex.EncodeToString(n.PublicKeyToken)
}

// FullName renders the canonical display name, e.g.
//
//	System.Runtime, Version=4.2.2.0, Culture=neutral, PublicKeyToken=b03f5f7f11d50a3a
func (n AssemblyName) FullName() string {
	culture := n.Culture
	if culture == "" {
		culture = "neutral"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s, Version=%s, Culture=%s, PublicKeyToken=%s", n.Name, n.Version, culture, n.TokenString())
	if n.IsRetargetable() {
		b.WriteString(", Retargetable=Yes")
	}
	if n.IsWindowsRuntime() {
		b.WriteString(", ContentType=WindowsRuntime")
	}
	return b.String()
}

func (n AssemblyName) String() string {
	return n.FullName()
}

// ParseAssemblyName parses a display name such as
// "Foo, Version=1.0.0.0, Culture=neutral, PublicKeyToken=null".
// Only the simple name is required; unknown keys are ignored.
func ParseAssemblyName(s string) (AssemblyName, error) {
	parts := strings.Split(s, ",")
	name := strings.TrimSpace(parts[0])
	if name == "" {
		return AssemblyName{}, fmt.Errorf("parse assembly name %q: empty simple name", s)
	}

	result := AssemblyName{Name: name}
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return AssemblyName{}, fmt.Errorf("parse assembly name %q: component %q has no value", s, strings.TrimSpace(part))
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		switch strings.ToLower(key) {
		case "version":
			v, err := version.Parse(value)
			if err != nil {
				return AssemblyName{}, fmt.Errorf("parse assembly name %q: %w", s, err)
			}
			result.Version = v
		case "culture":
			if !strings.EqualFold(value, "neutral") {
				result.Culture = value
			}
		case "publickeytoken":
			if strings.EqualFold(value, "null") || value == "" {
				continue
			}
			token, err := hex.DecodeString(value)
			if err != nil || len(token) != 8 {
				return AssemblyName{}, fmt.Errorf("parse assembly name %q: invalid public key token %q", s, value)
			}
			result.PublicKeyToken = token
		case "retargetable":
			if strings.EqualFold(value, "yes") {
				result.Flags |= AssemblyFlagRetargetable
			}
		case "contenttype":
			if strings.EqualFold(value, "windowsruntime") {
				result.Flags |= AssemblyFlagWindowsRuntime
			}
		}
	}
	return result, nil
}

// PublicKeyToken computes the 8-byte token of a full public key: the
// last eight bytes of its SHA-1 hash, reversed.
func PublicKeyToken(publicKey []byte) []byte {
	if len(publicKey) == 0 {
		return nil
	}
	sum := sha1.Sum(publicKey)
	token := make([]byte, 8)
	for i := 0; i < 8; i++ {
		token[i] = sum[len(sum)-1-i]
	}
	return token
}
