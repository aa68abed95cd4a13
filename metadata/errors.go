package metadata

import (
	"errors"
	"fmt"
)

// ErrNotManaged indicates a valid PE file that carries no CLI header.
var ErrNotManaged = errors.New("not a managed assembly: no CLI header")

// FormatError describes malformed metadata.
type FormatError struct {
	// Section names the structure being decoded, e.g. "#~" or "TypeDef".
	Section string
	// Offset is the byte offset inside that structure, or -1 if unknown.
	Offset int
	Msg    string
}

func (e *FormatError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("bad metadata in %s at offset %d: %s", e.Section, e.Offset, e.Msg)
	}
	return fmt.Sprintf("bad metadata in %s: %s", e.Section, e.Msg)
}

func formatErr(section string, offset int, format string, args ...any) error {
	return &FormatError{Section: section, Offset: offset, Msg: fmt.Sprintf(format, args...)}
}
