package asmref

import (
	"errors"
	"fmt"
)

// Sentinel errors for loader and cache failures.
var (
	// ErrLoadFailed matches every *LoadError.
	ErrLoadFailed = errors.New("assembly load failed")

	// ErrNotRegistered indicates a module that was never registered in the
	// ModuleCache it was looked up in.
	ErrNotRegistered = errors.New("module not registered")

	// ErrAlreadyRegistered indicates a second registration of one module.
	ErrAlreadyRegistered = errors.New("module already registered")
)

// LoadError is the terminal failure of a Loader. It is cached and returned
// to every caller of Loader.Module.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load assembly %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrLoadFailed) hold for any LoadError.
func (e *LoadError) Is(target error) bool { return target == ErrLoadFailed }
