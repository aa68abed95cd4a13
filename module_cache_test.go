package asmref

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestModuleCacheRegisterLookup(t *testing.T) {
	path := writeAssembly(t, t.TempDir(), "Contoso.Core.dll", "Contoso.Core", "1.0.0.0")

	s := newTestSession(t)
	l := s.Open(path)
	m := mustModule(t, l)

	got, err := s.Cache().Lookup(m)
	require.NoError(t, err)
	require.Same(t, l, got)

	err = s.Cache().Register(m, l)
	require.ErrorIs(t, err, ErrAlreadyRegistered)

	// A module from another session was never registered here.
	other := newTestSession(t)
	foreign := mustModule(t, other.Open(path))
	_, err = s.Cache().Lookup(foreign)
	require.ErrorIs(t, err, ErrNotRegistered)

	_, err = s.Cache().Lookup(nil)
	require.ErrorIs(t, err, ErrNotRegistered)
}

func TestModuleCacheEntriesAreWeak(t *testing.T) {
	c := NewModuleCache()

	func() {
		l := &Loader{path: "/tmp/Contoso.Core.dll"}
		m := &Module{loader: l, shortName: "Contoso.Core"}
		require.NoError(t, c.Register(m, l))
		require.Equal(t, 1, c.Len())
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		return c.Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}
