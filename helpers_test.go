package asmref

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/albertocavalcante/go-asmref/metadata"
	"github.com/albertocavalcante/go-asmref/metadata/metadatatest"
)

const netcore31 = ".NETCoreApp,Version=v3.1"

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func newTestSession(t *testing.T, opts ...Option) *Session {
	t.Helper()
	s, err := NewSession(opts...)
	require.NoError(t, err)
	return s
}

func mustModule(t *testing.T, l *Loader) *Module {
	t.Helper()
	m, err := l.Module(testContext(t))
	require.NoError(t, err)
	require.NotNil(t, m)
	return m
}

func mustReference(t *testing.T, s string) Reference {
	t.Helper()
	ref, err := ParseReference(s)
	require.NoError(t, err)
	return ref
}

// writeAssembly writes a netcoreapp3.1 assembly named name to dir/file.
func writeAssembly(t *testing.T, dir, file, name, ver string) string {
	t.Helper()
	return metadatatest.NewAssembly(name, ver).TargetFramework(netcore31).WriteFile(t, dir, file)
}

// readCounter wraps metadata.Open, counting reads per path and optionally
// holding every read until release is called.
type readCounter struct {
	mu    sync.Mutex
	reads map[string]int
	gate  chan struct{}
	once  sync.Once
}

func newReadCounter(gated bool) *readCounter {
	rc := &readCounter{reads: make(map[string]int)}
	if gated {
		rc.gate = make(chan struct{})
	}
	return rc
}

func (rc *readCounter) read(path string) (*metadata.File, error) {
	rc.mu.Lock()
	rc.reads[path]++
	rc.mu.Unlock()
	if rc.gate != nil {
		<-rc.gate
	}
	return metadata.Open(path)
}

func (rc *readCounter) release() {
	rc.once.Do(func() {
		if rc.gate != nil {
			close(rc.gate)
		}
	})
}

func (rc *readCounter) count(path string) int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.reads[path]
}

func (rc *readCounter) total() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	n := 0
	for _, c := range rc.reads {
		n += c
	}
	return n
}

// logBuffer is a concurrency-safe slog sink.
type logBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *logBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *logBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *logBuffer) logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(b, &slog.HandlerOptions{Level: slog.LevelDebug}))
}
