package serialbus

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"

	"BusScope/pkg/clock"
)

// fakePort feeds lines written to gw back to the reader and records writes.
type fakePort struct {
	r  *io.PipeReader
	gw *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
}

func newFakePort() *fakePort {
	r, w := io.Pipe()
	return &fakePort{r: r, gw: w}
}

func (p *fakePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *fakePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.Write(b)
}

func (p *fakePort) Close() error { return p.r.Close() }

func (p *fakePort) Written() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.written.String()
}

func opener(ports ...*fakePort) (Opener, *int) {
	var n int
	return func(path string, mode *serial.Mode) (io.ReadWriteCloser, error) {
		if n >= len(ports) {
			return nil, errors.New("no device")
		}
		p := ports[n]
		n++
		return p, nil
	}, &n
}

func TestStreamReadsLines(t *testing.T) {
	t.Parallel()

	port := newFakePort()
	open, _ := opener(port)
	mock := clock.NewMock(time.Unix(500, 0))
	s, err := New(Config{Port: "fake", Start: "START"}, WithOpener(open), WithClock(mock))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	require.NoError(t, s.Subscribe(ctx))
	assert.Equal(t, "START\n", port.Written())
	assert.True(t, s.IsConnected())

	entries, _ := s.Read(ctx)
	go func() {
		_, _ = io.WriteString(port.gw, "# hello\n1.5 0x100 Engine RPM=1000\nnot a frame\nSpeed=12\n")
	}()

	first := <-entries
	require.NotNil(t, first)
	assert.Equal(t, 1.5, first.TS)
	assert.Equal(t, "Engine", first.Message)

	second := <-entries
	require.NotNil(t, second)
	assert.Equal(t, 500.0, second.TS)
	assert.Equal(t, "12", second.Decoded["Speed"])

	require.NoError(t, s.Close())
	assert.False(t, s.IsConnected())
	require.Eventually(t, func() bool {
		_, open := <-entries
		return !open
	}, time.Second, 5*time.Millisecond)
}

func TestStreamReportsErrorAndResumesAfterReconnect(t *testing.T) {
	t.Parallel()

	first, second := newFakePort(), newFakePort()
	open, opened := opener(first, second)
	s, err := New(Config{Port: "fake", Start: ""}, WithOpener(open))
	require.NoError(t, err)
	s.cfg.ReconnectDelay = time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Connect(ctx))
	entries, errs := s.Read(ctx)

	require.NoError(t, first.gw.CloseWithError(errors.New("unplugged")))
	select {
	case err := <-errs:
		assert.ErrorContains(t, err, "unplugged")
	case <-ctx.Done():
		t.Fatal("no read error reported")
	}
	assert.False(t, s.IsConnected())

	require.NoError(t, s.Reconnect(ctx))
	assert.Equal(t, 2, *opened)
	assert.Empty(t, second.Written())

	go func() { _, _ = io.WriteString(second.gw, "2 0x200 Body Door=1\n") }()
	e := <-entries
	require.NotNil(t, e)
	assert.Equal(t, "0x200", e.ID)
	require.NoError(t, s.Close())
}

func TestConnectFailureAndClosedStream(t *testing.T) {
	t.Parallel()

	open, _ := opener()
	s, err := New(Config{Port: "missing"}, WithOpener(open))
	require.NoError(t, err)
	assert.ErrorContains(t, s.Connect(context.Background()), "no device")
	assert.Error(t, s.Subscribe(context.Background()))

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}
