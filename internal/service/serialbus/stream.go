// Package serialbus reads decoded CAN signals from a serial gateway.
package serialbus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"

	"BusScope/internal/domain/models"
	drepo "BusScope/internal/domain/repository"
	"BusScope/pkg/clock"
	"BusScope/pkg/logger"
)

// Opener opens the port at path. Tests substitute an in-memory pipe.
type Opener func(path string, mode *serial.Mode) (io.ReadWriteCloser, error)

// OpenPort opens a real serial port.
func OpenPort(path string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	return serial.Open(path, mode)
}

var errClosed = errors.New("serialbus: closed")

// Stream implements TraceStream over a serial line protocol.
type Stream struct {
	cfg   Config
	open  Opener
	clock clock.Clock
	log   *logger.Logger

	mu     sync.Mutex
	port   io.ReadWriteCloser
	closed bool
	ready  chan struct{}
}

// Option configures a Stream.
type Option func(*Stream)

func WithOpener(o Opener) Option { return func(s *Stream) { s.open = o } }

func WithClock(c clock.Clock) Option { return func(s *Stream) { s.clock = c } }

func WithLogger(l *logger.Logger) Option { return func(s *Stream) { s.log = l } }

// New validates cfg and returns an unconnected stream.
func New(cfg Config, opts ...Option) (*Stream, error) {
	cfg, err := cfg.Normalize()
	if err != nil {
		return nil, err
	}
	s := &Stream{
		cfg:   cfg,
		open:  OpenPort,
		clock: clock.Real{},
		log:   logger.NewNop(),
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.Component("serialbus")
	return s, nil
}

// Connect opens the port.
func (s *Stream) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	mode, err := s.cfg.Mode()
	if err != nil {
		return err
	}
	port, err := s.open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("serialbus open %s: %w", s.cfg.Port, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		_ = port.Close()
		return errClosed
	}
	s.port = port
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	s.log.Info("port opened", logger.String("port", s.cfg.Port), logger.Int("baud", s.cfg.BaudRate))
	return nil
}

// Subscribe sends the start command, if configured.
func (s *Stream) Subscribe(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port == nil {
		return fmt.Errorf("serialbus: not connected")
	}
	if s.cfg.Start == "" {
		return nil
	}
	if _, err := io.WriteString(s.port, s.cfg.Start+"\n"); err != nil {
		return fmt.Errorf("serialbus start: %w", err)
	}
	return nil
}

// Read scans lines from the port until ctx ends or the stream closes. After a
// read error the loop waits for Reconnect.
func (s *Stream) Read(ctx context.Context) (<-chan *models.TraceEntry, <-chan error) {
	entries := make(chan *models.TraceEntry, s.cfg.Buffer)
	errs := make(chan error, 1)

	go func() {
		defer close(entries)
		defer close(errs)
		for {
			port, ok := s.waitPort(ctx)
			if !ok {
				return
			}
			err := s.scan(ctx, port, entries)
			if s.isClosed() || ctx.Err() != nil {
				return
			}
			if err == nil {
				err = io.ErrUnexpectedEOF
			}
			s.markDown(port)
			select {
			case errs <- fmt.Errorf("serialbus read: %w", err):
			default:
			}
		}
	}()
	return entries, errs
}

func (s *Stream) scan(ctx context.Context, port io.Reader, out chan<- *models.TraceEntry) error {
	sc := bufio.NewScanner(port)
	sc.Buffer(make([]byte, 0, 4096), 64*1024)
	for sc.Scan() {
		e, err := ParseLine(sc.Bytes(), clock.Seconds(s.clock.Now()))
		if err != nil {
			s.log.Debug("unparsable line ignored", logger.Error(err))
			continue
		}
		if e == nil {
			continue
		}
		select {
		case out <- e:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// reader lagging; drop
		}
	}
	return sc.Err()
}

func (s *Stream) waitPort(ctx context.Context) (io.ReadWriteCloser, bool) {
	for {
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			return nil, false
		}
		if s.port != nil {
			p := s.port
			s.mu.Unlock()
			return p, true
		}
		ready := s.ready
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, false
		case <-ready:
		}
	}
}

func (s *Stream) markDown(port io.ReadWriteCloser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.port != port {
		return
	}
	_ = port.Close()
	s.port = nil
	s.ready = make(chan struct{})
}

func (s *Stream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Reconnect closes the port, waits the reconnect delay and opens it again.
func (s *Stream) Reconnect(ctx context.Context) error {
	s.mu.Lock()
	if s.port != nil {
		_ = s.port.Close()
		s.port = nil
		s.ready = make(chan struct{})
	}
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(s.cfg.ReconnectDelay):
	}
	if err := s.Connect(ctx); err != nil {
		return err
	}
	return s.Subscribe(ctx)
}

// Close closes the port. Readers return once it is closed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	if s.port != nil {
		err := s.port.Close()
		s.port = nil
		return err
	}
	return nil
}

func (s *Stream) IsConnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.port != nil && !s.closed
}

var _ drepo.TraceStream = (*Stream)(nil)
