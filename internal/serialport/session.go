// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package serialport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/posture_telemetry/internal/monitoring"
)

const (
	// defaultReadBudget bounds how many bytes one ReadAvailable call drains.
	defaultReadBudget = 64 * 1024
	// maxLineLength bounds an unterminated line; longer runs are cut and
	// passed on as-is so binary noise cannot grow the buffer forever.
	maxLineLength = 16 * 1024
	readChunk     = 4096
)

// Session identifies one opened transport.
type Session struct {
	ID       uuid.UUID `json:"id"`
	Endpoint string    `json:"endpoint"`
	OpenedAt time.Time `json:"opened_at"`
}

// ConnectError reports a failed open. The manager stays disconnected until
// the next Open or Switch.
type ConnectError struct {
	Endpoint string
	Err      error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Resetter is state that must start over whenever the transport changes.
type Resetter interface {
	Reset()
}

// Manager owns the one active transport. All methods are safe for concurrent
// use; Switch and ReadAvailable never interleave.
type Manager struct {
	mu        sync.Mutex
	opener    Opener
	opts      PortOptions
	port      Port
	session   *Session
	partial   []byte
	resetters []Resetter

	readBudget int
	now        func() time.Time
	sleep      func(ctx context.Context, d time.Duration) error
}

// NewManager creates a disconnected manager. A nil opener uses OpenEndpoint.
func NewManager(opener Opener, opts PortOptions) (*Manager, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	if opener == nil {
		opener = OpenEndpoint
	}
	return &Manager{
		opener:     opener,
		opts:       opts,
		readBudget: defaultReadBudget,
		now:        time.Now,
		sleep:      sleepContext,
	}, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AddResetter registers state to reset on every Switch.
func (m *Manager) AddResetter(r Resetter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resetters = append(m.resetters, r)
}

// Options returns the normalized port options.
func (m *Manager) Options() PortOptions {
	return m.opts
}

// Open connects to endpoint, replacing any current transport without
// resetting registered state.
func (m *Manager) Open(ctx context.Context, endpoint string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
	return m.openLocked(ctx, endpoint)
}

// Switch closes the current transport, resets every registered Resetter and
// connects to endpoint. If the open fails the manager is left disconnected.
func (m *Manager) Switch(ctx context.Context, endpoint string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev := ""
	if m.session != nil {
		prev = m.session.Endpoint
	}
	m.closeLocked()
	for _, r := range m.resetters {
		r.Reset()
	}
	monitoring.Logf("serialport: switching %q -> %q", prev, endpoint)
	return m.openLocked(ctx, endpoint)
}

func (m *Manager) openLocked(ctx context.Context, endpoint string) (*Session, error) {
	port, err := m.opener(endpoint, m.opts)
	if err != nil {
		return nil, &ConnectError{Endpoint: endpoint, Err: err}
	}

	if isDevice(endpoint) {
		// The wearable reboots when the port opens; wait it out and drop
		// the boot noise.
		if err := m.sleep(ctx, m.opts.Settle); err != nil {
			port.Close()
			return nil, &ConnectError{Endpoint: endpoint, Err: err}
		}
		m.flush(port)
	}

	m.port = port
	m.partial = nil
	m.session = &Session{ID: uuid.New(), Endpoint: endpoint, OpenedAt: m.now()}
	monitoring.Logf("serialport: opened %s (session %s)", endpoint, m.session.ID)
	s := *m.session
	return &s, nil
}

func isDevice(endpoint string) bool {
	return !strings.HasPrefix(endpoint, FilePrefix) && !strings.HasPrefix(endpoint, MockPrefix) &&
		!strings.HasPrefix(endpoint, IMUPrefix)
}

func (m *Manager) flush(port Port) {
	if f, ok := port.(inputFlusher); ok {
		if err := f.ResetInputBuffer(); err != nil {
			monitoring.Logf("serialport: flush: %v", err)
		}
		return
	}
	buf := make([]byte, readChunk)
	for total := 0; total < m.readBudget; {
		n, err := port.Read(buf)
		total += n
		if err != nil || n < len(buf) {
			return
		}
	}
}

func (m *Manager) closeLocked() error {
	if m.port == nil {
		return nil
	}
	err := m.port.Close()
	if err != nil {
		monitoring.Logf("serialport: close %s: %v", m.session.Endpoint, err)
	}
	m.port = nil
	m.session = nil
	m.partial = nil
	return err
}

// Close disconnects the current transport, if any.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeLocked()
}

// Connected reports whether a transport is open.
func (m *Manager) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.port != nil
}

// Endpoint is the current endpoint, or "" when disconnected.
func (m *Manager) Endpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return ""
	}
	return m.session.Endpoint
}

// Session returns a copy of the current session, or nil when disconnected.
func (m *Manager) Session() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	s := *m.session
	return &s
}

// ReadAvailable drains what the transport has buffered right now and yields
// the complete lines, without their terminator. It stops at the first short
// read, so a device that keeps streaming cannot hold the caller. A trailing partial line is
// kept for the next call. Read errors are logged and yield nothing.
func (m *Manager) ReadAvailable() iter.Seq[[]byte] {
	lines := m.drain()
	return func(yield func([]byte) bool) {
		for _, l := range lines {
			if !yield(l) {
				return
			}
		}
	}
}

func (m *Manager) drain() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.port == nil {
		return nil
	}

	buf := make([]byte, readChunk)
	for total := 0; total < m.readBudget; {
		n, err := m.port.Read(buf)
		if n > 0 {
			m.partial = append(m.partial, buf[:n]...)
			total += n
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			monitoring.Logf("serialport: read %s: %v", m.session.Endpoint, err)
			return nil
		}
		// A short read means the driver's buffer is empty; reading again
		// would wait for bytes that arrive after this tick.
		if n < len(buf) {
			break
		}
	}

	var lines [][]byte
	for {
		i := bytes.IndexByte(m.partial, '\n')
		if i < 0 {
			break
		}
		lines = append(lines, bytes.Clone(m.partial[:i]))
		m.partial = m.partial[i+1:]
	}
	for len(m.partial) > maxLineLength {
		lines = append(lines, bytes.Clone(m.partial[:maxLineLength]))
		m.partial = m.partial[maxLineLength:]
	}
	m.partial = bytes.Clone(m.partial)
	return lines
}
