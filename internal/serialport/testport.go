package serialport

import (
	"bytes"
	"fmt"
	"sync"
)

// TestablePort is a Port with scripted input and injectable failures for
// tests. Reads never block: an empty buffer reads as zero bytes.
type TestablePort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// WriteBuffer captures data written to the port
	WriteBuffer *bytes.Buffer

	// ReadError is returned by the next Read call if set
	ReadError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// Flushes counts ResetInputBuffer calls
	Flushes int
}

// NewTestablePort creates an empty TestablePort.
func NewTestablePort() *TestablePort {
	return &TestablePort{
		ReadBuffer:  bytes.NewBuffer(nil),
		WriteBuffer: bytes.NewBuffer(nil),
	}
}

func (t *TestablePort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++
	if t.Closed {
		return 0, errPortClosed
	}
	if t.ReadError != nil {
		err := t.ReadError
		t.ReadError = nil
		return 0, err
	}
	if t.ReadBuffer.Len() == 0 {
		return 0, nil
	}
	return t.ReadBuffer.Read(p)
}

func (t *TestablePort) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Closed {
		return 0, errPortClosed
	}
	return t.WriteBuffer.Write(p)
}

func (t *TestablePort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Closed = true
	return t.CloseError
}

// ResetInputBuffer drops unread input.
func (t *TestablePort) ResetInputBuffer() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Flushes++
	t.ReadBuffer.Reset()
	return nil
}

// AddReadData queues data for subsequent reads.
func (t *TestablePort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadBuffer.Write(data)
}

// FailNextRead makes the next Read return err.
func (t *TestablePort) FailNextRead(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ReadError = err
}

// IsClosed reports whether Close was called.
func (t *TestablePort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// MockOpener hands out pre-registered TestablePorts by endpoint and records
// every open attempt.
type MockOpener struct {
	mu       sync.Mutex
	Ports    map[string]*TestablePort
	Errors   map[string]error
	Attempts []string
}

// NewMockOpener creates an opener with no registered endpoints.
func NewMockOpener() *MockOpener {
	return &MockOpener{
		Ports:  make(map[string]*TestablePort),
		Errors: make(map[string]error),
	}
}

// Register makes endpoint open to a fresh TestablePort and returns it.
func (m *MockOpener) Register(endpoint string) *TestablePort {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := NewTestablePort()
	m.Ports[endpoint] = p
	return p
}

// Fail makes opening endpoint return err.
func (m *MockOpener) Fail(endpoint string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Errors[endpoint] = err
}

// Open implements Opener.
func (m *MockOpener) Open(endpoint string, _ PortOptions) (Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Attempts = append(m.Attempts, endpoint)
	if err, ok := m.Errors[endpoint]; ok {
		return nil, err
	}
	p, ok := m.Ports[endpoint]
	if !ok {
		return nil, fmt.Errorf("no such device: %s", endpoint)
	}
	return p, nil
}
