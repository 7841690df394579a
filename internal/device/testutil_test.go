package device

import (
	"bytes"
	"context"
	"encoding/binary"
	"math"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// eventLog records ordering markers from fakes across goroutines.
type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) add(e string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

// fakeDevice emulates the firmware end of the link: it answers META with an
// INFO frame and INFR with a fixed PRED vector, optionally after noise.
type fakeDevice struct {
	mu     sync.Mutex
	t      uint16
	f      uint16
	h      uint16
	hidden uint16
	pred   []float32
	predH  int    // device-reported H; defaults to h
	noise  []byte // emitted before every response frame

	pending bytes.Buffer
	opened  int
	log     *eventLog
}

func newFakeDevice(t, f, h uint16, pred []float32) *fakeDevice {
	return &fakeDevice{t: t, f: f, h: h, hidden: 16, pred: pred, predH: int(h)}
}

// Open implements PortOpener; the fake device is its own opener.
func (d *fakeDevice) Open() (Port, error) {
	d.mu.Lock()
	d.opened++
	d.pending.Reset()
	d.mu.Unlock()
	if d.log != nil {
		d.log.add("port-open")
	}
	return &fakeDevicePort{dev: d}, nil
}

type fakeDevicePort struct {
	dev *fakeDevice
}

func (p *fakeDevicePort) Read(b []byte) (int, error) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	if p.dev.pending.Len() == 0 {
		return 0, nil // nothing yet, like a polled serial read
	}
	return p.dev.pending.Read(b)
}

func (p *fakeDevicePort) Write(b []byte) (int, error) {
	p.dev.mu.Lock()
	defer p.dev.mu.Unlock()
	switch {
	case bytes.Equal(b, []byte("META")):
		p.dev.pending.Write(p.dev.noise)
		p.dev.pending.WriteString("INFO")
		for _, v := range []uint16{p.dev.t, p.dev.f, p.dev.h, p.dev.hidden} {
			var u [2]byte
			binary.LittleEndian.PutUint16(u[:], v)
			p.dev.pending.Write(u[:])
		}
	case bytes.HasPrefix(b, []byte("INFR")):
		p.dev.pending.Write(p.dev.noise)
		p.dev.pending.WriteString("PRED")
		var u [4]byte
		binary.LittleEndian.PutUint32(u[:], uint32(p.dev.predH))
		p.dev.pending.Write(u[:])
		for _, v := range p.dev.pred {
			binary.LittleEndian.PutUint32(u[:], math.Float32bits(v))
			p.dev.pending.Write(u[:])
		}
	}
	return len(b), nil
}

func (p *fakeDevicePort) Close() error { return nil }

// fakeRunner records invocations and returns scripted results.
type fakeRunner struct {
	mu     sync.Mutex
	calls  [][]string
	exit   int
	stdout string
	stderr string
	delay  time.Duration
	log    *eventLog
}

func (r *fakeRunner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (ToolResult, error) {
	r.mu.Lock()
	r.calls = append(r.calls, append([]string{name}, args...))
	r.mu.Unlock()
	if r.log != nil {
		r.log.add("tool-start")
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	if r.log != nil {
		r.log.add("tool-end")
	}
	return ToolResult{
		Cmd:      name,
		ExitCode: r.exit,
		Stdout:   r.stdout,
		Stderr:   r.stderr,
		Duration: 42 * time.Millisecond,
	}, nil
}

// builtProject creates a project dir that already carries a build marker.
func builtProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "build"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "build", "build.ninja"), []byte("# ninja"), 0o644); err != nil {
		t.Fatalf("marker: %v", err)
	}
	return dir
}

func testManager(t *testing.T, dev *fakeDevice, runner ToolRunner, project string) *Manager {
	t.Helper()
	return NewWithConfig(ManagerConfig{
		SerialPort:    "/dev/ttyTEST",
		ProjectDir:    project,
		ProbeTimeout:  time.Second,
		SampleTimeout: time.Second,
		RebootDelay:   time.Millisecond,
		Runner:        runner,
		Ports:         dev,
	})
}
