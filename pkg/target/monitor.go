// Package target talks to the debugger that runs the program: a VICE
// emulator reached over its binary monitor protocol.
package target

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/hitzhangjie/retrodbg/pkg/logger"
)

const logTag = "monitor"

const (
	stx        = 0x02
	apiVersion = 0x02

	// request id the monitor uses for messages nobody asked for
	eventRequestID = 0xffffffff

	reqHeaderLen  = 11
	respHeaderLen = 12
)

// command and response types
const (
	cmdCheckpointGet    = 0x11
	cmdCheckpointSet    = 0x12
	cmdCheckpointDelete = 0x13
	cmdCheckpointList   = 0x14
	cmdCheckpointToggle = 0x15
	cmdConditionSet     = 0x22
	cmdBanksAvailable   = 0x82
	cmdExit             = 0xaa

	respCheckpointInfo = 0x11
	respStopped        = 0x62
	respResumed        = 0x63
)

var (
	ErrDisconnected = errors.New("monitor disconnected")
	ErrTimeout      = errors.New("monitor request timed out")
)

// MonitorError non-zero error code in a monitor response
type MonitorError struct {
	Command byte
	Code    byte
}

func (e *MonitorError) Error() string {
	var reason string
	switch e.Code {
	case 0x01:
		reason = "object does not exist"
	case 0x02:
		reason = "invalid memspace"
	case 0x80:
		reason = "incorrect command length"
	case 0x81:
		reason = "invalid parameter"
	case 0x82:
		reason = "unsupported api version"
	case 0x83:
		reason = "unknown command"
	case 0x8f:
		reason = "general failure"
	default:
		reason = fmt.Sprintf("error code %#x", e.Code)
	}
	return fmt.Sprintf("monitor command %#x: %s", e.Command, reason)
}

// EventKind kind of an unsolicited monitor message
type EventKind int

// List of valid EventKind values
const (
	CheckpointHit EventKind = iota
	Stopped
	Resumed
	Disconnected
)

func (k EventKind) String() string {
	switch k {
	case CheckpointHit:
		return "checkpoint hit"
	case Stopped:
		return "stopped"
	case Resumed:
		return "resumed"
	case Disconnected:
		return "disconnected"
	}
	return "unknown"
}

// Event an unsolicited message from the monitor
type Event struct {
	Kind       EventKind
	Checkpoint Checkpoint // CheckpointHit
	PC         uint16     // Stopped, Resumed
}

type response struct {
	typ  byte
	code byte
	body []byte
}

type call struct {
	cmd      byte
	terminal byte // response type that completes the call
	infos    []Checkpoint
	resp     response
	err      error
	done     chan struct{}
}

// Monitor client side of a binary monitor connection. Requests may be
// issued from any goroutine; responses are matched by request id.
type Monitor struct {
	conn    net.Conn
	timeout time.Duration

	reqID     *atomic.Uint32
	connected *atomic.Bool

	wmu sync.Mutex // serializes writes

	mu      sync.Mutex
	pending map[uint32]*call

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to the monitor listening on addr.
func Dial(ctx context.Context, addr string, timeout time.Duration) (*Monitor, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("dial monitor %s: %w", addr, err)
	}
	logger.Logf(logTag, "connected to %s", addr)
	return NewMonitor(conn, timeout), nil
}

// NewMonitor runs the protocol over an established connection.
func NewMonitor(conn net.Conn, timeout time.Duration) *Monitor {
	m := &Monitor{
		conn:      conn,
		timeout:   timeout,
		reqID:     atomic.NewUint32(0),
		connected: atomic.NewBool(true),
		pending:   map[uint32]*call{},
		events:    make(chan Event, 64),
		done:      make(chan struct{}),
	}
	go m.readLoop()
	return m
}

// Connected reports whether the connection is still up.
func (m *Monitor) Connected() bool {
	return m.connected.Load()
}

// Events delivers checkpoint hits and run state changes. The channel is
// closed after the Disconnected event.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Close shuts the connection down.
func (m *Monitor) Close() error {
	var err error
	m.closeOnce.Do(func() {
		close(m.done)
		err = m.conn.Close()
	})
	return err
}

// SetCheckpoint creates a checkpoint and returns it as the monitor reports it.
func (m *Monitor) SetCheckpoint(ctx context.Context, req CheckpointRequest) (Checkpoint, error) {
	c, err := m.request(ctx, cmdCheckpointSet, req.encode(), respCheckpointInfo)
	if err != nil {
		return Checkpoint{}, err
	}
	return decodeCheckpoint(c.resp.body)
}

// GetCheckpoint fetches a single checkpoint.
func (m *Monitor) GetCheckpoint(ctx context.Context, id uint32) (Checkpoint, error) {
	c, err := m.request(ctx, cmdCheckpointGet, u32(id), respCheckpointInfo)
	if err != nil {
		return Checkpoint{}, err
	}
	return decodeCheckpoint(c.resp.body)
}

// DeleteCheckpoint removes checkpoint id.
func (m *Monitor) DeleteCheckpoint(ctx context.Context, id uint32) error {
	_, err := m.request(ctx, cmdCheckpointDelete, u32(id), cmdCheckpointDelete)
	return err
}

// ToggleCheckpoint enables or disables checkpoint id.
func (m *Monitor) ToggleCheckpoint(ctx context.Context, id uint32, enabled bool) error {
	_, err := m.request(ctx, cmdCheckpointToggle, append(u32(id), boolByte(enabled)), cmdCheckpointToggle)
	return err
}

// SetCondition attaches a condition expression to checkpoint id.
func (m *Monitor) SetCondition(ctx context.Context, id uint32, cond string) error {
	if len(cond) > 255 {
		return fmt.Errorf("condition too long (%d bytes, max 255)", len(cond))
	}
	body := append(u32(id), byte(len(cond)))
	body = append(body, cond...)
	_, err := m.request(ctx, cmdConditionSet, body, cmdConditionSet)
	return err
}

// ListCheckpoints returns every checkpoint the monitor knows about,
// including ones created by other clients.
func (m *Monitor) ListCheckpoints(ctx context.Context) ([]Checkpoint, error) {
	c, err := m.request(ctx, cmdCheckpointList, nil, cmdCheckpointList)
	if err != nil {
		return nil, err
	}
	if len(c.resp.body) >= 4 {
		if n := binary.LittleEndian.Uint32(c.resp.body); int(n) != len(c.infos) {
			logger.Logf(logTag, "checkpoint list announced %d entries, received %d", n, len(c.infos))
		}
	}
	return c.infos, nil
}

// Banks returns the names of the memory banks the monitor offers.
func (m *Monitor) Banks(ctx context.Context) ([]string, error) {
	c, err := m.request(ctx, cmdBanksAvailable, nil, cmdBanksAvailable)
	if err != nil {
		return nil, err
	}
	return decodeBanks(c.resp.body)
}

// Resume leaves the monitor and lets the emulation run.
func (m *Monitor) Resume(ctx context.Context) error {
	_, err := m.request(ctx, cmdExit, nil, cmdExit)
	return err
}

func (m *Monitor) request(ctx context.Context, cmd byte, body []byte, terminal byte) (*call, error) {
	if !m.Connected() {
		return nil, ErrDisconnected
	}

	id := m.reqID.Inc()
	if id == eventRequestID {
		id = m.reqID.Inc()
	}

	c := &call{cmd: cmd, terminal: terminal, done: make(chan struct{})}
	m.mu.Lock()
	m.pending[id] = c
	m.mu.Unlock()

	if err := m.write(id, cmd, body); err != nil {
		m.forget(id)
		return nil, err
	}

	var timeout <-chan time.Time
	if m.timeout > 0 {
		timer := time.NewTimer(m.timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-c.done:
		return c, c.err
	case <-ctx.Done():
		m.forget(id)
		return nil, ctx.Err()
	case <-timeout:
		m.forget(id)
		return nil, fmt.Errorf("command %#x: %w", cmd, ErrTimeout)
	case <-m.done:
		m.forget(id)
		return nil, ErrDisconnected
	}
}

func (m *Monitor) forget(id uint32) {
	m.mu.Lock()
	delete(m.pending, id)
	m.mu.Unlock()
}

func (m *Monitor) write(id uint32, cmd byte, body []byte) error {
	frame := make([]byte, reqHeaderLen, reqHeaderLen+len(body))
	frame[0] = stx
	frame[1] = apiVersion
	binary.LittleEndian.PutUint32(frame[2:], uint32(len(body)))
	binary.LittleEndian.PutUint32(frame[6:], id)
	frame[10] = cmd
	frame = append(frame, body...)

	m.wmu.Lock()
	defer m.wmu.Unlock()
	if m.timeout > 0 {
		m.conn.SetWriteDeadline(time.Now().Add(m.timeout))
	}
	if _, err := m.conn.Write(frame); err != nil {
		return fmt.Errorf("write command %#x: %w", cmd, err)
	}
	return nil
}

func (m *Monitor) readLoop() {
	rd := bufio.NewReader(m.conn)
	var err error
	for {
		var (
			id   uint32
			resp response
		)
		id, resp, err = readResponse(rd)
		if err != nil {
			break
		}
		if id == eventRequestID {
			m.dispatchEvent(resp)
			continue
		}
		m.dispatchResponse(id, resp)
	}

	m.connected.Store(false)
	select {
	case <-m.done:
		logger.Log(logTag, "connection closed")
	default:
		logger.Logf(logTag, "connection lost: %v", err)
	}

	m.mu.Lock()
	for id, c := range m.pending {
		c.err = ErrDisconnected
		close(c.done)
		delete(m.pending, id)
	}
	m.mu.Unlock()

	select {
	case m.events <- Event{Kind: Disconnected}:
	default:
		// queue is full, make room so the disconnect gets through
		select {
		case <-m.events:
		default:
		}
		m.events <- Event{Kind: Disconnected}
	}
	close(m.events)
}

func readResponse(rd io.Reader) (uint32, response, error) {
	hdr := make([]byte, respHeaderLen)
	if _, err := io.ReadFull(rd, hdr); err != nil {
		return 0, response{}, err
	}
	if hdr[0] != stx {
		return 0, response{}, fmt.Errorf("bad start byte %#x", hdr[0])
	}
	n := binary.LittleEndian.Uint32(hdr[2:])
	resp := response{typ: hdr[6], code: hdr[7], body: make([]byte, n)}
	id := binary.LittleEndian.Uint32(hdr[8:])
	if _, err := io.ReadFull(rd, resp.body); err != nil {
		return 0, response{}, err
	}
	return id, resp, nil
}

func (m *Monitor) dispatchResponse(id uint32, resp response) {
	m.mu.Lock()
	defer m.mu.Unlock()

	c, ok := m.pending[id]
	if !ok {
		logger.Logf(logTag, "dropping response %#x for unknown request %d", resp.typ, id)
		return
	}

	if resp.code != 0 {
		c.err = &MonitorError{Command: c.cmd, Code: resp.code}
	} else if resp.typ == respCheckpointInfo && c.terminal != respCheckpointInfo {
		// part of a checkpoint list
		info, err := decodeCheckpoint(resp.body)
		if err != nil {
			logger.Logf(logTag, "checkpoint list entry: %v", err)
			return
		}
		c.infos = append(c.infos, info)
		return
	} else if resp.typ != c.terminal {
		logger.Logf(logTag, "ignoring response %#x while waiting for %#x", resp.typ, c.terminal)
		return
	}

	c.resp = resp
	delete(m.pending, id)
	close(c.done)
}

func (m *Monitor) dispatchEvent(resp response) {
	var ev Event
	switch resp.typ {
	case respCheckpointInfo:
		info, err := decodeCheckpoint(resp.body)
		if err != nil {
			logger.Logf(logTag, "checkpoint event: %v", err)
			return
		}
		ev = Event{Kind: CheckpointHit, Checkpoint: info}
	case respStopped, respResumed:
		ev = Event{Kind: Stopped}
		if resp.typ == respResumed {
			ev.Kind = Resumed
		}
		if len(resp.body) >= 2 {
			ev.PC = binary.LittleEndian.Uint16(resp.body)
		}
	default:
		return
	}

	select {
	case m.events <- ev:
	default:
		logger.Logf(logTag, "event queue full, dropping %s", ev.Kind)
	}
}

func decodeBanks(body []byte) ([]string, error) {
	if len(body) < 2 {
		return nil, fmt.Errorf("banks: %w", errShortBody)
	}
	count := int(binary.LittleEndian.Uint16(body))
	body = body[2:]

	names := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if len(body) < 1 {
			return nil, fmt.Errorf("bank %d: %w", i, errShortBody)
		}
		size := int(body[0])
		if len(body) < 1+size || size < 3 {
			return nil, fmt.Errorf("bank %d: %w", i, errShortBody)
		}
		item := body[1 : 1+size]
		nameLen := int(item[2])
		if len(item) < 3+nameLen {
			return nil, fmt.Errorf("bank %d name: %w", i, errShortBody)
		}
		names = append(names, string(item[3:3+nameLen]))
		body = body[1+size:]
	}
	return names, nil
}

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}
