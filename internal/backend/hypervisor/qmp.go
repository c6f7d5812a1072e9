package hypervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"
)

// monitor runs commands on one guest's QMP monitor.
type monitor interface {
	// Execute runs command and decodes its return value into out, which may
	// be nil.
	Execute(ctx context.Context, command string, args map[string]any, out any) error
	Close() error
}

// QMP message types
type qmpCommand struct {
	Execute   string         `json:"execute"`
	Arguments map[string]any `json:"arguments,omitempty"`
	ID        string         `json:"id,omitempty"`
}

type qmpResponse struct {
	QMP    json.RawMessage `json:"QMP,omitempty"`
	Return json.RawMessage `json:"return,omitempty"`
	Error  *qmpError       `json:"error,omitempty"`
	Event  string          `json:"event,omitempty"`
	ID     string          `json:"id,omitempty"`
}

type qmpError struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

// MonitorError is returned when the guest monitor rejects a command.
type MonitorError struct {
	Command     string
	Class       string
	Description string
}

func (e *MonitorError) Error() string {
	return fmt.Sprintf("QMP %s failed [%s]: %s", e.Command, e.Class, e.Description)
}

// qmpMonitor is a synchronous QMP client. It is not safe for concurrent
// use; callers open one per operation.
type qmpMonitor struct {
	conn net.Conn
	dec  *json.Decoder
	enc  *json.Encoder
	seq  uint64
}

// dialMonitor connects to the QMP socket at path and enters command mode.
func dialMonitor(ctx context.Context, path string) (monitor, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to QMP socket %s: %w", path, err)
	}

	m := &qmpMonitor{
		conn: conn,
		dec:  json.NewDecoder(conn),
		enc:  json.NewEncoder(conn),
	}

	if err := m.setDeadline(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	var greeting qmpResponse
	if err := m.dec.Decode(&greeting); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to read QMP greeting: %w", err)
	}
	if len(greeting.QMP) == 0 {
		conn.Close()
		return nil, fmt.Errorf("unexpected QMP greeting from %s", path)
	}

	if err := m.Execute(ctx, "qmp_capabilities", nil, nil); err != nil {
		conn.Close()
		return nil, err
	}
	return m, nil
}

func (m *qmpMonitor) setDeadline(ctx context.Context) error {
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Time{}
	}
	if err := m.conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set QMP deadline: %w", err)
	}
	return nil
}

// Execute sends a QMP command and waits for the response with the same id.
// Asynchronous events received meanwhile are dropped.
func (m *qmpMonitor) Execute(ctx context.Context, command string, args map[string]any, out any) error {
	if err := m.setDeadline(ctx); err != nil {
		return err
	}

	m.seq++
	id := fmt.Sprintf("vmux-%d", m.seq)
	if err := m.enc.Encode(qmpCommand{Execute: command, Arguments: args, ID: id}); err != nil {
		return fmt.Errorf("failed to write QMP command %s: %w", command, err)
	}

	for {
		var resp qmpResponse
		if err := m.dec.Decode(&resp); err != nil {
			return fmt.Errorf("failed to read QMP response to %s: %w", command, err)
		}
		if resp.Event != "" || resp.ID != id {
			continue
		}
		if resp.Error != nil {
			return &MonitorError{Command: command, Class: resp.Error.Class, Description: resp.Error.Desc}
		}
		if out == nil || len(resp.Return) == 0 {
			return nil
		}
		if err := json.Unmarshal(resp.Return, out); err != nil {
			return fmt.Errorf("failed to decode QMP response to %s: %w", command, err)
		}
		return nil
	}
}

// Close closes the monitor connection.
func (m *qmpMonitor) Close() error {
	return m.conn.Close()
}

// Replies of the queries used by the adapter.

type statusInfo struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
}

type cpuInfoFast struct {
	CPUIndex int    `json:"cpu-index"`
	QOMPath  string `json:"qom-path"`
	ThreadID int    `json:"thread-id"`
}

type balloonInfo struct {
	Actual uint64 `json:"actual"`
}

type memorySizeSummary struct {
	BaseMemory    uint64 `json:"base-memory"`
	PluggedMemory uint64 `json:"plugged-memory"`
}

type hotpluggableCPU struct {
	Type       string         `json:"type"`
	VcpusCount int            `json:"vcpus-count"`
	Props      map[string]any `json:"props"`
	QOMPath    string         `json:"qom-path,omitempty"`
}
