package target

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// Operation memory access that triggers a checkpoint
type Operation uint8

// List of valid Operation values, as the monitor encodes them
const (
	OpLoad  Operation = 0x01
	OpStore Operation = 0x02
	OpExec  Operation = 0x04
)

func (op Operation) String() string {
	var parts []string
	if op&OpLoad != 0 {
		parts = append(parts, "load")
	}
	if op&OpStore != 0 {
		parts = append(parts, "store")
	}
	if op&OpExec != 0 {
		parts = append(parts, "exec")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("op(%#x)", uint8(op))
	}
	return strings.Join(parts, "|")
}

// Memspace memory space a checkpoint watches
type Memspace uint8

// List of valid Memspace values
const (
	MainMemory Memspace = 0x00
	Drive8     Memspace = 0x01
	Drive9     Memspace = 0x02
	Drive10    Memspace = 0x03
	Drive11    Memspace = 0x04
)

// CheckpointRequest parameters for creating a checkpoint
type CheckpointRequest struct {
	Start       uint16
	End         uint16
	StopWhenHit bool
	Enabled     bool
	Op          Operation
	Temporary   bool
	Memspace    Memspace
}

func (r CheckpointRequest) encode() []byte {
	body := make([]byte, 9)
	binary.LittleEndian.PutUint16(body[0:], r.Start)
	binary.LittleEndian.PutUint16(body[2:], r.End)
	body[4] = boolByte(r.StopWhenHit)
	body[5] = boolByte(r.Enabled)
	body[6] = byte(r.Op)
	body[7] = boolByte(r.Temporary)
	body[8] = byte(r.Memspace)
	return body
}

// Checkpoint a checkpoint as reported by the monitor
type Checkpoint struct {
	ID           uint32
	CurrentlyHit bool
	Start        uint16
	End          uint16
	StopWhenHit  bool
	Enabled      bool
	Op           Operation
	Temporary    bool
	HitCount     uint32
	IgnoreCount  uint32
	HasCondition bool
	Memspace     Memspace
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("checkpoint %d $%04x-$%04x %s enabled:%v hits:%d", c.ID, c.Start, c.End, c.Op, c.Enabled, c.HitCount)
}

const checkpointInfoLen = 22

var errShortBody = errors.New("response body too short")

func decodeCheckpoint(body []byte) (Checkpoint, error) {
	if len(body) < checkpointInfoLen {
		return Checkpoint{}, fmt.Errorf("checkpoint info: %w (%d bytes)", errShortBody, len(body))
	}
	return Checkpoint{
		ID:           binary.LittleEndian.Uint32(body[0:]),
		CurrentlyHit: body[4] != 0,
		Start:        binary.LittleEndian.Uint16(body[5:]),
		End:          binary.LittleEndian.Uint16(body[7:]),
		StopWhenHit:  body[9] != 0,
		Enabled:      body[10] != 0,
		Op:           Operation(body[11]),
		Temporary:    body[12] != 0,
		HitCount:     binary.LittleEndian.Uint32(body[13:]),
		IgnoreCount:  binary.LittleEndian.Uint32(body[17:]),
		HasCondition: body[21] != 0,
		Memspace:     memspaceAt(body, 22),
	}, nil
}

func memspaceAt(body []byte, i int) Memspace {
	if len(body) > i {
		return Memspace(body[i])
	}
	return MainMemory
}

func encodeCheckpoint(c Checkpoint) []byte {
	body := make([]byte, checkpointInfoLen+1)
	binary.LittleEndian.PutUint32(body[0:], c.ID)
	body[4] = boolByte(c.CurrentlyHit)
	binary.LittleEndian.PutUint16(body[5:], c.Start)
	binary.LittleEndian.PutUint16(body[7:], c.End)
	body[9] = boolByte(c.StopWhenHit)
	body[10] = boolByte(c.Enabled)
	body[11] = byte(c.Op)
	body[12] = boolByte(c.Temporary)
	binary.LittleEndian.PutUint32(body[13:], c.HitCount)
	binary.LittleEndian.PutUint32(body[17:], c.IgnoreCount)
	body[21] = boolByte(c.HasCondition)
	body[22] = byte(c.Memspace)
	return body
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
