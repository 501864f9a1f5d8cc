// Package transport implements the dual-channel protocol between the
// Orchestrator and one external render subscriber: fire-and-forget
// binary stream frames for bulk agent state, and JSON-RPC 2.0 for
// commands, multiplexed on a single TCP connection disambiguated by the
// first byte of each frame.
package transport

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/fieldforge/orchestrator/internal/idgen"
	"github.com/fieldforge/orchestrator/internal/xerrors"
)

// MsgType identifies a binary stream frame.
type MsgType uint8

const (
	MsgUpdatePositions MsgType = 0x01
	MsgUpdateTelemetry MsgType = 0x02
	MsgDebugLines      MsgType = 0x03
	MsgDebugSpheres    MsgType = 0x04
	MsgSpawnBatch      MsgType = 0x05
	MsgRetireBatch     MsgType = 0x06
	MsgDroppedTicks    MsgType = 0x07
)

// jsonFrameLeadByte is the first byte of every JSON-RPC text frame; any
// other lead byte is a binary frame header.
const jsonFrameLeadByte = '{'

// PositionRecord is one agent's position/orientation update, already in
// render-frame units (conversion happens once, on egress, before this
// record is built — see frame.go).
type PositionRecord struct {
	ID   int32
	Pos  [3]float32
	Quat [4]float32
}

// TelemetryRecord is one agent's telemetry update.
type TelemetryRecord struct {
	ID        int32
	Battery   float32
	Health    float32
	SignalDBm float32
	Flags     uint8
}

// DebugLine is one debug-draw line segment.
type DebugLine struct {
	A, B      [3]float32
	RGBA      [4]uint8
	Thickness float32
}

// DebugSphere is one debug-draw sphere.
type DebugSphere struct {
	Center [3]float32
	Radius float32
	RGBA   [4]uint8
}

// SpawnRecord announces a new agent to the subscriber.
type SpawnRecord struct {
	ID   int32
	Kind uint8
	Pos  [3]float32
	Quat [4]float32
}

// writeHeader writes the 5-byte binary frame header (1-byte type, then
// the 4-byte little-endian payload length) followed by the payload's
// leading 4-byte little-endian record count.
func writeHeader(w io.Writer, t MsgType, count uint32) error {
	recSize := map[MsgType]uint32{
		MsgUpdatePositions: 4 + 12 + 16,
		MsgUpdateTelemetry: 4 + 4 + 4 + 4 + 1,
		MsgDebugLines:      12 + 12 + 4 + 4,
		MsgDebugSpheres:    12 + 4 + 4,
		MsgSpawnBatch:      4 + 1 + 12 + 16,
		MsgRetireBatch:     4,
		MsgDroppedTicks:    8,
	}[t]
	var hdr [9]byte
	hdr[0] = byte(t)
	binary.LittleEndian.PutUint32(hdr[1:5], 4+count*recSize)
	binary.LittleEndian.PutUint32(hdr[5:9], count)
	_, err := w.Write(hdr[:])
	return err
}

func putF32(buf []byte, off int, v float32) {
	binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(v))
}

func getF32(buf []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(buf[off:]))
}

// EncodeUpdatePositions is the single canonical encoder for
// UpdatePositions frames; every caller that wants to send this message
// type uses this function.
func EncodeUpdatePositions(w io.Writer, records []PositionRecord) error {
	if err := writeHeader(w, MsgUpdatePositions, uint32(len(records))); err != nil {
		return err
	}
	const recSize = 4 + 12 + 16
	buf := make([]byte, recSize)
	for _, r := range records {
		binary.LittleEndian.PutUint32(buf[0:], uint32(r.ID))
		for i, v := range r.Pos {
			putF32(buf, 4+i*4, v)
		}
		for i, v := range r.Quat {
			putF32(buf, 16+i*4, v)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// DecodeUpdatePositions is the inverse of EncodeUpdatePositions.
func DecodeUpdatePositions(r io.Reader) ([]PositionRecord, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	const recSize = 4 + 12 + 16
	out := make([]PositionRecord, count)
	buf := make([]byte, recSize)
	for i := range out {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out[i].ID = int32(binary.LittleEndian.Uint32(buf[0:]))
		for j := range out[i].Pos {
			out[i].Pos[j] = getF32(buf, 4+j*4)
		}
		for j := range out[i].Quat {
			out[i].Quat[j] = getF32(buf, 16+j*4)
		}
	}
	return out, nil
}

// EncodeUpdateTelemetry is the canonical encoder for UpdateTelemetry.
func EncodeUpdateTelemetry(w io.Writer, records []TelemetryRecord) error {
	if err := writeHeader(w, MsgUpdateTelemetry, uint32(len(records))); err != nil {
		return err
	}
	const recSize = 4 + 4 + 4 + 4 + 1
	buf := make([]byte, recSize)
	for _, r := range records {
		binary.LittleEndian.PutUint32(buf[0:], uint32(r.ID))
		putF32(buf, 4, r.Battery)
		putF32(buf, 8, r.Health)
		putF32(buf, 12, r.SignalDBm)
		buf[16] = r.Flags
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// DecodeUpdateTelemetry is the inverse of EncodeUpdateTelemetry.
func DecodeUpdateTelemetry(r io.Reader) ([]TelemetryRecord, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	const recSize = 4 + 4 + 4 + 4 + 1
	out := make([]TelemetryRecord, count)
	buf := make([]byte, recSize)
	for i := range out {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out[i].ID = int32(binary.LittleEndian.Uint32(buf[0:]))
		out[i].Battery = getF32(buf, 4)
		out[i].Health = getF32(buf, 8)
		out[i].SignalDBm = getF32(buf, 12)
		out[i].Flags = buf[16]
	}
	return out, nil
}

// EncodeDebugLines is the canonical encoder for DebugLines.
func EncodeDebugLines(w io.Writer, lines []DebugLine) error {
	if err := writeHeader(w, MsgDebugLines, uint32(len(lines))); err != nil {
		return err
	}
	const recSize = 12 + 12 + 4 + 4
	buf := make([]byte, recSize)
	for _, l := range lines {
		for i, v := range l.A {
			putF32(buf, i*4, v)
		}
		for i, v := range l.B {
			putF32(buf, 12+i*4, v)
		}
		copy(buf[24:28], l.RGBA[:])
		putF32(buf, 28, l.Thickness)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDebugLines is the inverse of EncodeDebugLines.
func DecodeDebugLines(r io.Reader) ([]DebugLine, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	const recSize = 12 + 12 + 4 + 4
	out := make([]DebugLine, count)
	buf := make([]byte, recSize)
	for i := range out {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		for j := range out[i].A {
			out[i].A[j] = getF32(buf, j*4)
		}
		for j := range out[i].B {
			out[i].B[j] = getF32(buf, 12+j*4)
		}
		copy(out[i].RGBA[:], buf[24:28])
		out[i].Thickness = getF32(buf, 28)
	}
	return out, nil
}

// EncodeDebugSpheres is the canonical encoder for DebugSpheres.
func EncodeDebugSpheres(w io.Writer, spheres []DebugSphere) error {
	if err := writeHeader(w, MsgDebugSpheres, uint32(len(spheres))); err != nil {
		return err
	}
	const recSize = 12 + 4 + 4
	buf := make([]byte, recSize)
	for _, s := range spheres {
		for i, v := range s.Center {
			putF32(buf, i*4, v)
		}
		putF32(buf, 12, s.Radius)
		copy(buf[16:20], s.RGBA[:])
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDebugSpheres is the inverse of EncodeDebugSpheres.
func DecodeDebugSpheres(r io.Reader) ([]DebugSphere, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	const recSize = 12 + 4 + 4
	out := make([]DebugSphere, count)
	buf := make([]byte, recSize)
	for i := range out {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		for j := range out[i].Center {
			out[i].Center[j] = getF32(buf, j*4)
		}
		out[i].Radius = getF32(buf, 12)
		copy(out[i].RGBA[:], buf[16:20])
	}
	return out, nil
}

// EncodeSpawnBatch is the canonical encoder for SpawnBatch.
func EncodeSpawnBatch(w io.Writer, records []SpawnRecord) error {
	if err := writeHeader(w, MsgSpawnBatch, uint32(len(records))); err != nil {
		return err
	}
	const recSize = 4 + 1 + 12 + 16
	buf := make([]byte, recSize)
	for _, r := range records {
		binary.LittleEndian.PutUint32(buf[0:], uint32(r.ID))
		buf[4] = r.Kind
		for i, v := range r.Pos {
			putF32(buf, 5+i*4, v)
		}
		for i, v := range r.Quat {
			putF32(buf, 17+i*4, v)
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// DecodeSpawnBatch is the inverse of EncodeSpawnBatch.
func DecodeSpawnBatch(r io.Reader) ([]SpawnRecord, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	const recSize = 4 + 1 + 12 + 16
	out := make([]SpawnRecord, count)
	buf := make([]byte, recSize)
	for i := range out {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out[i].ID = int32(binary.LittleEndian.Uint32(buf[0:]))
		out[i].Kind = buf[4]
		for j := range out[i].Pos {
			out[i].Pos[j] = getF32(buf, 5+j*4)
		}
		for j := range out[i].Quat {
			out[i].Quat[j] = getF32(buf, 17+j*4)
		}
	}
	return out, nil
}

// EncodeRetireBatch is the canonical encoder for RetireBatch.
func EncodeRetireBatch(w io.Writer, ids []idgen.AgentID) error {
	if err := writeHeader(w, MsgRetireBatch, uint32(len(ids))); err != nil {
		return err
	}
	buf := make([]byte, 4)
	for _, id := range ids {
		binary.LittleEndian.PutUint32(buf, uint32(id))
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// DecodeRetireBatch is the inverse of EncodeRetireBatch.
func DecodeRetireBatch(r io.Reader) ([]idgen.AgentID, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	out := make([]idgen.AgentID, count)
	buf := make([]byte, 4)
	for i := range out {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out[i] = idgen.AgentID(binary.LittleEndian.Uint32(buf))
	}
	return out, nil
}

// EncodeDroppedTicks is the canonical encoder for DroppedTicks: the set
// of tick numbers the outbound queue discarded since the previous
// delivered snapshot, so a gap is always reported to the client rather
// than silently skipped.
func EncodeDroppedTicks(w io.Writer, ticks []uint64) error {
	if err := writeHeader(w, MsgDroppedTicks, uint32(len(ticks))); err != nil {
		return err
	}
	buf := make([]byte, 8)
	for _, t := range ticks {
		binary.LittleEndian.PutUint64(buf, t)
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// DecodeDroppedTicks is the inverse of EncodeDroppedTicks.
func DecodeDroppedTicks(r io.Reader) ([]uint64, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, count)
	buf := make([]byte, 8)
	for i := range out {
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		out[i] = binary.LittleEndian.Uint64(buf)
	}
	return out, nil
}

func readCount(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}

// ReadFrameHeader classifies a frame from its lead byte: the binary
// message type, or isJSON when the byte starts a JSON-RPC frame. It
// reads nothing from r; the 4-byte payload length that follows a
// binary type byte is left for the caller.
func ReadFrameHeader(r io.Reader, leadByte byte) (msgType MsgType, isJSON bool, err error) {
	if leadByte == jsonFrameLeadByte {
		return 0, true, nil
	}
	return MsgType(leadByte), false, nil
}

// UnknownMsgType is returned when a binary frame's type byte does not
// match any known MsgType. A hard error, not a silent drop.
func UnknownMsgType(t byte) error {
	return xerrors.Transport(fmt.Sprintf("unknown binary message type 0x%02x", t), nil)
}
