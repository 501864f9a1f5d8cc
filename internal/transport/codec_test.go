package transport

import (
	"bytes"
	"testing"

	"github.com/fieldforge/orchestrator/internal/idgen"
)

func TestUpdatePositionsRoundTrip(t *testing.T) {
	want := []PositionRecord{
		{ID: 1, Pos: [3]float32{1, 2, 3}, Quat: [4]float32{0, 0, 0, 1}},
		{ID: 2, Pos: [3]float32{-1.5, 0, 100}, Quat: [4]float32{0.1, 0.2, 0.3, 0.9}},
	}
	var buf bytes.Buffer
	if err := EncodeUpdatePositions(&buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	// skip the 5-byte header (type + payload length) directly, since
	// ReadFrameHeader only classifies the lead byte; the decoder starts
	// at the payload's record count.
	buf.Next(5)
	got, err := DecodeUpdatePositions(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d records, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("record %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestSpawnBatchRoundTrip(t *testing.T) {
	want := []SpawnRecord{
		{ID: 5, Kind: 2, Pos: [3]float32{1, 1, 1}, Quat: [4]float32{0, 0, 0, 1}},
	}
	var buf bytes.Buffer
	if err := EncodeSpawnBatch(&buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.Next(5)
	got, err := DecodeSpawnBatch(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestRetireBatchRoundTrip(t *testing.T) {
	want := []idgen.AgentID{3, 7, 9}
	var buf bytes.Buffer
	if err := EncodeRetireBatch(&buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.Next(5)
	got, err := DecodeRetireBatch(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d ids, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("id %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestTelemetryRoundTripPreservesFlags(t *testing.T) {
	want := []TelemetryRecord{{ID: 1, Battery: 0.5, Health: 0.75, SignalDBm: -60, Flags: 0b101}}
	var buf bytes.Buffer
	if err := EncodeUpdateTelemetry(&buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.Next(5)
	got, err := DecodeUpdateTelemetry(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDebugLinesRoundTrip(t *testing.T) {
	want := []DebugLine{
		{A: [3]float32{0, 0, 0}, B: [3]float32{10, 0, 0}, RGBA: [4]uint8{0, 200, 80, 255}, Thickness: 1.5},
	}
	var buf bytes.Buffer
	if err := EncodeDebugLines(&buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.Next(5)
	got, err := DecodeDebugLines(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDebugSpheresRoundTrip(t *testing.T) {
	want := []DebugSphere{
		{Center: [3]float32{5, 5, 5}, Radius: 250, RGBA: [4]uint8{220, 30, 30, 120}},
	}
	var buf bytes.Buffer
	if err := EncodeDebugSpheres(&buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.Next(5)
	got, err := DecodeDebugSpheres(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 1 || got[0] != want[0] {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestDroppedTicksRoundTrip(t *testing.T) {
	want := []uint64{41, 42, 108}
	var buf bytes.Buffer
	if err := EncodeDroppedTicks(&buf, want); err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf.Next(5)
	got, err := DecodeDroppedTicks(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("got %d ticks, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tick %d: got %v, want %v", i, got[i], want[i])
		}
	}
}

func TestReadFrameHeaderClassifiesJSONLeadByte(t *testing.T) {
	_, isJSON, err := ReadFrameHeader(bytes.NewReader(nil), '{')
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !isJSON {
		t.Fatal("lead byte '{' should classify as a JSON-RPC frame")
	}

	mt, isJSON, err := ReadFrameHeader(bytes.NewReader(nil), byte(MsgUpdatePositions))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if isJSON || mt != MsgUpdatePositions {
		t.Fatalf("got (%v, isJSON=%v), want (MsgUpdatePositions, false)", mt, isJSON)
	}
}
