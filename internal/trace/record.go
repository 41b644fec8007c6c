package trace

import (
	"errors"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
)

// RecordingMagic identifies msgpack trace recordings.
const RecordingMagic = "hearth-trace"

// Current schema version - increment when Event's msgpack layout changes.
const recordingSchemaVersion uint16 = 1

// RecordingHeader is the first value of a msgpack recording.
type RecordingHeader struct {
	Magic   string `msgpack:"magic"`
	Schema  uint16 `msgpack:"schema"`
	BootID  string `msgpack:"boot_id"`
	Version string `msgpack:"version"`
	// TickNanos is the clock tick duration in nanoseconds.
	TickNanos uint64 `msgpack:"tick_ns"`
}

func encodeHeader(h RecordingHeader) []byte {
	h.Magic = RecordingMagic
	h.Schema = recordingSchemaVersion
	data, err := msgpack.Marshal(&h)
	if err != nil {
		return nil
	}
	return data
}

// ReadRecording decodes a msgpack recording produced by a StreamTracer.
func ReadRecording(r io.Reader) (RecordingHeader, []Event, error) {
	dec := msgpack.NewDecoder(r)

	var hdr RecordingHeader
	if err := dec.Decode(&hdr); err != nil {
		return RecordingHeader{}, nil, fmt.Errorf("failed to read recording header: %w", err)
	}
	if hdr.Magic != RecordingMagic {
		return RecordingHeader{}, nil, fmt.Errorf("not a trace recording (magic %q)", hdr.Magic)
	}
	if hdr.Schema != recordingSchemaVersion {
		return hdr, nil, fmt.Errorf("unsupported recording schema %d (want %d)", hdr.Schema, recordingSchemaVersion)
	}

	var events []Event
	for {
		var ev Event
		err := dec.Decode(&ev)
		if errors.Is(err, io.EOF) {
			return hdr, events, nil
		}
		if err != nil {
			return hdr, events, fmt.Errorf("failed to decode event %d: %w", len(events), err)
		}
		events = append(events, ev)
	}
}
