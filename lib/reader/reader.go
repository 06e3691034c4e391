// Package reader provides record sources for import: an in-memory
// source for tests and embedding, a JSON Lines source with catalog
// sniffing, and a BED track parser. File-format specifics stay here;
// the store only ever sees flat variant mappings with nested
// annotation and sample sub-mappings.
package reader

import (
	"github.com/vardex/vardex/lib/varapi"
)

// Reader is a streaming source of variant records. Fields, Samples,
// and Metadata describe the stream and must be stable before the
// first Scan. The scan loop follows bufio.Scanner: Scan advances,
// Variant returns the current record, Err reports what stopped a
// prematurely ended scan.
type Reader interface {
	Fields() []varapi.Field
	Samples() []string
	Metadata() map[string]string

	Scan() bool
	Variant() varapi.Variant
	Err() error
}

// MemReader replays a fixed slice of records. The zero value is an
// empty stream.
type MemReader struct {
	fields   []varapi.Field
	samples  []string
	metadata map[string]string
	variants []varapi.Variant

	pos int
	cur varapi.Variant
}

// NewMemReader builds a replayable reader over pre-built records.
func NewMemReader(fields []varapi.Field, samples []string, variants []varapi.Variant) *MemReader {
	return &MemReader{
		fields:   fields,
		samples:  samples,
		variants: variants,
	}
}

// WithMetadata attaches stream metadata and returns the reader.
func (m *MemReader) WithMetadata(metadata map[string]string) *MemReader {
	m.metadata = metadata
	return m
}

func (m *MemReader) Fields() []varapi.Field      { return m.fields }
func (m *MemReader) Samples() []string           { return m.samples }
func (m *MemReader) Metadata() map[string]string { return m.metadata }

func (m *MemReader) Scan() bool {
	if m.pos >= len(m.variants) {
		return false
	}
	m.cur = m.variants[m.pos]
	m.pos++
	return true
}

func (m *MemReader) Variant() varapi.Variant { return m.cur }

func (m *MemReader) Err() error { return nil }
