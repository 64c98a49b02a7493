// Package codec turns a batch of records into the compressed payload that is
// uploaded and spooled, and back.
//
// A payload is gzip-compressed JSON lines. Each record is one canonical JSON
// object (map keys sorted) terminated by "\r\n". The gzip header carries no
// name and no modification time, so a batch always encodes to the same bytes
// for a given compression level.
package codec

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/gzip"

	"github.com/fieldtrack/fieldtrack/pkg/types"
)

// ContentType is sent with every uploaded payload.
const ContentType = "application/octet-stream"

// RecordSeparator terminates every encoded record.
const RecordSeparator = "\r\n"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Codec encodes and decodes payloads. It holds no state besides its
// configuration and is safe for concurrent use.
type Codec struct {
	level int
}

// New returns a Codec using the given gzip compression level.
func New(level int) (*Codec, error) {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("codec: invalid compression level %d", level)
	}
	return &Codec{level: level}, nil
}

// Encode serializes batch and compresses the result.
func (c *Codec) Encode(batch types.Batch) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, c.level)
	if err != nil {
		return nil, fmt.Errorf("codec: new gzip writer: %w", err)
	}
	for i, rec := range batch {
		line, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("codec: marshal record %d: %w", i, err)
		}
		if _, err := zw.Write(line); err != nil {
			return nil, fmt.Errorf("codec: compress: %w", err)
		}
		if _, err := io.WriteString(zw, RecordSeparator); err != nil {
			return nil, fmt.Errorf("codec: compress: %w", err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("codec: close gzip writer: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode decompresses payload and parses one record per line.
// Blank lines are skipped; lines may end in "\r\n" or "\n".
func (c *Codec) Decode(payload []byte) (types.Batch, error) {
	zr, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("codec: open gzip reader: %w", err)
	}
	defer zr.Close()

	var batch types.Batch
	r := bufio.NewReader(zr)
	for n := 1; ; n++ {
		line, err := r.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("codec: decompress: %w", err)
		}
		if trimmed := bytes.TrimRight(line, RecordSeparator); len(trimmed) > 0 {
			var rec types.Record
			if uerr := json.Unmarshal(trimmed, &rec); uerr != nil {
				return nil, fmt.Errorf("codec: line %d: %w", n, uerr)
			}
			batch = append(batch, rec)
		}
		if err != nil {
			return batch, nil
		}
	}
}
