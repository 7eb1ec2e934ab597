package dock

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
)

// DecodeScan decodes a scan payload in either of the formats seen on the scan topic:
// - raw LaserScan JSON
// - zlib-compressed LaserScan JSON
func DecodeScan(data []byte) (*LaserScan, error) {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidScan)
	}

	jsonBytes := data
	if data[0] != '{' {
		var err error
		jsonBytes, err = inflateZlib(data)
		if err != nil {
			return nil, fmt.Errorf("%w: not JSON or zlib-compressed JSON", ErrInvalidScan)
		}
	}

	return ParseScanJSON(jsonBytes)
}

// EncodeScan zlib-compresses the JSON form of a scan
func EncodeScan(scan *LaserScan) ([]byte, error) {
	raw, err := MarshalScan(scan)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(raw); err != nil {
		return nil, fmt.Errorf("compressing scan: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("compressing scan: %w", err)
	}
	return buf.Bytes(), nil
}

// inflateZlib decompresses zlib-compressed data
func inflateZlib(data []byte) ([]byte, error) {
	reader, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("creating zlib reader: %w", err)
	}
	defer func() { _ = reader.Close() }()

	decompressed, err := io.ReadAll(io.LimitReader(reader, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("decompressing zlib data: %w", err)
	}
	return decompressed, nil
}
