package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"io"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
	"github.com/zeebo/xxh3"
)

// Table file layout:
//
//	[Magic "PTBL"][FormatVersion u32][PayloadLen u64][Checksum u64][Payload...]
//
// Payload is zstd-compressed JSON. Checksum is xxh3-64 over the compressed payload.
const (
	tableMagic    = "PTBL"
	formatVersion = uint32(1)
	headerSize    = 24
	tableExt      = ".ptbl"
	lockExt       = ".lock"
)

type tableHeader struct {
	Version    uint32
	PayloadLen uint64
	Checksum   uint64
}

// tableData is the decoded form of one table.
type tableData struct {
	Table   string           `json:"table"`
	Entries map[string]Entry `json:"entries"`
}

func newTableData(name string) *tableData {
	return &tableData{Table: name, Entries: make(map[string]Entry)}
}

func (t *tableData) clone() *tableData {
	out := &tableData{Table: t.Table, Entries: make(map[string]Entry, len(t.Entries)+1)}
	for k, v := range t.Entries {
		out.Entries[k] = v
	}
	return out
}

var (
	zstdEncoderPool sync.Pool
	zstdDecoderPool sync.Pool
)

func getZstdEncoder() *zstd.Encoder {
	if v := zstdEncoderPool.Get(); v != nil {
		return v.(*zstd.Encoder)
	}
	enc, _ := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	return enc
}

func getZstdDecoder() *zstd.Decoder {
	if v := zstdDecoderPool.Get(); v != nil {
		return v.(*zstd.Decoder)
	}
	dec, _ := zstd.NewReader(nil)
	return dec
}

// encodeTable serializes t into the table file format.
func encodeTable(t *tableData) ([]byte, error) {
	raw, err := json.Marshal(t)
	if err != nil {
		return nil, errors.Wrap(err, "marshal table")
	}

	enc := getZstdEncoder()
	payload := enc.EncodeAll(raw, nil)
	zstdEncoderPool.Put(enc)

	buf := make([]byte, headerSize, headerSize+len(payload))
	copy(buf[0:4], tableMagic)
	binary.LittleEndian.PutUint32(buf[4:8], formatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(payload)))
	binary.LittleEndian.PutUint64(buf[16:24], xxh3.Hash(payload))
	return append(buf, payload...), nil
}

// readHeader reads and validates the fixed-size header from r.
func readHeader(r io.Reader) (tableHeader, error) {
	var b [headerSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return tableHeader{}, errors.Wrap(ErrCorruptTable, "short header")
		}
		return tableHeader{}, errors.Wrap(err, "read header")
	}
	if string(b[0:4]) != tableMagic {
		return tableHeader{}, errors.Wrapf(ErrCorruptTable, "bad magic %q", b[0:4])
	}
	h := tableHeader{
		Version:    binary.LittleEndian.Uint32(b[4:8]),
		PayloadLen: binary.LittleEndian.Uint64(b[8:16]),
		Checksum:   binary.LittleEndian.Uint64(b[16:24]),
	}
	if h.Version != formatVersion {
		return tableHeader{}, errors.Wrapf(ErrCorruptTable, "unsupported format version %d", h.Version)
	}
	return h, nil
}

// decodePayload verifies and decodes a payload described by h.
func decodePayload(h tableHeader, payload []byte) (*tableData, error) {
	if uint64(len(payload)) != h.PayloadLen {
		return nil, errors.Wrapf(ErrCorruptTable, "payload length %d, header says %d", len(payload), h.PayloadLen)
	}
	if sum := xxh3.Hash(payload); sum != h.Checksum {
		return nil, errors.Wrapf(ErrCorruptTable, "checksum mismatch: %016x != %016x", sum, h.Checksum)
	}

	dec := getZstdDecoder()
	raw, err := dec.DecodeAll(payload, nil)
	zstdDecoderPool.Put(dec)
	if err != nil {
		return nil, errors.Wrapf(ErrCorruptTable, "decompress: %v", err)
	}

	t := &tableData{}
	if err := json.NewDecoder(bytes.NewReader(raw)).Decode(t); err != nil {
		return nil, errors.Wrapf(ErrCorruptTable, "decode: %v", err)
	}
	if t.Entries == nil {
		t.Entries = make(map[string]Entry)
	}
	return t, nil
}

// decodeTable decodes a complete table file image.
func decodeTable(data []byte) (*tableData, tableHeader, error) {
	h, err := readHeader(bytes.NewReader(data))
	if err != nil {
		return nil, tableHeader{}, err
	}
	t, err := decodePayload(h, data[headerSize:])
	if err != nil {
		return nil, tableHeader{}, err
	}
	return t, h, nil
}
