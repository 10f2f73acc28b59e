package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/wbrown/janus-tabular/tabular"
)

// Key layout (all integers big-endian):
//
//	entity index: 'e' | len(entity) uint16 | entity                          → first epoch uint64
//	row facts:    'r' | len(entity) uint16 | entity | epoch uint64 | seq uint64 → msgpack cell
//
// The length prefix keeps any byte sequence legal in identifiers while making
// per-entity prefixes unambiguous. Facts of one entity sort by epoch, then by
// append sequence, so a prefix scan returns them in append order.
const (
	entityKeyPrefix byte = 'e'
	rowKeyPrefix    byte = 'r'
)

func encodeEntityKey(e tabular.Entity) []byte {
	key := make([]byte, 0, 3+len(e))
	key = append(key, entityKeyPrefix)
	key = binary.BigEndian.AppendUint16(key, uint16(len(e)))
	return append(key, e...)
}

func decodeEntityKey(key []byte) (tabular.Entity, error) {
	if len(key) < 3 || key[0] != entityKeyPrefix {
		return "", fmt.Errorf("malformed entity key %x", key)
	}
	n := int(binary.BigEndian.Uint16(key[1:3]))
	if len(key) != 3+n {
		return "", fmt.Errorf("entity key length mismatch: header says %d, have %d", n, len(key)-3)
	}
	return tabular.Entity(key[3:]), nil
}

// rowPrefix is the scan prefix covering every fact of e
func rowPrefix(e tabular.Entity) []byte {
	key := make([]byte, 0, 3+len(e)+16)
	key = append(key, rowKeyPrefix)
	key = binary.BigEndian.AppendUint16(key, uint16(len(e)))
	return append(key, e...)
}

func encodeRowKey(e tabular.Entity, epoch, seq uint64) []byte {
	key := rowPrefix(e)
	key = binary.BigEndian.AppendUint64(key, epoch)
	return binary.BigEndian.AppendUint64(key, seq)
}

// rowKeyEpoch extracts the epoch from a row key produced for prefix
func rowKeyEpoch(prefix, key []byte) (uint64, error) {
	if len(key) != len(prefix)+16 || !bytes.HasPrefix(key, prefix) {
		return 0, fmt.Errorf("malformed row key %x", key)
	}
	return binary.BigEndian.Uint64(key[len(prefix):]), nil
}

func encodeEpoch(epoch uint64) []byte {
	return binary.BigEndian.AppendUint64(nil, epoch)
}

func decodeEpoch(val []byte) (uint64, error) {
	if len(val) != 8 {
		return 0, fmt.Errorf("malformed epoch value %x", val)
	}
	return binary.BigEndian.Uint64(val), nil
}

// storedCell is the msgpack shape of a cell
type storedCell struct {
	Attr      string    `msgpack:"a"`
	Kind      uint8     `msgpack:"k"`
	Str       string    `msgpack:"s,omitempty"`
	Num       float64   `msgpack:"n,omitempty"`
	ValueTime time.Time `msgpack:"v"`
	Time      time.Time `msgpack:"t"`
}

func encodeCell(c tabular.Cell) ([]byte, error) {
	sc := storedCell{
		Attr: string(c.A),
		Kind: uint8(c.V.Kind()),
		Time: c.T,
	}
	switch c.V.Kind() {
	case tabular.KindString:
		sc.Str, _ = c.V.AsString()
	case tabular.KindNumber:
		sc.Num, _ = c.V.AsNumber()
	case tabular.KindTimestamp:
		sc.ValueTime, _ = c.V.AsTimestamp()
	}

	var buf bytes.Buffer
	enc := msgpack.GetEncoder()
	enc.Reset(&buf)
	err := enc.Encode(&sc)
	msgpack.PutEncoder(enc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cell %s using MsgPack: %w", c, err)
	}
	return buf.Bytes(), nil
}

func decodeCell(data []byte) (tabular.Cell, error) {
	var sc storedCell
	dec := msgpack.GetDecoder()
	dec.Reset(bytes.NewReader(data))
	err := dec.Decode(&sc)
	msgpack.PutDecoder(dec)
	if err != nil {
		return tabular.Cell{}, fmt.Errorf("failed to decode msgpack cell: %w", err)
	}

	var v tabular.Value
	switch tabular.ValueKind(sc.Kind) {
	case tabular.KindString:
		v = tabular.String(sc.Str)
	case tabular.KindNumber:
		v = tabular.Number(sc.Num)
	case tabular.KindTimestamp:
		v = tabular.Timestamp(sc.ValueTime)
	default:
		return tabular.Cell{}, fmt.Errorf("stored cell has unknown value kind %d", sc.Kind)
	}
	return tabular.NewCell(tabular.Attribute(sc.Attr), v, sc.Time), nil
}
