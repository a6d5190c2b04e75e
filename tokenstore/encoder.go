package tokenstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const recordFormatVersion = 1

// encodeRecord lays out a record as:
//
//	version(1) | ownerLen(1) | owner | hash(32) | createdAt ms(8) | expiresAt ms(8)
//
// The Lua rotate script depends on this layout.
func encodeRecord(r *Record) ([]byte, error) {
	if len(r.OwnerID) == 0 || len(r.OwnerID) > 255 {
		return nil, errors.New("owner id length out of range")
	}

	var buf bytes.Buffer
	buf.Grow(2 + len(r.OwnerID) + 32 + 16)
	buf.WriteByte(recordFormatVersion)
	buf.WriteByte(byte(len(r.OwnerID)))
	buf.WriteString(r.OwnerID)
	buf.Write(r.TokenHash[:])

	if err := binary.Write(&buf, binary.BigEndian, r.CreatedAt.UnixMilli()); err != nil {
		return nil, err
	}
	if err := binary.Write(&buf, binary.BigEndian, r.ExpiresAt.UnixMilli()); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func decodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != recordFormatVersion {
		return nil, errors.New("invalid record version")
	}

	ownerLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	owner := make([]byte, ownerLen)
	if _, err := io.ReadFull(reader, owner); err != nil {
		return nil, err
	}

	r := &Record{OwnerID: string(owner)}
	if _, err := io.ReadFull(reader, r.TokenHash[:]); err != nil {
		return nil, err
	}

	var createdAt, expiresAt int64
	if err := binary.Read(reader, binary.BigEndian, &createdAt); err != nil {
		return nil, err
	}
	if err := binary.Read(reader, binary.BigEndian, &expiresAt); err != nil {
		return nil, err
	}
	if reader.Len() != 0 {
		return nil, errors.New("trailing bytes in record")
	}
	r.CreatedAt = time.UnixMilli(createdAt)
	r.ExpiresAt = time.UnixMilli(expiresAt)

	return r, nil
}
