package tokens

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"time"
)

const tokenRecordVersionV1 = 1

const (
	// TypeAccess is an exported constant or variable used by the authentication engine.
	TypeAccess byte = 0
	// TypeRefresh is an exported constant or variable used by the authentication engine.
	TypeRefresh byte = 1
)

// Record is one persisted token. The signed JWT string is derived from it;
// the record is the source of truth for revocation: deleting it kills the
// token no matter how long the signature stays valid.
type Record struct {
	ID        int64
	UserID    int64
	Type      byte
	DeviceID  string
	UserAgent string
	IP        string
	CreatedAt int64 // unix milliseconds
	ExpiresAt int64 // unix milliseconds
}

// Expired reports whether the record's own expiry has lapsed. Redis TTLs
// normally remove expired records first; this is the backstop read-time check.
func (r *Record) Expired(now time.Time) bool {
	return now.UnixMilli() >= r.ExpiresAt
}

// sessionEntry is the per-device index value: which access/refresh pair
// currently forms the session, and when it was created.
type sessionEntry struct {
	AccessID  int64
	RefreshID int64
	CreatedAt int64 // unix milliseconds
}

func encodeTokenRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(tokenRecordVersionV1)
	buf.WriteByte(record.Type)

	for _, v := range []int64{record.ID, record.UserID, record.CreatedAt, record.ExpiresAt} {
		if err := binary.Write(&buf, binary.BigEndian, v); err != nil {
			return nil, err
		}
	}

	for _, s := range []string{record.DeviceID, record.UserAgent, record.IP} {
		if len(s) > 65535 {
			return nil, errors.New("tokens: field too long")
		}
		if err := binary.Write(&buf, binary.BigEndian, uint16(len(s))); err != nil {
			return nil, err
		}
		buf.WriteString(s)
	}

	return buf.Bytes(), nil
}

func decodeTokenRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != tokenRecordVersionV1 {
		return nil, errors.New("invalid token record version")
	}

	typ, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if typ != TypeAccess && typ != TypeRefresh {
		return nil, errors.New("invalid token record type")
	}

	record := &Record{Type: typ}

	for _, dst := range []*int64{&record.ID, &record.UserID, &record.CreatedAt, &record.ExpiresAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return nil, err
		}
	}

	for _, dst := range []*string{&record.DeviceID, &record.UserAgent, &record.IP} {
		var n uint16
		if err := binary.Read(reader, binary.BigEndian, &n); err != nil {
			return nil, err
		}
		field := make([]byte, n)
		if _, err := io.ReadFull(reader, field); err != nil {
			return nil, err
		}
		*dst = string(field)
	}

	return record, nil
}

func encodeSessionEntry(entry sessionEntry) []byte {
	var buf bytes.Buffer
	_ = binary.Write(&buf, binary.BigEndian, entry.AccessID)
	_ = binary.Write(&buf, binary.BigEndian, entry.RefreshID)
	_ = binary.Write(&buf, binary.BigEndian, entry.CreatedAt)
	return buf.Bytes()
}

func decodeSessionEntry(data []byte) (sessionEntry, error) {
	var entry sessionEntry
	if len(data) != 24 {
		return entry, errors.New("invalid session entry size")
	}
	reader := bytes.NewReader(data)
	for _, dst := range []*int64{&entry.AccessID, &entry.RefreshID, &entry.CreatedAt} {
		if err := binary.Read(reader, binary.BigEndian, dst); err != nil {
			return entry, err
		}
	}
	return entry, nil
}
