package codes

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"time"
)

const (
	codeRecordVersionV1 = 1

	channelEmailByte = 0
	channelPhoneByte = 1
)

// Record is one verification code. Every field except the used flag is fixed
// at construction; the struct exposes read accessors only and the used flag
// transitions exclusively through store operations.
type Record struct {
	target    string
	channel   string
	code      string
	createdAt time.Time
	used      bool
}

// NewRecord builds a fresh unused record with a crypto/rand numeric code.
// It is the only way to obtain a Record outside of decoding stored blobs.
func NewRecord(target, channel string, digits int) (*Record, error) {
	if target == "" {
		return nil, errors.New("codes: empty target")
	}
	if _, err := channelToByte(channel); err != nil {
		return nil, err
	}

	code, err := NewOTP(digits)
	if err != nil {
		return nil, err
	}

	return &Record{
		target:    target,
		channel:   channel,
		code:      code,
		createdAt: time.Now(),
	}, nil
}

func (r *Record) Target() string       { return r.target }
func (r *Record) Channel() string      { return r.channel }
func (r *Record) Code() string         { return r.code }
func (r *Record) CreatedAt() time.Time { return r.createdAt }
func (r *Record) Used() bool           { return r.used }

// ExpiresAt returns the end of the validity window for the given TTL.
func (r *Record) ExpiresAt(ttl time.Duration) time.Time {
	return r.createdAt.Add(ttl)
}

// NewOTP returns a numeric one-time code with the given digit count, each
// digit drawn independently from crypto/rand.
func NewOTP(digits int) (string, error) {
	if digits < 6 || digits > 10 {
		return "", errors.New("invalid otp digits")
	}

	var b strings.Builder
	b.Grow(digits)

	max := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}

	otp := b.String()
	if len(otp) != digits {
		return "", fmt.Errorf("invalid otp generation length")
	}
	return otp, nil
}

// Blob layout, version 1. The used flag sits at byte offset 1 so the issue
// script can supersede a record by rewriting a single byte.
//
//	[0]    version
//	[1]    used flag
//	[2]    channel byte
//	[3:11] created_at, unix milliseconds, big endian
//	[11]   code length, then code bytes
//	[...]  target length (uint16), then target bytes
func encodeCodeRecord(record *Record) ([]byte, error) {
	var buf bytes.Buffer

	buf.WriteByte(codeRecordVersionV1)
	if record.used {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}

	ch, err := channelToByte(record.channel)
	if err != nil {
		return nil, err
	}
	buf.WriteByte(ch)

	if err := binary.Write(&buf, binary.BigEndian, record.createdAt.UnixMilli()); err != nil {
		return nil, err
	}

	if len(record.code) > 255 {
		return nil, errors.New("codes: code too long")
	}
	buf.WriteByte(byte(len(record.code)))
	buf.WriteString(record.code)

	if len(record.target) > 65535 {
		return nil, errors.New("codes: target too long")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.target))); err != nil {
		return nil, err
	}
	buf.WriteString(record.target)

	return buf.Bytes(), nil
}

func decodeCodeRecord(data []byte) (*Record, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != codeRecordVersionV1 {
		return nil, errors.New("invalid code record version")
	}

	usedByte, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}

	channelByte, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	channel, err := channelFromByte(channelByte)
	if err != nil {
		return nil, err
	}

	var createdMilli int64
	if err := binary.Read(reader, binary.BigEndian, &createdMilli); err != nil {
		return nil, err
	}

	codeLen, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	code := make([]byte, codeLen)
	if _, err := io.ReadFull(reader, code); err != nil {
		return nil, err
	}

	var targetLen uint16
	if err := binary.Read(reader, binary.BigEndian, &targetLen); err != nil {
		return nil, err
	}
	target := make([]byte, targetLen)
	if _, err := io.ReadFull(reader, target); err != nil {
		return nil, err
	}

	return &Record{
		target:    string(target),
		channel:   channel,
		code:      string(code),
		createdAt: time.UnixMilli(createdMilli),
		used:      usedByte == 1,
	}, nil
}

func channelToByte(channel string) (byte, error) {
	switch channel {
	case "email":
		return channelEmailByte, nil
	case "phone":
		return channelPhoneByte, nil
	default:
		return 0, errors.New("codes: unknown channel")
	}
}

func channelFromByte(b byte) (string, error) {
	switch b {
	case channelEmailByte:
		return "email", nil
	case channelPhoneByte:
		return "phone", nil
	default:
		return "", errors.New("codes: unknown channel byte")
	}
}
