// Locator is the document's stored-body container (§3 "Locator (data blob
// entry)"): a length-prefixed sequence of typed entries bracketed by
// magic bytes, either inline bytes or a (volume, offset, size) pointer
// into an external blob volume.
//
// Grounded on original_source/src/database_data.h's DATABASE_DATA_HEADER_
// MAGIC (0x11) / DATABASE_DATA_FOOTER_MAGIC (0x15) framing and its
// STORED_BLOB_CONTENT_TYPE / STORED_BLOB_DATA entry kinds, reworked into
// Go's binary.Write-based explicit wire encoding.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package indexing

import (
	"bytes"
	"encoding/binary"

	"github.com/xapiand/xapiand/cmn/xerrors"
)

const (
	headerMagic byte = 0x11
	footerMagic byte = 0x15
)

// LocatorKind distinguishes an inline blob from one that lives in an
// external storage volume.
type LocatorKind uint8

const (
	LocatorInplace LocatorKind = iota
	LocatorStored
)

// Locator is one entry of a document's body (§3).
type Locator struct {
	Kind   LocatorKind
	CType  string
	Inline []byte

	Volume int
	Offset int64
	Size   int64
}

// EncodeLocators serializes locs as the header magic 0x11, a uvarint entry
// count, each entry (kind byte, content type, then inline bytes or
// volume/offset/size), and the footer magic 0x15. No 0x00 terminator
// precedes the footer and no trailing payload follows it.
func EncodeLocators(locs []Locator) []byte {
	var buf bytes.Buffer
	buf.WriteByte(headerMagic)
	writeUvarint(&buf, uint64(len(locs)))
	for _, l := range locs {
		buf.WriteByte(byte(l.Kind))
		writeString(&buf, l.CType)
		switch l.Kind {
		case LocatorInplace:
			writeBytes(&buf, l.Inline)
		case LocatorStored:
			writeUvarint(&buf, uint64(l.Volume))
			var off, sz [8]byte
			binary.BigEndian.PutUint64(off[:], uint64(l.Offset))
			binary.BigEndian.PutUint64(sz[:], uint64(l.Size))
			buf.Write(off[:])
			buf.Write(sz[:])
		}
	}
	buf.WriteByte(footerMagic)
	return buf.Bytes()
}

// DecodeLocators is the inverse of EncodeLocators.
func DecodeLocators(data []byte) ([]Locator, error) {
	r := bytes.NewReader(data)
	h, err := r.ReadByte()
	if err != nil || h != headerMagic {
		return nil, xerrors.NewSerialisationError(err, "locator: missing header magic")
	}
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, xerrors.NewSerialisationError(err, "locator: truncated count")
	}
	locs := make([]Locator, 0, n)
	for i := uint64(0); i < n; i++ {
		kindByte, err := r.ReadByte()
		if err != nil {
			return nil, xerrors.NewSerialisationError(err, "locator: truncated entry %d", i)
		}
		l := Locator{Kind: LocatorKind(kindByte)}
		l.CType, err = readString(r)
		if err != nil {
			return nil, xerrors.NewSerialisationError(err, "locator: bad content type")
		}
		switch l.Kind {
		case LocatorInplace:
			l.Inline, err = readBytes(r)
			if err != nil {
				return nil, xerrors.NewSerialisationError(err, "locator: bad inline payload")
			}
		case LocatorStored:
			vol, err := binary.ReadUvarint(r)
			if err != nil {
				return nil, xerrors.NewSerialisationError(err, "locator: bad volume")
			}
			l.Volume = int(vol)
			var off, sz [8]byte
			if _, err := r.Read(off[:]); err != nil {
				return nil, xerrors.NewSerialisationError(err, "locator: bad offset")
			}
			if _, err := r.Read(sz[:]); err != nil {
				return nil, xerrors.NewSerialisationError(err, "locator: bad size")
			}
			l.Offset = int64(binary.BigEndian.Uint64(off[:]))
			l.Size = int64(binary.BigEndian.Uint64(sz[:]))
		default:
			return nil, xerrors.NewSerialisationError(nil, "locator: unknown kind %d", kindByte)
		}
		locs = append(locs, l)
	}
	f, err := r.ReadByte()
	if err != nil || f != footerMagic {
		return nil, xerrors.NewSerialisationError(err, "locator: missing footer magic")
	}
	return locs, nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func writeString(buf *bytes.Buffer, s string) {
	writeBytes(buf, []byte(s))
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := binary.ReadUvarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := r.Read(b); err != nil && n > 0 {
		return nil, err
	}
	return b, nil
}

func readString(r *bytes.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}
