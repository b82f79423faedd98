// Response envelope assembly and serialization: the "#"-prefixed key
// convention of §6, JSON/MsgPack encoding, and compression of the whole
// encoded body in memory (§4.5 "Encoding negotiation"); nothing is
// streamed.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package httpd

import (
	"bytes"

	jsoniter "github.com/json-iterator/go"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/tinylib/msgp/msgp"

	"github.com/xapiand/xapiand/cmn"
)

// Envelope is the ordered set of top-level response keys (§6).
// EncodeMsgPack walks Fields in insertion order; EncodeJSON goes through a
// map, so JSON output lists the keys in sorted order instead.
type Envelope struct {
	Fields []EnvelopeField
}

type EnvelopeField struct {
	Key   string
	Value interface{}
}

func NewEnvelope() *Envelope { return &Envelope{} }

func (e *Envelope) Set(key string, v interface{}) *Envelope {
	e.Fields = append(e.Fields, EnvelopeField{Key: key, Value: v})
	return e
}

func (e *Envelope) asMap() map[string]interface{} {
	m := make(map[string]interface{}, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Key] = f.Value
	}
	return m
}

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// EncodeJSON serializes the envelope as JSON, indenting with `indent`
// spaces when indent > 0 (§4.5 "Pretty-printing").
func EncodeJSON(e *Envelope, indent int) ([]byte, error) {
	if indent > 0 {
		return jsonAPI.MarshalIndent(e.asMap(), "", spaces(indent))
	}
	return jsonAPI.Marshal(e.asMap())
}

func spaces(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = ' '
	}
	return string(b)
}

// EncodeMsgPack serializes the envelope as MessagePack using tinylib/
// msgp's runtime Writer primitives directly (no code generation: each
// value's Go dynamic type is dispatched by hand since the envelope's
// field set varies per response).
func EncodeMsgPack(e *Envelope) ([]byte, error) {
	var buf bytes.Buffer
	w := msgp.NewWriter(&buf)
	if err := w.WriteMapHeader(uint32(len(e.Fields))); err != nil {
		return nil, err
	}
	for _, f := range e.Fields {
		if err := w.WriteString(f.Key); err != nil {
			return nil, err
		}
		if err := writeMsgpValue(w, f.Value); err != nil {
			return nil, err
		}
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeMsgpValue(w *msgp.Writer, v interface{}) error {
	switch x := v.(type) {
	case nil:
		return w.WriteNil()
	case string:
		return w.WriteString(x)
	case bool:
		return w.WriteBool(x)
	case int:
		return w.WriteInt(x)
	case int64:
		return w.WriteInt64(x)
	case uint64:
		return w.WriteUint64(x)
	case float64:
		return w.WriteFloat64(x)
	case []byte:
		return w.WriteBytes(x)
	case []string:
		if err := w.WriteArrayHeader(uint32(len(x))); err != nil {
			return err
		}
		for _, s := range x {
			if err := w.WriteString(s); err != nil {
				return err
			}
		}
		return nil
	case []interface{}:
		if err := w.WriteArrayHeader(uint32(len(x))); err != nil {
			return err
		}
		for _, el := range x {
			if err := writeMsgpValue(w, el); err != nil {
				return err
			}
		}
		return nil
	case map[string]interface{}:
		if err := w.WriteMapHeader(uint32(len(x))); err != nil {
			return err
		}
		for k, el := range x {
			if err := w.WriteString(k); err != nil {
				return err
			}
			if err := writeMsgpValue(w, el); err != nil {
				return err
			}
		}
		return nil
	default:
		return w.WriteString(jsonFallback(x))
	}
}

func jsonFallback(v interface{}) string {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// CompressIfSmaller applies the negotiated Encoding to body, returning
// the compressed form and true only if it is strictly smaller than the
// raw body (§4.5 "The compressed variant is emitted only if strictly
// smaller than the raw").
func CompressIfSmaller(body []byte, enc Encoding) ([]byte, bool) {
	switch enc {
	case EncodingGzip:
		var buf bytes.Buffer
		gw := gzip.NewWriter(&buf)
		if _, err := gw.Write(body); err != nil {
			return body, false
		}
		if err := gw.Close(); err != nil {
			return body, false
		}
		if buf.Len() < len(body) {
			return buf.Bytes(), true
		}
	case EncodingDeflate:
		var buf bytes.Buffer
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return body, false
		}
		if _, err := fw.Write(body); err != nil {
			return body, false
		}
		if err := fw.Close(); err != nil {
			return body, false
		}
		if buf.Len() < len(body) {
			return buf.Bytes(), true
		}
	}
	return body, false
}

// StatusEnvelope builds the minimal {#status, #message} error envelope
// (§6 response envelope keys).
func StatusEnvelope(status int, message string) *Envelope {
	e := NewEnvelope()
	e.Set(cmn.EnvStatus, status)
	if message != "" {
		e.Set(cmn.EnvMessage, message)
	}
	return e
}
