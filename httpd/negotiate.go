// Content and encoding negotiation, plus pretty-print level selection
// (§4.5 "Content negotiation" / "Encoding negotiation" / "Pretty-
// printing").
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package httpd

import (
	"sort"
	"strconv"
	"strings"
)

// MediaType is one entry of a parsed Accept header (§4.5 "a priority-
// sorted set of (type, subtype, q, indent)").
type MediaType struct {
	Type    string
	Subtype string
	Q       float64
	Indent  int
}

func (m MediaType) String() string { return m.Type + "/" + m.Subtype }

// responseTypes is the fixed list the server matches Accept entries
// against (§4.5).
var responseTypes = []string{
	"application/json",
	"application/msgpack",
	"application/x-msgpack",
	"text/html",
	"text/plain",
}

// ParseAccept parses an Accept header value into a priority-sorted list
// (highest q first, ties broken by header order).
func ParseAccept(header string) []MediaType {
	if header == "" {
		return []MediaType{{Type: "*", Subtype: "*", Q: 1}}
	}
	parts := strings.Split(header, ",")
	out := make([]MediaType, 0, len(parts))
	for _, p := range parts {
		mt := parseOneMediaType(p)
		out = append(out, mt)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Q > out[j].Q })
	return out
}

func parseOneMediaType(p string) MediaType {
	fields := strings.Split(p, ";")
	typeSub := strings.TrimSpace(fields[0])
	mt := MediaType{Q: 1, Indent: -1}
	if idx := strings.Index(typeSub, "/"); idx >= 0 {
		mt.Type = typeSub[:idx]
		mt.Subtype = typeSub[idx+1:]
	} else {
		mt.Type = typeSub
		mt.Subtype = "*"
	}
	for _, f := range fields[1:] {
		f = strings.TrimSpace(f)
		if strings.HasPrefix(f, "q=") {
			if q, err := strconv.ParseFloat(strings.TrimPrefix(f, "q="), 64); err == nil {
				mt.Q = q
			}
		}
		if strings.HasPrefix(f, "indent=") {
			if n, err := strconv.Atoi(strings.TrimPrefix(f, "indent=")); err == nil {
				mt.Indent = n
			}
		}
	}
	return mt
}

// BestContentType matches a parsed Accept list against responseTypes,
// returning "" if nothing matches (§4.5 "406 when no acceptable content
// ... type").
func BestContentType(accepted []MediaType) string {
	for _, want := range accepted {
		for _, have := range responseTypes {
			if mediaTypeMatches(want, have) {
				return have
			}
		}
	}
	return ""
}

func mediaTypeMatches(want MediaType, have string) bool {
	idx := strings.Index(have, "/")
	haveType, haveSub := have[:idx], have[idx+1:]
	if want.Type != "*" && want.Type != haveType {
		return false
	}
	if want.Subtype != "*" && want.Subtype != haveSub {
		return false
	}
	return true
}

// Encoding is the negotiated Accept-Encoding outcome (§4.5 "Encoding
// negotiation").
type Encoding int

const (
	EncodingIdentity Encoding = iota
	EncodingGzip
	EncodingDeflate
	EncodingUnknown
)

// NegotiateEncoding parses an Accept-Encoding header into the best
// supported Encoding.
func NegotiateEncoding(header string) Encoding {
	if header == "" {
		return EncodingIdentity
	}
	best := EncodingIdentity
	bestQ := -1.0
	for _, p := range strings.Split(header, ",") {
		fields := strings.Split(p, ";")
		name := strings.TrimSpace(fields[0])
		q := 1.0
		for _, f := range fields[1:] {
			f = strings.TrimSpace(f)
			if strings.HasPrefix(f, "q=") {
				if v, err := strconv.ParseFloat(strings.TrimPrefix(f, "q="), 64); err == nil {
					q = v
				}
			}
		}
		if q <= 0 {
			continue
		}
		var enc Encoding
		switch name {
		case "gzip":
			enc = EncodingGzip
		case "deflate":
			enc = EncodingDeflate
		case "identity":
			enc = EncodingIdentity
		case "*":
			enc = EncodingGzip
		default:
			continue
		}
		if q > bestQ {
			bestQ, best = q, enc
		}
	}
	return best
}

const (
	defaultPrettyIndent = 4
	maxPrettyIndent     = 16
)

// PrettyLevel resolves the pretty-print indent level from a "?pretty"
// query flag and/or an Accept "indent=N" parameter (§4.5 "Pretty-
// printing. A ?pretty query or accept; indent=N header sets the pretty-
// print level (0–16, default 4 if requested)").
func PrettyLevel(prettyQuery string, acceptIndent int) int {
	if acceptIndent >= 0 {
		return clampIndent(acceptIndent)
	}
	if prettyQuery == "" {
		return 0
	}
	if n, err := strconv.Atoi(prettyQuery); err == nil {
		return clampIndent(n)
	}
	return defaultPrettyIndent
}

func clampIndent(n int) int {
	if n < 0 {
		return 0
	}
	if n > maxPrettyIndent {
		return maxPrettyIndent
	}
	return n
}
