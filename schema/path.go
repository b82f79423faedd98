// Field path parsing: dotted segment splitting, reserved-word detection,
// and UUID-segment recognition (§4.2 "Field paths are dot-separated;
// reserved words and UUID-looking segments are never treated as dynamic
// object properties").
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package schema

import (
	"strings"

	"github.com/google/uuid"
)

// reservedWords mirrors cmn.Reserved* (§6): these never name a dynamic
// user field, they name schema/document metadata.
var reservedWords = map[string]bool{
	"_id": true, "_type": true, "_value": true, "_index": true,
	"_script": true, "_accuracy": true, "_language": true, "_stop_strategy": true,
	"_stem_strategy": true, "_stem_language": true, "_partial_paths": true,
	"_dynamic": true, "_strict": true, "_date_detection": true,
	"_time_detection": true, "_timedelta_detection": true, "_numeric_detection": true,
	"_geo_detection": true, "_bool_detection": true, "_text_detection": true,
	"_term_detection": true, "_uuid_detection": true, "_namespace": true,
	"_partials": true, "_weight": true, "_position": true, "_spelling": true,
	"_store": true, "_slot": true,
}

// IsReserved reports whether seg is a reserved metadata word at any depth.
func IsReserved(seg string) bool {
	return reservedWords[seg]
}

// IsUUIDSegment reports whether seg parses as a UUID, per §4.2's "UUID
// field indexing" / namespace UUID-path detection.
func IsUUIDSegment(seg string) bool {
	_, err := uuid.Parse(seg)
	return err == nil
}

// Path is a parsed dotted field path: the ordered list of segments plus
// a precomputed flag for whether any segment is a UUID (§4.2
// FlagUUIDPath / FlagHasUUIDPrefix).
type Path struct {
	Segments []string
	HasUUID  bool
}

// ParsePath splits full on '.', classifying UUID segments as it goes.
func ParsePath(full string) Path {
	segs := strings.Split(full, ".")
	p := Path{Segments: segs}
	for _, s := range segs {
		if IsUUIDSegment(s) {
			p.HasUUID = true
			break
		}
	}
	return p
}

// MetaName is the last segment (the field's own name within its parent
// object); FullMetaName is the full dotted path. Both are stored on
// Specification per §3.
func (p Path) MetaName() string {
	if len(p.Segments) == 0 {
		return ""
	}
	return p.Segments[len(p.Segments)-1]
}

func (p Path) FullMetaName() string {
	return strings.Join(p.Segments, ".")
}

// Parent returns the path with its last segment dropped, or the empty
// path at the root.
func (p Path) Parent() Path {
	if len(p.Segments) <= 1 {
		return Path{}
	}
	return Path{Segments: p.Segments[:len(p.Segments)-1]}
}

// PartialPaths returns every suffix path up to cmn.LimitPartialPathsDepth
// segments (§4.2 "namespace partial-path indexing (depth 10)" / §3
// "namespace partial-path terms"), innermost first: "a.b.c" yields
// ["a.b.c", "b.c", "c"].
func (p Path) PartialPaths(maxDepth int) []Path {
	n := len(p.Segments)
	if n == 0 {
		return nil
	}
	start := 0
	if maxDepth > 0 && n > maxDepth {
		start = n - maxDepth
	}
	out := make([]Path, 0, n-start)
	for i := start; i < n; i++ {
		out = append(out, Path{Segments: p.Segments[i:]})
	}
	return out
}

// Join appends seg to p, returning a new Path (paths are logically
// immutable so they can be shared across schema snapshots).
func (p Path) Join(seg string) Path {
	segs := make([]string, len(p.Segments)+1)
	copy(segs, p.Segments)
	segs[len(p.Segments)] = seg
	return Path{Segments: segs, HasUUID: p.HasUUID || IsUUIDSegment(seg)}
}
