// Package endpoint implements the Endpoint / Endpoints value types of §3.
// Grounded on original_source/src/endpoint.h (field set, hash/equality
// contract) and adapted into the teacher's value-type + xxhash idiom
// (cluster/map.go's Snode.Digest uses xxhash.ChecksumString64S the same
// way Endpoint.Hash does here).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package endpoint

import (
	"fmt"
	"strings"

	"github.com/OneOfOne/xxhash"
	"github.com/google/uuid"
)

// seed mirrors the teacher's cmn.MLCG32 constant passed to
// xxhash.ChecksumString64S — an arbitrary, fixed seed so hashes are stable
// across process restarts (needed since Endpoints.Hash is a pool lookup
// key, §4.1).
const seed = 0x9e3779b9

// Endpoint names one local or remote index shard (§3).
type Endpoint struct {
	Host     string
	Port     int
	Path     string
	User     string
	Password string
	Search   string
	NodeName string
}

// IsLocal reports whether this endpoint addresses a shard on this node
// (§3: "host (empty ⇒ local)").
func (e Endpoint) IsLocal() bool { return e.Host == "" }

// Normalize canonicalizes Path: strip a leading slash (never start with
// two), and lower/canonicalize any UUID path segment (§3 invariant).
// uuidPartition, when true, additionally shards the canonical UUID by its
// high byte the way §6's uuid_partition option requests, producing a
// two-level "xx/uuid" path prefix.
func (e Endpoint) Normalize(uuidPartition bool) Endpoint {
	p := strings.TrimPrefix(e.Path, "/")
	for strings.HasPrefix(p, "/") {
		p = p[1:]
	}
	segs := strings.Split(p, "/")
	for i, s := range segs {
		if id, err := uuid.Parse(s); err == nil {
			canon := id.String()
			if uuidPartition {
				segs[i] = fmt.Sprintf("%02x/%s", id[0], canon)
			} else {
				segs[i] = canon
			}
		}
	}
	e.Path = strings.Join(segs, "/")
	return e
}

// Hash is the equality/lookup key: a hash of all components (§3).
func (e Endpoint) Hash() uint64 {
	h := xxhash.NewS64(seed)
	_, _ = h.WriteString(e.Host)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(fmt.Sprintf("%d", e.Port))
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(e.Path)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(e.User)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(e.Password)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(e.Search)
	_, _ = h.WriteString(":")
	_, _ = h.WriteString(e.NodeName)
	return h.Sum64()
}

func (e Endpoint) Equals(o Endpoint) bool { return e.Hash() == o.Hash() }

func (e Endpoint) Empty() bool {
	return e.Path == "" && e.Port == 0 && e.User == "" && e.Password == "" &&
		e.Host == "" && e.Search == "" && e.NodeName == ""
}

func (e Endpoint) String() string {
	var b strings.Builder
	if e.Host != "" {
		b.WriteString(e.Host)
		if e.Port != 0 {
			fmt.Fprintf(&b, ":%d", e.Port)
		}
		b.WriteByte('/')
	}
	b.WriteString(e.Path)
	if e.Search != "" {
		b.WriteByte('?')
		b.WriteString(e.Search)
	}
	return b.String()
}

// Endpoints is an ordered, de-duplicated set of shards queried together
// (§3): insertion order is preserved for deterministic per-shard iteration,
// duplicates (by Hash) are dropped.
type Endpoints struct {
	list []Endpoint
	seen map[uint64]struct{}
}

func New() *Endpoints {
	return &Endpoints{seen: make(map[uint64]struct{})}
}

func Of(eps ...Endpoint) *Endpoints {
	e := New()
	for _, ep := range eps {
		e.Add(ep)
	}
	return e
}

// Add appends endpoint if not already present (by Hash), preserving
// insertion order.
func (e *Endpoints) Add(ep Endpoint) {
	if e.seen == nil {
		e.seen = make(map[uint64]struct{})
	}
	h := ep.Hash()
	if _, ok := e.seen[h]; ok {
		return
	}
	e.seen[h] = struct{}{}
	e.list = append(e.list, ep)
}

func (e *Endpoints) Len() int              { return len(e.list) }
func (e *Endpoints) Empty() bool           { return len(e.list) == 0 }
func (e *Endpoints) At(i int) Endpoint     { return e.list[i] }
func (e *Endpoints) All() []Endpoint       { return e.list }

// Hash is the XOR of component hashes (§3), order-independent by
// construction (XOR is commutative) which matches the C++ original's
// unordered_set-backed hash.
func (e *Endpoints) Hash() uint64 {
	var h uint64
	for _, ep := range e.list {
		h ^= ep.Hash()
	}
	return h
}

func (e *Endpoints) String() string {
	parts := make([]string, len(e.list))
	for i, ep := range e.list {
		parts[i] = ep.String()
	}
	return strings.Join(parts, ",")
}
