// Schema is the copy-on-write immutable tree of §4.2: every mutation
// (first concretization of a field, dynamic toggle flip, accuracy
// override) builds a new tree sharing unchanged subtrees with the old one
// and publishes it atomically, so concurrent indexing goroutines always
// see a consistent, never-torn snapshot.
//
// Grounded on the teacher's cluster/map.go Smap publishing discipline
// (build a full new value, then atomically swap a single pointer — never
// mutate a published Smap in place) and on original_source/src/schema.h's
// specification_t / field-tree split, translated into Go's
// atomic.Pointer-based COW idiom.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package schema

import (
	"sync"

	"go.uber.org/atomic"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/cmn/xerrors"
)

// Node is one field in the schema tree: its own specification plus its
// dynamic/explicit children, keyed by meta-name segment.
type Node struct {
	Spec     Specification
	Children map[string]*Node
}

func newNode() *Node {
	return &Node{Children: make(map[string]*Node)}
}

// clone makes a shallow copy of n suitable for COW mutation: the
// Children map itself is copied (new map, same child pointers), so a
// caller can freely add/replace an entry in the clone without disturbing
// the original that other readers may still be holding.
func (n *Node) clone() *Node {
	c := &Node{Spec: n.Spec, Children: make(map[string]*Node, len(n.Children))}
	for k, v := range n.Children {
		c.Children[k] = v
	}
	return c
}

// tree is the full published snapshot (§3 "Schema ... an immutable,
// versioned tree").
type tree struct {
	root *Node
	rev  uint64
}

// Schema owns one Endpoints's field tree. Reads never lock; every write
// takes mu to serialize the build-then-publish sequence (§4.2 "first
// concretization ... wins; schema mutation is otherwise append-only").
type Schema struct {
	mu  sync.Mutex
	cur atomic.Pointer[tree]
}

// New returns an empty schema with flags defaulted per DefaultFlags.
func New() *Schema {
	s := &Schema{}
	root := newNode()
	root.Spec.Flags = DefaultFlags()
	s.cur.Store(&tree{root: root})
	return s
}

// Revision is the current snapshot's monotonically increasing version.
func (s *Schema) Revision() uint64 { return s.cur.Load().rev }

// Lookup returns the Specification at the given dotted path and whether
// it has ever been concretized (§3 "A field starts untyped ... and
// subsequent writes must agree").
func (s *Schema) Lookup(fullPath string) (Specification, bool) {
	p := ParsePath(fullPath)
	n := s.cur.Load().root
	for _, seg := range p.Segments {
		child, ok := n.Children[seg]
		if !ok {
			return Specification{}, false
		}
		n = child
	}
	return n.Spec, n.Spec.Flags.Has(FlagConcrete)
}

// walkForWrite returns the chain of nodes from root to the target path,
// cloning each one so the caller can mutate the leaf and splice the
// cloned chain back as a new tree without disturbing the old snapshot.
// Missing intermediate segments are created as plain object nodes.
func walkForWrite(root *Node, segs []string) (*Node, []*Node, []string) {
	chain := make([]*Node, 0, len(segs)+1)
	newRoot := root.clone()
	chain = append(chain, newRoot)
	cur := newRoot
	for _, seg := range segs {
		child, ok := cur.Children[seg]
		if !ok {
			child = newNode()
			child.Spec.Flags = DefaultFlags()
		} else {
			child = child.clone()
		}
		cur.Children[seg] = child
		chain = append(chain, child)
		cur = child
	}
	return newRoot, chain, segs
}

// Concretize binds fullPath to ConcreteType t the first time it is
// observed, deriving Prefix/Slot/Accuracy, and on every subsequent call
// enforces the write-once contract: a mismatched type is a CastError
// unless the field is still dynamic/untyped (§4.2 "type-freeze-on-first-
// use"; §8 property 3: "once a field is concretized to a type, subsequent
// writes of an incompatible type are rejected with CastError, never
// silently coerced").
func (s *Schema) Concretize(fullPath string, t ConcreteType) (Specification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.cur.Load()
	p := ParsePath(fullPath)
	if IsReserved(p.MetaName()) {
		return Specification{}, xerrors.NewClientError("%s is a reserved field name", fullPath)
	}

	newRoot, chain, _ := walkForWrite(old.root, p.Segments)
	leaf := chain[len(chain)-1]

	if leaf.Spec.Flags.Has(FlagConcrete) {
		if leaf.Spec.Concrete != t {
			return Specification{}, xerrors.NewCastError(
				"field %q is already concretized as %s, cannot reuse as %s", fullPath, leaf.Spec.Concrete, t)
		}
		return leaf.Spec, nil
	}

	if need := detectionFlagFor(t); need != 0 && !leaf.Spec.Flags.Has(need) {
		return Specification{}, xerrors.NewMissingTypeError(
			"field %q: dynamic detection for type %s is disabled", fullPath, t)
	}

	leaf.Spec.Concrete = t
	leaf.Spec.MetaName = p.MetaName()
	leaf.Spec.FullMetaName = p.FullMetaName()
	leaf.Spec.Prefix = DerivePrefix(leaf.Spec.FullMetaName, t)
	leaf.Spec.Slot = DeriveSlot(leaf.Spec.FullMetaName)
	if t.HasAccuracyLadder() && len(leaf.Spec.Accuracy.Buckets) == 0 {
		leaf.Spec.Accuracy = DefaultAccuracy(t)
	}
	leaf.Spec.Flags = leaf.Spec.Flags.Set(FlagConcrete).Set(FlagComplete)
	if p.HasUUID {
		leaf.Spec.Flags = leaf.Spec.Flags.Set(FlagUUIDPath)
	}

	s.cur.Store(&tree{root: newRoot, rev: old.rev + 1})
	return leaf.Spec, nil
}

// SetNamespace marks fullPath (and every node below it) as a namespace
// root (§4.2 "namespace partial-path indexing"): documents written under
// it get partial-path terms generated instead of requiring every subpath
// to be concretized individually.
func (s *Schema) SetNamespace(fullPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load()
	p := ParsePath(fullPath)
	newRoot, chain, _ := walkForWrite(old.root, p.Segments)
	leaf := chain[len(chain)-1]
	leaf.Spec.Flags = leaf.Spec.Flags.Set(FlagIsNamespace)
	s.cur.Store(&tree{root: newRoot, rev: old.rev + 1})
}

// IsNamespace reports whether fullPath, or one of its ancestors, was
// marked as a namespace root.
func (s *Schema) IsNamespace(fullPath string) bool {
	p := ParsePath(fullPath)
	n := s.cur.Load().root
	if n.Spec.Flags.Has(FlagIsNamespace) {
		return true
	}
	for _, seg := range p.Segments {
		child, ok := n.Children[seg]
		if !ok {
			return false
		}
		n = child
		if n.Spec.Flags.Has(FlagIsNamespace) {
			return true
		}
	}
	return false
}

// NamespaceTerms returns the boolean partial-path terms a value at
// fullPath under a namespace should generate, innermost segment first,
// capped at cmn.LimitPartialPathsDepth (§4.2 "namespace partial-path
// indexing (depth 10)").
func NamespaceTerms(fullPath string, prefix Prefix) []string {
	p := ParsePath(fullPath)
	partials := p.PartialPaths(cmn.LimitPartialPathsDepth)
	terms := make([]string, len(partials))
	for i, pp := range partials {
		terms[i] = prefix.Field + ":" + pp.FullMetaName()
	}
	return terms
}

// Dump renders the current snapshot as a nested map of meta-name ->
// field description, for the `_schema` read command (§6). Only
// concretized fields are reported; in-progress/untyped nodes created as
// mere path scaffolding are omitted.
func (s *Schema) Dump() map[string]interface{} {
	root := s.cur.Load().root
	out := make(map[string]interface{}, len(root.Children))
	dumpChildren(root, out)
	return out
}

func dumpChildren(n *Node, out map[string]interface{}) {
	for name, child := range n.Children {
		entry := map[string]interface{}{}
		if child.Spec.Flags.Has(FlagConcrete) {
			entry["type"] = child.Spec.Concrete.String()
			entry["slot"] = child.Spec.Slot
		}
		if len(child.Children) > 0 {
			sub := make(map[string]interface{}, len(child.Children))
			dumpChildren(child, sub)
			entry["properties"] = sub
		}
		out[name] = entry
	}
}

// Strict reports whether fullPath's nearest ancestor (including itself)
// has FlagStrict set, meaning unknown subfields under it are rejected
// instead of dynamically created (§4.2 "Strict ... rejects undeclared
// fields instead of creating them"). Sticky once set: a strict ancestor
// binds every descendant regardless of the descendant's own flags.
func (s *Schema) Strict(fullPath string) bool {
	p := ParsePath(fullPath)
	n := s.cur.Load().root
	strict := n.Spec.Flags.Has(FlagStrict)
	for _, seg := range p.Segments {
		child, ok := n.Children[seg]
		if !ok {
			return strict
		}
		n = child
		if n.Spec.Flags.Has(FlagStrict) {
			strict = true
		}
	}
	return strict
}

// Dynamic reports whether new fields may still be created under fullPath
// (§4.2 "dynamic=false forbids creating new fields"). Also sticky: once
// any node from root to fullPath has FlagDynamic cleared, the whole
// subtree below it is closed to new fields even if a deeper node's own
// flags still carry the (inherited-at-creation) default of dynamic=true.
func (s *Schema) Dynamic(fullPath string) bool {
	p := ParsePath(fullPath)
	n := s.cur.Load().root
	dynamic := n.Spec.Flags.Has(FlagDynamic)
	for _, seg := range p.Segments {
		child, ok := n.Children[seg]
		if !ok {
			return dynamic
		}
		n = child
		if !n.Spec.Flags.Has(FlagDynamic) {
			dynamic = false
		}
	}
	return dynamic
}

// SetStrict sets or clears FlagStrict on the node at fullPath (creating
// scaffolding nodes as needed), exposed via `PUT _schema` (§6) so a
// caller can lock a subtree against auto-detected fields ahead of
// indexing.
func (s *Schema) SetStrict(fullPath string, strict bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load()
	p := ParsePath(fullPath)
	newRoot, chain, _ := walkForWrite(old.root, p.Segments)
	leaf := chain[len(chain)-1]
	if strict {
		leaf.Spec.Flags = leaf.Spec.Flags.Set(FlagStrict)
	} else {
		leaf.Spec.Flags = leaf.Spec.Flags.Clear(FlagStrict)
	}
	s.cur.Store(&tree{root: newRoot, rev: old.rev + 1})
}

// SetDynamic sets or clears FlagDynamic on the node at fullPath, exposed
// via `PUT _schema` (§6) so a caller can forbid new-field creation under
// a subtree ahead of indexing.
func (s *Schema) SetDynamic(fullPath string, dynamic bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cur.Load()
	p := ParsePath(fullPath)
	newRoot, chain, _ := walkForWrite(old.root, p.Segments)
	leaf := chain[len(chain)-1]
	if dynamic {
		leaf.Spec.Flags = leaf.Spec.Flags.Set(FlagDynamic)
	} else {
		leaf.Spec.Flags = leaf.Spec.Flags.Clear(FlagDynamic)
	}
	s.cur.Store(&tree{root: newRoot, rev: old.rev + 1})
}
