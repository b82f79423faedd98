// Package cluster models cluster participants (§3 Node) and the global
// node registry, following the teacher's cluster/map.go Snode/NodeMap
// idiom: value-ish nodes keyed by a lower-cased name, with atomically
// swappable "current" references (Snode's Smap.Primary ↔ our local_node /
// leader_node).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cluster

import (
	"fmt"
	"net"
	"strings"
	"sync"

	"go.uber.org/atomic"

	"github.com/xapiand/xapiand/cmn/debug"
)

// Node is a cluster participant (§3).
type Node struct {
	Name       string
	Addr       net.IP
	HTTPPort   int
	BinaryPort int
	Idx        uint64 // stable numeric id
	Touched    int64  // epoch seconds; 0 = inactive
}

func (n *Node) Active() bool { return n != nil && n.Touched != 0 }

func (n *Node) String() string {
	if n == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s(%s:%d)", n.Name, n.Addr, n.HTTPPort)
}

func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	return &c
}

// Registry is the process-wide node registry, keyed by lower(name) (§3).
// Single lock protects the map; all updates republish immutable *Node
// values (never mutate a Node already published — clone first), mirroring
// the teacher's "Global mutable state ... all updates republish immutable
// Node values" design rule (§5).
type Registry struct {
	mu    sync.Mutex
	nodes map[string]*Node

	local  atomic.Pointer[Node]
	leader atomic.Pointer[Node]
}

func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]*Node)}
}

func key(name string) string { return strings.ToLower(name) }

// Upsert republishes (by replacing, never mutating) the Node entry for
// node.Name.
func (r *Registry) Upsert(node *Node) {
	debug.Assert(node != nil && node.Name != "")
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[key(node.Name)] = node.Clone()
}

func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nodes, key(name))
}

func (r *Registry) Get(name string) *Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	if n, ok := r.nodes[key(name)]; ok {
		return n
	}
	return nil
}

func (r *Registry) All() []*Node {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		out = append(out, n)
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.nodes)
}

// LocalNode / SetLocalNode and LeaderNode / SetLeaderNode are atomically
// replaceable references into the registry (§3), modeled with
// go.uber.org/atomic.Pointer the way the teacher models Smap.Primary swaps
// via its own 3rdparty/atomic.
func (r *Registry) LocalNode() *Node         { return r.local.Load() }
func (r *Registry) SetLocalNode(n *Node)     { r.local.Store(n) }
func (r *Registry) LeaderNode() *Node        { return r.leader.Load() }
func (r *Registry) SetLeaderNode(n *Node)    { r.leader.Store(n) }

func (r *Registry) IsLeader(n *Node) bool {
	l := r.leader.Load()
	return l != nil && n != nil && key(l.Name) == key(n.Name)
}
