// Package httpd implements the HTTP dispatcher of §4.5: URL-grammar
// parsing, command dispatch, content/encoding negotiation, pretty-print
// level selection, and the status-code policy.
//
// Grounded on the teacher's ais/proxy.go request-dispatch style (a fixed
// verb table matched against a parsed URL, falling through to a single
// writeErr-style status mapper) and on cmn/api_const.go's constant-table
// convention for reserved words, generalized here into net/http's
// goroutine-per-connection model: Go's net/http server already serializes
// request handling within a single persistent connection and dispatches
// each connection on its own goroutine, which is the idiomatic equivalent
// of the spec's "one worker per connection, FIFO within it" discipline —
// so this package builds on net/http rather than hand-rolling a second
// event loop underneath it.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package httpd

import (
	"net/http"

	"github.com/xapiand/xapiand/cmn"
)

// Command is the dispatch table's perfect-hash output (§4.5 "Dispatch
// table ... produces a Command enum via a perfect hash on the command
// token").
type Command int

const (
	CmdNone Command = iota
	CmdSearchC
	CmdSchemaC
	CmdInfoC
	CmdWALC
	CmdCheckC
	CmdMetadataC
	CmdNodesC
	CmdMetricsC
	CmdTouchC
	CmdCommitC
	CmdDumpC
	CmdRestoreC
	CmdQuitC
)

// commandTokens maps the reserved command word (§6, `cmn.Cmd*`) to its
// Command enum value. Built once at package init and checked for
// collisions (§4.5's "perfect hash" promise only holds if no two
// reserved words share a token).
var commandTokens = map[string]Command{
	cmn.CmdSearch:   CmdSearchC,
	cmn.CmdSchema:   CmdSchemaC,
	cmn.CmdInfo:     CmdInfoC,
	cmn.CmdWAL:      CmdWALC,
	cmn.CmdCheck:    CmdCheckC,
	cmn.CmdMetadata: CmdMetadataC,
	cmn.CmdNodes:    CmdNodesC,
	cmn.CmdMetrics:  CmdMetricsC,
	cmn.CmdTouch:    CmdTouchC,
	cmn.CmdCommit:   CmdCommitC,
	cmn.CmdDump:     CmdDumpC,
	cmn.CmdRestore:  CmdRestoreC,
	cmn.CmdQuit:     CmdQuitC,
}

func init() {
	seen := make(map[Command]string, len(commandTokens))
	for tok, cmd := range commandTokens {
		if prior, dup := seen[cmd]; dup {
			panic("httpd: command token collision between " + prior + " and " + tok)
		}
		seen[cmd] = tok
	}
}

// LookupCommand resolves a reserved command token to its Command, or
// CmdNone if tok isn't a reserved word.
func LookupCommand(tok string) Command {
	if c, ok := commandTokens[tok]; ok {
		return c
	}
	return CmdNone
}

// ParsedPath is the URL-grammar parser's output state machine result
// (§4.5 "a path parser with states cmd/nsp/pth/hst/id"): the resolved
// command (if any), namespace, path, host, and trailing document id.
type ParsedPath struct {
	Command   Command
	Namespace string
	Path      string
	Host      string
	ID        string
	HasID     bool
}

// ParsePath splits an HTTP request path on "/" and classifies its
// segments. A "_<name>" segment naming a known command sets Command; an
// unknown "_" segment is kept as an ordinary segment. The remaining
// segments are read by count: one is Path; two are Path and ID; three or
// more are Namespace, Path and ID (the last segment), and any segments
// between Path and ID are dropped. Host is never set, and ":" or "@"
// inside a segment gets no special treatment.
func ParsePath(path string) ParsedPath {
	segs := splitPath(path)
	var pp ParsedPath

	var rest []string
	for _, s := range segs {
		if len(s) > 0 && s[0] == '_' {
			if c := LookupCommand(s[1:]); c != CmdNone {
				pp.Command = c
				continue
			}
		}
		rest = append(rest, s)
	}

	switch len(rest) {
	case 0:
	case 1:
		pp.Path = rest[0]
	case 2:
		pp.Path = rest[0]
		pp.ID = rest[1]
		pp.HasID = true
	default:
		pp.Namespace = rest[0]
		pp.Path = rest[1]
		pp.ID = rest[len(rest)-1]
		pp.HasID = true
	}
	return pp
}

func splitPath(path string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				out = append(out, path[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// AllowedMethods is the per-command/with-id method table of §4.5's
// dispatch-table figure.
func AllowedMethods(hasID bool, cmd Command) []string {
	if hasID {
		methods := []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions}
		return methods
	}
	switch cmd {
	case CmdSearchC, CmdSchemaC, CmdInfoC, CmdMetricsC, CmdNodesC, CmdMetadataC, CmdWALC, CmdCheckC:
		return []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	default:
		return []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions}
	}
}

func methodAllowed(allowed []string, method string) bool {
	for _, m := range allowed {
		if m == method {
			return true
		}
	}
	return false
}
