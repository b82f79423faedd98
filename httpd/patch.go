// JSON-Patch (RFC 6902) application for the PATCH command (§4.5
// dispatch table: "PATCH | JSON-Patch update").
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package httpd

import (
	"strconv"
	"strings"

	"github.com/xapiand/xapiand/cmn/xerrors"
)

// patchOp is one operation of a JSON-Patch document.
type patchOp struct {
	Op    string      `json:"op"`
	Path  string      `json:"path"`
	Value interface{} `json:"value"`
}

// applyPatch applies ops to a (mutable) copy of doc in place, supporting
// "add"/"replace"/"remove" over RFC 6901 JSON pointers. "move"/"copy"/
// "test" are rejected as unsupported — this system doesn't index arrays
// of heterogeneous shape that would make them meaningful.
func applyPatch(doc map[string]interface{}, ops []patchOp) error {
	for _, op := range ops {
		segs, err := splitPointer(op.Path)
		if err != nil {
			return err
		}
		if len(segs) == 0 {
			return xerrors.NewClientError("json-patch: empty path not supported at document root")
		}
		switch op.Op {
		case "add", "replace":
			if err := setAtPointer(doc, segs, op.Value); err != nil {
				return err
			}
		case "remove":
			if err := removeAtPointer(doc, segs); err != nil {
				return err
			}
		default:
			return xerrors.NewClientError("json-patch: unsupported op %q", op.Op)
		}
	}
	return nil
}

func splitPointer(path string) ([]string, error) {
	if path == "" || path[0] != '/' {
		return nil, xerrors.NewClientError("json-patch: path %q must start with '/'", path)
	}
	raw := strings.Split(path[1:], "/")
	segs := make([]string, len(raw))
	for i, s := range raw {
		s = strings.ReplaceAll(s, "~1", "/")
		s = strings.ReplaceAll(s, "~0", "~")
		segs[i] = s
	}
	return segs, nil
}

// navigate walks every segment but the last, returning the parent
// container and the final segment key/index.
func navigate(doc map[string]interface{}, segs []string) (interface{}, string, error) {
	var cur interface{} = doc
	for _, seg := range segs[:len(segs)-1] {
		switch c := cur.(type) {
		case map[string]interface{}:
			next, ok := c[seg]
			if !ok {
				return nil, "", xerrors.NewClientError("json-patch: path segment %q not found", seg)
			}
			cur = next
		case []interface{}:
			idx, err := strconv.Atoi(seg)
			if err != nil || idx < 0 || idx >= len(c) {
				return nil, "", xerrors.NewClientError("json-patch: invalid array index %q", seg)
			}
			cur = c[idx]
		default:
			return nil, "", xerrors.NewClientError("json-patch: cannot descend into scalar at %q", seg)
		}
	}
	return cur, segs[len(segs)-1], nil
}

func setAtPointer(doc map[string]interface{}, segs []string, value interface{}) error {
	parent, key, err := navigate(doc, segs)
	if err != nil {
		return err
	}
	switch c := parent.(type) {
	case map[string]interface{}:
		c[key] = value
		return nil
	case []interface{}:
		if key == "-" {
			return xerrors.NewClientError("json-patch: array append not supported")
		}
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(c) {
			return xerrors.NewClientError("json-patch: invalid array index %q", key)
		}
		c[idx] = value
		return nil
	default:
		return xerrors.NewClientError("json-patch: cannot set field on scalar")
	}
}

func removeAtPointer(doc map[string]interface{}, segs []string) error {
	parent, key, err := navigate(doc, segs)
	if err != nil {
		return err
	}
	switch c := parent.(type) {
	case map[string]interface{}:
		if _, ok := c[key]; !ok {
			return xerrors.NewClientError("json-patch: path %q not found", key)
		}
		delete(c, key)
		return nil
	case []interface{}:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(c) {
			return xerrors.NewClientError("json-patch: invalid array index %q", key)
		}
		return setAtPointer(doc, segs[:len(segs)-1], append(c[:idx:idx], c[idx+1:]...))
	default:
		return xerrors.NewClientError("json-patch: cannot remove field on scalar")
	}
}
