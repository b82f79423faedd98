// Package indexing implements the indexing pipeline of §4.3: the
// recursive walk over a decoded document body, schema resolution per
// field, dispatch into a typed indexer, and assembly of the stored Data
// container.
//
// Grounded on original_source's schema.h recursive-walk description and
// on the teacher's small-orchestrator style (cluster/map.go's Sync
// applying a sequence of listener hooks in a fixed order).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package indexing

import (
	"sort"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/index"
	"github.com/xapiand/xapiand/schema"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Result is the pipeline's return value (§4.3 "Entry").
type Result struct {
	TermID      string
	Doc         *index.Document
	DataPreview []byte
}

// Index walks obj against s, producing the indexed Document and the ID
// term (§4.3 "Entry. index(obj, doc_id, old_document, handler)"). docID
// is the caller-chosen identifier string; oldDoc (may be nil) supplies
// prior locators so untouched content-type slots are preserved across
// updates (§4.3 "Body storage").
func Index(s *schema.Schema, obj map[string]interface{}, docID string, oldDoc *index.Document) (Result, error) {
	doc := index.NewDocument()
	ctx := &Context{Doc: doc, Now: time.Now()}

	termID := IDTerm(docID)
	doc.AddTerm(termID, true)
	doc.AddValue(0, docID)

	if err := walk(s, "", obj, ctx); err != nil {
		return Result{}, err
	}

	locs := bodyLocators(obj, oldDoc)
	data := EncodeLocators(locs)
	doc.SetData(data)

	preview := data
	if len(preview) > 64 {
		preview = preview[:64]
	}
	return Result{TermID: termID, Doc: doc, DataPreview: preview}, nil
}

// reservedBodyWords are split out of the recursive walk rather than
// treated as field names (§4.3 "split reserved words ... from payload
// children").
var reservedBodyWords = map[string]bool{
	cmn.ReservedID: true, cmn.ReservedType: true, cmn.ReservedValue: true,
	cmn.ReservedIndex: true, cmn.ReservedScript: true, cmn.ReservedAccuracy: true,
}

// walk recurses through obj, resolving each key against the schema and
// dispatching concrete leaves to their typed indexer (§4.3 "Recursive
// walk"). prefix is the dotted path accumulated so far.
func walk(s *schema.Schema, prefix string, obj map[string]interface{}, ctx *Context) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys) // deterministic iteration order for reproducible term emission

	for _, key := range keys {
		if reservedBodyWords[key] {
			continue
		}
		val := obj[key]
		fullPath := key
		if prefix != "" {
			fullPath = prefix + "." + key
		}

		switch child := val.(type) {
		case map[string]interface{}:
			explicitType, hasType := child[cmn.ReservedType]
			if hasType {
				t, err := concreteTypeFromName(explicitType)
				if err != nil {
					return err
				}
				if _, concretized := s.Lookup(fullPath); !concretized && !s.Dynamic(fullPath) {
					return xerrors.NewMissingTypeError("field %q: dynamic field creation is disabled", fullPath)
				}
				if _, err := s.Concretize(fullPath, t); err != nil {
					return err
				}
				value, hasValue := child[cmn.ReservedValue]
				if hasValue {
					if err := indexLeaf(s, fullPath, value, ctx); err != nil {
						return err
					}
					continue
				}
			}
			if err := walk(s, fullPath, child, ctx); err != nil {
				return err
			}
		case []interface{}:
			if err := indexLeaf(s, fullPath, child, ctx); err != nil {
				return err
			}
		default:
			if err := indexLeaf(s, fullPath, child, ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// indexLeaf resolves fullPath's concrete type (inferring it from v's Go
// type if the field has never been concretized) and dispatches to the
// typed indexer, also emitting namespace partial-path terms when fullPath
// falls under a declared namespace (§4.2 "namespace partial-path
// indexing"). A strict scope refuses the inference outright (§4.2
// "strict forbids any auto-detection"); a non-dynamic scope refuses it
// only when fullPath would be a brand new field (§4.2 "dynamic=false
// forbids creating new fields") — both surface as MissingTypeError (§7).
func indexLeaf(s *schema.Schema, fullPath string, v interface{}, ctx *Context) error {
	spec, concretized := s.Lookup(fullPath)
	if !concretized {
		if s.Strict(fullPath) {
			return xerrors.NewMissingTypeError("field %q: strict schema refused auto-detection", fullPath)
		}
		if !s.Dynamic(fullPath) {
			return xerrors.NewMissingTypeError("field %q: dynamic field creation is disabled", fullPath)
		}
		t, err := inferType(v)
		if err != nil {
			return err
		}
		spec, err = s.Concretize(fullPath, t)
		if err != nil {
			return err
		}
	}

	if err := Dispatch(spec, v, ctx); err != nil {
		return err
	}

	if s.IsNamespace(fullPath) {
		for _, term := range schema.NamespaceTerms(fullPath, spec.Prefix) {
			ctx.Doc.AddTerm(term, false)
		}
	}
	return nil
}

// inferType guesses a concrete type from v's dynamic Go type, the
// fallback path for fields without an explicit _type (§4.2 "Dynamic
// detection toggles").
func inferType(v interface{}) (schema.ConcreteType, error) {
	switch x := v.(type) {
	case bool:
		return schema.TypeBoolean, nil
	case float64, int, int64:
		return schema.TypeFloat, nil
	case string:
		if _, err := time.Parse(time.RFC3339, x); err == nil {
			return schema.TypeDate, nil
		}
		return schema.TypeText, nil
	case map[string]interface{}:
		if _, ok := x["lat"]; ok {
			return schema.TypeGeo, nil
		}
		return schema.TypeObject, nil
	case []interface{}:
		return schema.TypeArray, nil
	case nil:
		return schema.TypeEmpty, xerrors.NewMissingTypeError("cannot infer type from null value")
	default:
		return schema.TypeEmpty, xerrors.NewMissingTypeError("cannot infer type from %T", v)
	}
}

func concreteTypeFromName(v interface{}) (schema.ConcreteType, error) {
	name, ok := v.(string)
	if !ok {
		return schema.TypeEmpty, xerrors.NewClientError("_type must be a string")
	}
	switch name {
	case "boolean":
		return schema.TypeBoolean, nil
	case "date":
		return schema.TypeDate, nil
	case "time":
		return schema.TypeTime, nil
	case "timedelta":
		return schema.TypeTimedelta, nil
	case "float":
		return schema.TypeFloat, nil
	case "integer":
		return schema.TypeInteger, nil
	case "positive":
		return schema.TypePositive, nil
	case "keyword":
		return schema.TypeKeyword, nil
	case "string":
		return schema.TypeString, nil
	case "text":
		return schema.TypeText, nil
	case "uuid":
		return schema.TypeUUID, nil
	case "geo":
		return schema.TypeGeo, nil
	case "script":
		return schema.TypeScript, nil
	default:
		return schema.TypeEmpty, xerrors.NewClientError("unknown _type %q", name)
	}
}

// bodyLocators builds the Data container's locator list (§4.3 "Body
// storage"): the whole normalized body as one inline JSON-content-typed
// locator, preserving any prior locators from oldDoc whose content type
// this write didn't touch.
func bodyLocators(obj map[string]interface{}, oldDoc *index.Document) []Locator {
	body, err := jsonAPI.Marshal(obj)
	if err != nil {
		body = nil
	}
	locs := []Locator{{Kind: LocatorInplace, CType: "application/json", Inline: body}}
	if oldDoc == nil {
		return locs
	}
	prior, err := DecodeLocators(oldDoc.Data())
	if err != nil {
		return locs
	}
	seen := map[string]bool{"application/json": true}
	for _, l := range prior {
		if !seen[l.CType] {
			locs = append(locs, l)
			seen[l.CType] = true
		}
	}
	return locs
}
