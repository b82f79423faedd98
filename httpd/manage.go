// Handlers for the `_schema`/`_metadata`/`_touch` commands and the
// PATCH (JSON-Patch) document update path (§4.5 dispatch table, §6).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package httpd

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/dbpool"
	"github.com/xapiand/xapiand/endpoint"
	"github.com/xapiand/xapiand/index"
	"github.com/xapiand/xapiand/indexing"
	"github.com/xapiand/xapiand/schema"
)

// handlePatch applies a JSON-Patch document (RFC 6902) to the document's
// last-indexed body and re-indexes the result (§4.5 "PATCH | JSON-Patch
// update"; §8 scenario S4).
func (d *Dispatcher) handlePatch(w http.ResponseWriter, r *http.Request, eps *endpoint.Endpoints, pp ParsedPath, ctype string, pretty int, lc *Lifecycle) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return xerrors.NewClientError("cannot read request body")
	}
	var ops []patchOp
	if err := json.Unmarshal(raw, &ops); err != nil {
		return xerrors.NewSerialisationError(err, "invalid JSON-Patch body")
	}

	s := d.schemaFor(eps)
	return d.Pool.With(eps, true, d.deadline(), func(h *dbpool.Handler) error {
		did, err := h.FindDocument(indexing.IDTerm(pp.ID))
		if err != nil {
			return xerrors.NewNotFoundError("document %q not found", pp.ID)
		}
		oldDoc, err := h.GetDocument(did)
		if err != nil {
			return err
		}
		fields := bodyFields(oldDoc)
		if fields == nil {
			fields = map[string]interface{}{}
		}
		if err := applyPatch(fields, ops); err != nil {
			return err
		}
		res, err := indexing.Index(s, fields, pp.ID, oldDoc)
		if err != nil {
			return err
		}
		if _, err := h.ReplaceDocumentTerm(res.TermID, res.Doc); err != nil {
			return err
		}
		d.Autocommit.Notify(eps, h.Database())
		d.Stats.IncIndexed()
		lc.Ready = time.Now()
		lc.Ends = time.Now()
		env := NewEnvelope().Set(cmn.EnvDocID, pp.ID).Set(cmn.EnvTook, lc.took().Seconds())
		d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
		return nil
	})
}

// handleSchemaGet serves GET `_schema` (§6): a dump of every concretized
// field the endpoint set's Schema currently knows about.
func (d *Dispatcher) handleSchemaGet(w http.ResponseWriter, eps *endpoint.Endpoints, ctype string, pretty int) error {
	s := d.schemaFor(eps)
	env := NewEnvelope().Set("#schema", s.Dump()).Set("#revision", s.Revision())
	d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
	return nil
}

// schemaPutBody names a field path and the concrete type to bind it to
// up front (§4.2 "write-once, detect-on-first-use" — PUT _schema lets a
// caller concretize ahead of the first document, e.g. to force `keyword`
// over the default `string` auto-detection, or to declare a namespace),
// plus per-path Strict/Dynamic toggles (§4.2 "strict forbids any
// auto-detection; dynamic=false forbids creating new fields").
type schemaPutBody struct {
	Fields     map[string]string `json:"fields"`
	Namespaces []string          `json:"namespaces"`
	Strict     map[string]bool   `json:"strict"`
	Dynamic    map[string]bool   `json:"dynamic"`
}

// handleSchemaPut serves PUT `_schema` (§6): pre-concretizes named
// fields, marks namespace roots, and/or flips Strict/Dynamic scoping
// before any document arrives.
func (d *Dispatcher) handleSchemaPut(w http.ResponseWriter, r *http.Request, eps *endpoint.Endpoints, ctype string, pretty int) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return xerrors.NewClientError("cannot read request body")
	}
	var body schemaPutBody
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return xerrors.NewSerialisationError(err, "invalid JSON schema body")
		}
	}

	s := d.schemaFor(eps)
	for path, typeName := range body.Fields {
		t, ok := schema.ParseConcreteType(typeName)
		if !ok {
			return xerrors.NewClientError("unknown field type %q for %q", typeName, path)
		}
		if _, err := s.Concretize(path, t); err != nil {
			return err
		}
	}
	for _, ns := range body.Namespaces {
		s.SetNamespace(ns)
	}
	for path, strict := range body.Strict {
		s.SetStrict(path, strict)
	}
	for path, dynamic := range body.Dynamic {
		s.SetDynamic(path, dynamic)
	}
	env := NewEnvelope().Set("#revision", s.Revision())
	d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
	return nil
}

// handleSchemaDelete serves DELETE `_schema` (§6): replaces the
// endpoint's bound Schema with a fresh, empty one.
func (d *Dispatcher) handleSchemaDelete(w http.ResponseWriter, eps *endpoint.Endpoints, ctype string, pretty int) error {
	d.mu.Lock()
	delete(d.schemas, eps.String())
	d.mu.Unlock()
	d.writeEnvelope(w, http.StatusOK, NewEnvelope().Set(cmn.EnvStatus, http.StatusOK), ctype, EncodingIdentity, pretty)
	return nil
}

// handleMetadataGet serves GET `_metadata[/<key>]` (§6 `_metadata`):
// pp.ID, if present, names the metadata key (the path segment after the
// command is parsed as the trailing "id" by ParsePath).
func (d *Dispatcher) handleMetadataGet(w http.ResponseWriter, eps *endpoint.Endpoints, pp ParsedPath, ctype string, pretty int) error {
	return d.Pool.With(eps, false, d.deadline(), func(h *dbpool.Handler) error {
		env := NewEnvelope()
		if pp.ID != "" {
			v, ok := h.Metadata(pp.ID)
			if !ok {
				return xerrors.NewNotFoundError("metadata key %q not found", pp.ID)
			}
			env.Set(pp.ID, v)
		}
		d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
		return nil
	})
}

type metadataPutBody struct {
	Value string `json:"value"`
}

// handleMetadataPut serves PUT `_metadata/<key>` (§6 `_metadata`).
func (d *Dispatcher) handleMetadataPut(w http.ResponseWriter, r *http.Request, eps *endpoint.Endpoints, pp ParsedPath, ctype string, pretty int) error {
	if pp.ID == "" {
		return xerrors.NewClientError("_metadata write requires a key")
	}
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return xerrors.NewClientError("cannot read request body")
	}
	var body metadataPutBody
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &body); err != nil {
			return xerrors.NewSerialisationError(err, "invalid JSON metadata body")
		}
	}
	return d.Pool.With(eps, true, d.deadline(), func(h *dbpool.Handler) error {
		if err := h.SetMetadata(pp.ID, body.Value); err != nil {
			return err
		}
		d.Autocommit.Notify(eps, h.Database())
		d.writeEnvelope(w, http.StatusOK, NewEnvelope().Set(cmn.EnvStatus, http.StatusOK), ctype, EncodingIdentity, pretty)
		return nil
	})
}

// handleMetadataDelete serves DELETE `_metadata/<key>` (§6 `_metadata`).
func (d *Dispatcher) handleMetadataDelete(w http.ResponseWriter, eps *endpoint.Endpoints, pp ParsedPath, ctype string, pretty int) error {
	if pp.ID == "" {
		return xerrors.NewClientError("_metadata delete requires a key")
	}
	return d.Pool.With(eps, true, d.deadline(), func(h *dbpool.Handler) error {
		if err := h.DeleteMetadata(pp.ID); err != nil {
			return err
		}
		d.Autocommit.Notify(eps, h.Database())
		d.writeEnvelope(w, http.StatusOK, NewEnvelope().Set(cmn.EnvStatus, http.StatusOK), ctype, EncodingIdentity, pretty)
		return nil
	})
}

// handleTouch serves POST `_touch` (§4.5 dispatch table "POST ... touch"):
// forces the endpoint's writable Database open (creating it if idle) and
// commits, without requiring a document write first — useful to warm a
// freshly created index or confirm it opens cleanly.
func (d *Dispatcher) handleTouch(w http.ResponseWriter, eps *endpoint.Endpoints, ctype string, pretty int) error {
	return d.Pool.With(eps, true, d.deadline(), func(h *dbpool.Handler) error {
		if err := h.Commit(); err != nil {
			return err
		}
		d.writeEnvelope(w, http.StatusOK, NewEnvelope().Set(cmn.EnvStatus, http.StatusOK), ctype, EncodingIdentity, pretty)
		return nil
	})
}

// handleWAL serves GET `_wal` (§6): reports a readable Database handle's
// generation/revision counters this system uses in place of a real
// write-ahead log replay surface (§1 pins WAL emission as an external
// collaborator's concern; this reports the bookkeeping this layer owns).
func (d *Dispatcher) handleWAL(w http.ResponseWriter, eps *endpoint.Endpoints, ctype string, pretty int) error {
	return d.Pool.With(eps, false, d.deadline(), func(h *dbpool.Handler) error {
		db := h.Database()
		env := NewEnvelope().
			Set("#revision", db.RDB.Revision()).
			Set("#generation", db.Generation()).
			Set("#incomplete", db.Incomplete)
		d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
		return nil
	})
}

// handleCheck serves GET `_check` (§6): a lightweight consistency report
// over a readable handle of the endpoint's Database.
func (d *Dispatcher) handleCheck(w http.ResponseWriter, eps *endpoint.Endpoints, ctype string, pretty int) error {
	return d.Pool.With(eps, false, d.deadline(), func(h *dbpool.Handler) error {
		db := h.Database()
		env := NewEnvelope().
			Set("#status", http.StatusOK).
			Set("#closed", db.Closed).
			Set("#incomplete", db.Incomplete)
		d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
		return nil
	})
}

// handleDump serves POST `_dump` (§6): a best-effort full-document dump
// of the endpoint for backup/migration, iterating every `Q<id>` term
// (§4.3 "ID term").
func (d *Dispatcher) handleDump(w http.ResponseWriter, eps *endpoint.Endpoints, ctype string, pretty int) error {
	return d.Pool.With(eps, false, d.deadline(), func(h *dbpool.Handler) error {
		db := h.Database().RDB
		docs := make([]interface{}, 0)
		for _, term := range db.TermsWithPrefix("Q") {
			did, err := db.FindDocument(term)
			if err != nil {
				continue
			}
			doc, err := db.GetDocument(did)
			if err != nil {
				continue
			}
			entry := map[string]interface{}{"#docid": term[1:]}
			for k, v := range bodyFields(doc) {
				entry[k] = v
			}
			docs = append(docs, entry)
		}
		env := NewEnvelope().Set("#documents", docs).Set(cmn.EnvTotalCount, len(docs))
		d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
		return nil
	})
}

// handleRestore serves POST `_restore` (§6): the inverse of `_dump`,
// re-indexing a JSON array of `{"#docid": ..., ...fields}` entries
// previously produced by it.
func (d *Dispatcher) handleRestore(w http.ResponseWriter, r *http.Request, eps *endpoint.Endpoints, ctype string, pretty int) error {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		return xerrors.NewClientError("cannot read request body")
	}
	var entries []map[string]interface{}
	if err := json.Unmarshal(raw, &entries); err != nil {
		return xerrors.NewSerialisationError(err, "invalid JSON restore body")
	}

	s := d.schemaFor(eps)
	return d.Pool.With(eps, true, d.deadline(), func(h *dbpool.Handler) error {
		restored := 0
		for _, entry := range entries {
			docID, _ := entry["#docid"].(string)
			if docID == "" {
				continue
			}
			delete(entry, "#docid")
			var oldDoc *index.Document
			if did, err := h.FindDocument(indexing.IDTerm(docID)); err == nil {
				oldDoc, _ = h.GetDocument(did)
			}
			res, err := indexing.Index(s, entry, docID, oldDoc)
			if err != nil {
				return err
			}
			if _, err := h.ReplaceDocumentTerm(res.TermID, res.Doc); err != nil {
				return err
			}
			restored++
		}
		d.Autocommit.Notify(eps, h.Database())
		env := NewEnvelope().Set(cmn.EnvTotalCount, restored)
		d.writeEnvelope(w, http.StatusOK, env, ctype, EncodingIdentity, pretty)
		return nil
	})
}

// handleQuit serves POST `_quit` (§6): process shutdown is an external
// concern (§1 Non-goals: daemonization/signal handling), so this only
// acknowledges the request; the caller's supervisor is responsible for
// the actual process exit.
func (d *Dispatcher) handleQuit(w http.ResponseWriter) {
	w.WriteHeader(http.StatusOK)
}
