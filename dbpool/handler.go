// DatabaseHandler layers the retry policy (§4.1 "Retry policy") and scoped
// acquisition (§4.1 "Scoped acquisition") over a checked-out Database.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package dbpool

import (
	"time"

	"github.com/golang/glog"

	"github.com/xapiand/xapiand/cmn"
	"github.com/xapiand/xapiand/cmn/xerrors"
	"github.com/xapiand/xapiand/endpoint"
	"github.com/xapiand/xapiand/index"
)

// Handler is obtained via Pool.With and released automatically — the
// "scoped acquisition" guard of §4.1: "so that panics, early returns, and
// thrown errors always return the handle to its queue."
type Handler struct {
	pool *Pool
	db   *Database
	bad  bool
}

// With checks out a Database for (eps, writable), invokes fn, and checks
// it back in on every exit path (normal return, error return, or panic).
// This is the sole entry point callers should use — never call
// Pool.Checkout/Checkin directly from request-handling code.
func (p *Pool) With(eps *endpoint.Endpoints, writable bool, deadline time.Time, fn func(h *Handler) error) error {
	db, err := p.Checkout(eps, writable, deadline)
	if err != nil {
		return err
	}
	h := &Handler{pool: p, db: db}
	defer func() {
		r := recover()
		p.Checkin(h.db, h.bad)
		if r != nil {
			panic(r)
		}
	}()
	return fn(h)
}

func (h *Handler) Database() *Database { return h.db }
func (h *Handler) MarkBad()            { h.bad = true }

// retry runs op up to cmn.MaxDatabaseRetries times, calling reopen between
// attempts, surfacing the final error only after the last attempt fails
// (§4.1 "Every mutating operation ... loops up to 4 attempts").
func (h *Handler) retry(newBackend func() (index.WritableDatabase, error), op func() error) error {
	var lastErr error
	attempts := cmn.MaxDatabaseRetries
	for i := 0; i < attempts; i++ {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if _, ok := xerrors.CategoryOf(err); ok {
			// client-facing errors (bad input) are never retried.
			if cat, _ := xerrors.CategoryOf(err); cat == xerrors.Client || cat == xerrors.NotFound || cat == xerrors.Cast {
				return err
			}
		}
		if i == attempts-1 {
			break
		}
		if rerr := h.db.reopen(newBackend); rerr != nil {
			glog.Warningf("reopen during retry failed: %v", rerr)
			h.MarkBad()
			return rerr
		}
	}
	h.MarkBad()
	return xerrors.NewDatabaseError(lastErr, "operation failed after %d attempts", attempts)
}

func (h *Handler) backendFactory() func() (index.WritableDatabase, error) {
	eps := h.db.Endpoints
	writable := h.db.Writable
	return func() (index.WritableDatabase, error) {
		return h.pool.newBackend(eps, writable)
	}
}

// Commit flushes pending mutations, retrying per §4.1/§7 "Recovery".
func (h *Handler) Commit() error {
	return h.retry(h.backendFactory(), func() error {
		return h.db.WDB.Commit()
	})
}

func (h *Handler) ReplaceDocument(did index.DocID, doc *index.Document) error {
	return h.retry(h.backendFactory(), func() error {
		return h.db.WDB.ReplaceDocument(did, doc)
	})
}

func (h *Handler) ReplaceDocumentTerm(term string, doc *index.Document) (index.DocID, error) {
	var did index.DocID
	err := h.retry(h.backendFactory(), func() error {
		var e error
		did, e = h.db.WDB.ReplaceDocumentTerm(term, doc)
		return e
	})
	return did, err
}

func (h *Handler) DeleteDocument(did index.DocID) error {
	return h.retry(h.backendFactory(), func() error {
		return h.db.WDB.DeleteDocument(did)
	})
}

func (h *Handler) DeleteDocumentTerm(term string) error {
	return h.retry(h.backendFactory(), func() error {
		return h.db.WDB.DeleteDocumentTerm(term)
	})
}

func (h *Handler) FindDocument(termID string) (index.DocID, error) {
	return h.db.RDB.FindDocument(termID)
}

func (h *Handler) GetDocument(did index.DocID) (*index.Document, error) {
	return h.db.RDB.GetDocument(did)
}

// Metadata reads a key from the current backend's metadata store (§6
// `_metadata` read path).
func (h *Handler) Metadata(key string) (string, bool) {
	return h.db.RDB.Metadata(key)
}

// SetMetadata writes a key to the current backend's metadata store (§6
// `_metadata` write path), retrying per §4.1's mutating-operation policy.
func (h *Handler) SetMetadata(key, value string) error {
	return h.retry(h.backendFactory(), func() error {
		return h.db.WDB.SetMetadata(key, value)
	})
}

// DeleteMetadata removes key from the current backend's metadata store
// (§6 `_metadata` delete path).
func (h *Handler) DeleteMetadata(key string) error {
	return h.retry(h.backendFactory(), func() error {
		return h.db.WDB.DeleteMetadata(key)
	})
}
