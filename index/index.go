// Package index pins the interfaces of the external "inverted-index
// library" spec.md §1 explicitly keeps out of scope: WritableDatabase,
// Database, Document, MSet. This package provides both the contract and a
// default in-memory implementation (grounded on google/btree — present
// directly in the AKJUS-bsc-erigon example's go.mod — for ordered term
// iteration, needed by the query compiler's accuracy-prefix range scans and
// the indexing pipeline's trixel-term lookups) so dbpool/schema/indexing/
// query are exercisable without a real Xapian binding.
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package index

import (
	"sort"
	"sync"

	"github.com/google/btree"

	"github.com/xapiand/xapiand/cmn/xerrors"
)

// DocID is the library's document identifier (Xapian::docid in the
// original).
type DocID uint32

// Document is a mutable bag of terms, slot values and a stored data blob
// about to be committed to the index (§3 Locator / Data container sits on
// top of the raw bytes this carries).
type Document struct {
	mu     sync.Mutex
	terms  map[string]bool // term -> boolean (no positional data)
	values map[uint32][]string
	data   []byte
}

func NewDocument() *Document {
	return &Document{terms: make(map[string]bool), values: make(map[uint32][]string)}
}

func (d *Document) AddTerm(term string, boolean bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.terms[term] = boolean
}

func (d *Document) AddValue(slot uint32, v string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[slot] = append(d.values[slot], v)
}

func (d *Document) SetData(b []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.data = b
}

func (d *Document) Data() []byte { return d.data }

func (d *Document) Terms() map[string]bool       { return d.terms }
func (d *Document) Values() map[uint32][]string  { return d.values }

// Hit is one ranked match (§3 MSet).
type Hit struct {
	DocID   DocID
	Rank    int
	Weight  float64
	Percent int
}

// MSet is an iterable ranked result (§3).
type MSet struct {
	Hits             []Hit
	EstimatedMatches int
}

func (m *MSet) Size() int { return len(m.Hits) }

// Database is the read path over one or more opened shards.
type Database interface {
	FindDocument(termID string) (DocID, error)
	GetDocument(did DocID) (*Document, error)
	TermExists(term string) bool
	// TermsWithPrefix returns, in lexicographic order, every distinct term
	// carrying prefix — the primitive the query compiler's range-rewrite
	// and HTM trixel scans are built on (§4.4, §4.3).
	TermsWithPrefix(prefix string) []string
	PostingsFor(term string) []DocID
	ValueOf(did DocID, slot uint32) []string
	Metadata(key string) (string, bool)
	UUID() string
	Revision() uint64
	Close() error
}

// WritableDatabase layers mutation on top of Database (add/replace/delete,
// commit, transactions, metadata) — the contract §4.1's DatabaseHandler
// drives.
type WritableDatabase interface {
	Database
	AddDocument(doc *Document) (DocID, error)
	ReplaceDocument(did DocID, doc *Document) error
	ReplaceDocumentTerm(term string, doc *Document) (DocID, error)
	DeleteDocument(did DocID) error
	DeleteDocumentTerm(term string) error
	SetMetadata(key, value string) error
	DeleteMetadata(key string) error
	BeginTransaction() error
	CommitTransaction() error
	CancelTransaction() error
	Commit() error
	Modified() bool
}

// --- in-memory implementation -------------------------------------------------

type memDoc struct {
	did  DocID
	doc  *Document
	live bool
}

type memDB struct {
	mu       sync.RWMutex
	docs     map[DocID]*memDoc
	termID   map[string]DocID // term_id -> docid (boolean terms are unique per docid)
	postings *btree.BTreeG[postingEntry]
	values   map[DocID]map[uint32][]string
	meta     map[string]string
	nextID   DocID
	uuid     string
	revision uint64
	modified bool
	inTxn    bool
}

type postingEntry struct {
	term string
	did  DocID
}

func postingLess(a, b postingEntry) bool {
	if a.term != b.term {
		return a.term < b.term
	}
	return a.did < b.did
}

// NewMemDatabase constructs a fresh in-memory backing store — the default
// "opened shard" the dbpool.Database wraps. dbpool's default backend keeps
// one per Endpoints set and hands it to both writable and readable handles.
func NewMemDatabase(uuid string) WritableDatabase {
	return &memDB{
		docs:     make(map[DocID]*memDoc),
		termID:   make(map[string]DocID),
		postings: btree.NewG(32, postingLess),
		values:   make(map[DocID]map[uint32][]string),
		meta:     make(map[string]string),
		nextID:   1,
		uuid:     uuid,
	}
}

func (m *memDB) FindDocument(termID string) (DocID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if did, ok := m.termID[termID]; ok {
		return did, nil
	}
	return 0, xerrors.NewNotFoundError("document with term %q not found", termID)
}

func (m *memDB) GetDocument(did DocID) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	md, ok := m.docs[did]
	if !ok || !md.live {
		return nil, xerrors.NewNotFoundError("document %d not found", did)
	}
	return md.doc, nil
}

func (m *memDB) TermExists(term string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	found := false
	m.postings.AscendGreaterOrEqual(postingEntry{term: term}, func(e postingEntry) bool {
		found = e.term == term
		return false
	})
	return found
}

func (m *memDB) TermsWithPrefix(prefix string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]bool)
	var out []string
	m.postings.AscendGreaterOrEqual(postingEntry{term: prefix}, func(e postingEntry) bool {
		if len(e.term) < len(prefix) || e.term[:len(prefix)] != prefix {
			return false
		}
		if !seen[e.term] {
			seen[e.term] = true
			out = append(out, e.term)
		}
		return true
	})
	sort.Strings(out)
	return out
}

func (m *memDB) PostingsFor(term string) []DocID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []DocID
	m.postings.AscendGreaterOrEqual(postingEntry{term: term}, func(e postingEntry) bool {
		if e.term != term {
			return false
		}
		if md, ok := m.docs[e.did]; ok && md.live {
			out = append(out, e.did)
		}
		return true
	})
	return out
}

func (m *memDB) ValueOf(did DocID, slot uint32) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[did][slot]
}

func (m *memDB) Metadata(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.meta[key]
	return v, ok
}

func (m *memDB) UUID() string      { return m.uuid }
func (m *memDB) Revision() uint64  { return m.revision }
func (m *memDB) Close() error      { return nil }
func (m *memDB) Modified() bool    { m.mu.RLock(); defer m.mu.RUnlock(); return m.modified }

func (m *memDB) indexDocLocked(did DocID, doc *Document) {
	for term, _ := range doc.Terms() {
		m.postings.ReplaceOrInsert(postingEntry{term: term, did: did})
	}
	vals := make(map[uint32][]string, len(doc.Values()))
	for slot, v := range doc.Values() {
		vals[slot] = append([]string(nil), v...)
	}
	m.values[did] = vals
}

func (m *memDB) AddDocument(doc *Document) (DocID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	did := m.nextID
	m.nextID++
	m.docs[did] = &memDoc{did: did, doc: doc, live: true}
	m.indexDocLocked(did, doc)
	for term := range doc.Terms() {
		m.termID[term] = did
	}
	m.modified = true
	return did, nil
}

func (m *memDB) ReplaceDocument(did DocID, doc *Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.docs[did]; ok && existing.live {
		m.removeFromPostingsLocked(did, existing.doc)
	}
	if did >= m.nextID {
		m.nextID = did + 1
	}
	m.docs[did] = &memDoc{did: did, doc: doc, live: true}
	m.indexDocLocked(did, doc)
	for term := range doc.Terms() {
		m.termID[term] = did
	}
	m.modified = true
	return nil
}

func (m *memDB) ReplaceDocumentTerm(term string, doc *Document) (DocID, error) {
	m.mu.Lock()
	did, exists := m.termID[term]
	m.mu.Unlock()
	if !exists {
		m.mu.Lock()
		did = m.nextID
		m.nextID++
		m.mu.Unlock()
	}
	return did, m.ReplaceDocument(did, doc)
}

func (m *memDB) removeFromPostingsLocked(did DocID, doc *Document) {
	for term := range doc.Terms() {
		m.postings.Delete(postingEntry{term: term, did: did})
		if m.termID[term] == did {
			delete(m.termID, term)
		}
	}
	delete(m.values, did)
}

func (m *memDB) DeleteDocument(did DocID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	md, ok := m.docs[did]
	if !ok || !md.live {
		return xerrors.NewNotFoundError("document %d not found", did)
	}
	m.removeFromPostingsLocked(did, md.doc)
	md.live = false
	m.modified = true
	return nil
}

func (m *memDB) DeleteDocumentTerm(term string) error {
	m.mu.RLock()
	did, ok := m.termID[term]
	m.mu.RUnlock()
	if !ok {
		return xerrors.NewNotFoundError("document with term %q not found", term)
	}
	return m.DeleteDocument(did)
}

func (m *memDB) SetMetadata(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.meta[key] = value
	m.modified = true
	return nil
}

func (m *memDB) DeleteMetadata(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.meta, key)
	m.modified = true
	return nil
}

func (m *memDB) BeginTransaction() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inTxn = true
	return nil
}

func (m *memDB) CommitTransaction() error {
	m.mu.Lock()
	m.inTxn = false
	m.mu.Unlock()
	return m.Commit()
}

func (m *memDB) CancelTransaction() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inTxn = false
	return nil
}

func (m *memDB) Commit() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.revision++
	m.modified = false
	return nil
}
