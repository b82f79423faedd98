// Package cmn provides common constants, types, and utilities shared by
// every package in this module — the same role the teacher's cmn package
// plays for aistore (cmn/api_const.go, cmn/urlpaths.go).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package cmn

import "time"

// Reserved command words (§6). Every command is a reserved word prefixed
// with "_" on the wire; the constants here are the bare names used
// internally (httpd/commands.go keys its command table by these bare names
// and strips the "_" from a path segment before the lookup).
const (
	CmdSearch   = "search"
	CmdSchema   = "schema"
	CmdInfo     = "info"
	CmdWAL      = "wal"
	CmdCheck    = "check"
	CmdMetadata = "metadata"
	CmdNodes    = "nodes"
	CmdMetrics  = "metrics"
	CmdTouch    = "touch"
	CmdCommit   = "commit"
	CmdDump     = "dump"
	CmdRestore  = "restore"
	CmdQuit     = "quit"
)

// Reserved document-body words (§4.3 recursive walk).
const (
	ReservedID       = "_id"
	ReservedType     = "_type"
	ReservedValue    = "_value"
	ReservedIndex    = "_index"
	ReservedScript   = "_script"
	ReservedAccuracy = "_accuracy"
)

// Response envelope keys (§6): every top-level hash key is prefixed "#".
const (
	EnvStatus            = "#status"
	EnvMessage           = "#message"
	EnvTook              = "#took"
	EnvQuery             = "#query"
	EnvTotalCount        = "#total_count"
	EnvMatchesEstimated  = "#matches_estimated"
	EnvHits              = "#hits"
	EnvAggregations      = "#aggregations"
	EnvEndpoint          = "#endpoint"
	EnvCommit            = "#commit"
	EnvDocID             = "#docid"
	EnvDocumentInfo      = "#document_info"
	EnvDatabaseInfo      = "#database_info"
	EnvClusterName       = "#cluster_name"
	EnvNodes             = "#nodes"
	EnvVersions          = "#versions"
)

// UUID representation modes (§6 Environment / options: uuid_repr).
const (
	UUIDSimple  = "simple"
	UUIDGUID    = "guid"
	UUIDURN     = "urn"
	UUIDEncoded = "encoded"
)

// Index mode bits (§4.2 Index modes) — 4-bit mask, ALL emits all four.
type IndexMode uint8

const (
	IdxFieldTerm IndexMode = 1 << iota
	IdxFieldValue
	IdxGlobalTerm
	IdxGlobalValue

	IdxNone = IndexMode(0)
	IdxAll  = IdxFieldTerm | IdxFieldValue | IdxGlobalTerm | IdxGlobalValue
)

func (m IndexMode) Has(bit IndexMode) bool { return m&bit == bit }

// §4.6 Autocommit scheduler literal constants — configurable per the Open
// Questions note ("should be configurable").
const (
	DefaultAutocommitDelay    = 3 * time.Second
	DefaultAutocommitMaxDelay = 9 * time.Second
)

// §4.2 namespace partial-path indexing depth cap.
const LimitPartialPathsDepth = 10

// §4.4 range-rewrite term cap.
const MaxRangeRewriteTerms = 100

// §4.1 retry policy: bounded reopen/retry attempts for mutating ops.
const MaxDatabaseRetries = 4
