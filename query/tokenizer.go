// Package query implements the query compiler of §4.4: tokenizing query
// strings into a boolean/range/geo term tree, rewriting ranges via the
// schema's accuracy ladder, and running an aggregation match-spy over the
// result set.
//
// Grounded on original_source/src/schema.h's field:value grammar
// description and on the teacher's small hand-rolled tokenizer style used
// for internal URL/arg parsing (cmn/urlpaths.go).
/*
 * Copyright (c) 2018-2020, NVIDIA CORPORATION. All rights reserved.
 */
package query

import (
	"strings"

	"github.com/xapiand/xapiand/cmn/xerrors"
)

// TokenKind enumerates the tokenizer's output alphabet (§4.4 "Parsing").
type TokenKind int

const (
	TokField TokenKind = iota
	TokAnd
	TokOr
	TokNot
	TokXor
	TokLParen
	TokRParen
	TokEOF
)

// Token is one lexical unit. For TokField, Field/Value/Range carry the
// parsed field:value payload.
type Token struct {
	Kind  TokenKind
	Field string
	Value string
	Range *RangeLiteral
}

// RangeLiteral is a parsed "field:[a,b]" / "field:a..b" / "field:(a,b]"
// literal, open or closed on either side (§4.4 "Ranges may be closed/open
// on either side").
type RangeLiteral struct {
	From, To           string
	FromInclusive, ToInclusive bool
	HasFrom, HasTo     bool
}

type tokenizer struct {
	s   string
	pos int
}

// Tokenize lexes a query string into a flat token stream, honoring quoted
// values and parentheses (§4.4 "Parsing").
func Tokenize(s string) ([]Token, error) {
	tz := &tokenizer{s: s}
	var out []Token
	for {
		tz.skipSpace()
		if tz.pos >= len(tz.s) {
			out = append(out, Token{Kind: TokEOF})
			return out, nil
		}
		c := tz.s[tz.pos]
		switch {
		case c == '(':
			tz.pos++
			out = append(out, Token{Kind: TokLParen})
		case c == ')':
			tz.pos++
			out = append(out, Token{Kind: TokRParen})
		default:
			word := tz.readWord()
			switch strings.ToUpper(word) {
			case "AND":
				out = append(out, Token{Kind: TokAnd})
			case "OR":
				out = append(out, Token{Kind: TokOr})
			case "NOT":
				out = append(out, Token{Kind: TokNot})
			case "XOR":
				out = append(out, Token{Kind: TokXor})
			default:
				tok, err := tz.parseFieldTerm(word)
				if err != nil {
					return nil, err
				}
				out = append(out, tok)
			}
		}
	}
}

func (t *tokenizer) skipSpace() {
	for t.pos < len(t.s) && t.s[t.pos] == ' ' {
		t.pos++
	}
}

// readWord reads up to the next space or parenthesis outside quotes, so a
// quoted value (leading, or after "field:") is read as one token.
func (t *tokenizer) readWord() string {
	start := t.pos
	if t.s[t.pos] == '"' {
		t.pos++
		for t.pos < len(t.s) && t.s[t.pos] != '"' {
			t.pos++
		}
		if t.pos < len(t.s) {
			t.pos++
		}
		return t.s[start:t.pos]
	}
	for t.pos < len(t.s) && t.s[t.pos] != ' ' && t.s[t.pos] != '(' && t.s[t.pos] != ')' {
		if t.s[t.pos] == '"' {
			t.pos++
			for t.pos < len(t.s) && t.s[t.pos] != '"' {
				t.pos++
			}
			if t.pos >= len(t.s) {
				break
			}
		}
		t.pos++
	}
	return t.s[start:t.pos]
}

// parseFieldTerm splits "field:value" forms out of a bare word, per
// §4.4's field:value / field:[a,b] / field:a..b / field:(a,b] / field:"v"
// grammar.
func (t *tokenizer) parseFieldTerm(word string) (Token, error) {
	idx := strings.Index(word, ":")
	if idx < 0 {
		return Token{Kind: TokField, Value: trimQuotes(word)}, nil
	}
	field := word[:idx]
	rest := word[idx+1:]
	if rest == "" {
		return Token{}, xerrors.NewClientError("empty value for field %q", field)
	}
	if rng, ok := parseRange(rest); ok {
		return Token{Kind: TokField, Field: field, Range: rng}, nil
	}
	return Token{Kind: TokField, Field: field, Value: trimQuotes(rest)}, nil
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// parseRange recognizes [a,b] (a,b) [a,b) (a,b] and a..b range literals.
func parseRange(s string) (*RangeLiteral, bool) {
	if strings.Contains(s, "..") && !strings.ContainsAny(s, "[]()") {
		parts := strings.SplitN(s, "..", 2)
		return &RangeLiteral{
			From: parts[0], To: parts[1],
			HasFrom: parts[0] != "", HasTo: parts[1] != "",
			FromInclusive: true, ToInclusive: true,
		}, true
	}
	if len(s) < 2 {
		return nil, false
	}
	openCh := s[0]
	closeCh := s[len(s)-1]
	fromIncl := openCh == '['
	toIncl := closeCh == ']'
	if (openCh != '[' && openCh != '(') || (closeCh != ']' && closeCh != ')') {
		return nil, false
	}
	inner := s[1 : len(s)-1]
	parts := strings.SplitN(inner, ",", 2)
	if len(parts) != 2 {
		return nil, false
	}
	return &RangeLiteral{
		From: parts[0], To: parts[1],
		HasFrom: parts[0] != "", HasTo: parts[1] != "",
		FromInclusive: fromIncl, ToInclusive: toIncl,
	}, true
}
