package fulltext

import (
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
)

// Components are the weighted text tiers of a content item.
// A is the title or primary text, B the tag names, C the body or secondary text.
type Components struct {
	A string
	B string
	C string
}

// Weights used when ranking, matching the defaults of PostgreSQL's ts_rank.
var weights = map[byte]float64{
	'A': 1.0,
	'B': 0.4,
	'C': 0.2,
	'D': 0.1,
}

type Occurrence struct {
	Pos    int
	Weight byte
}

// Vector maps a lexeme to its positions in the document.
type Vector map[string][]Occurrence

var (
	analyzeOnce sync.Once
	analyze     func([]byte) analysis.TokenStream
)

func englishAnalyzer() func([]byte) analysis.TokenStream {
	analyzeOnce.Do(func() {
		m := bleve.NewIndexMapping()
		analyze = m.AnalyzerNamed(en.AnalyzerName).Analyze
	})
	return analyze
}

type lexeme struct {
	term string
	pos  int
}

// lexemes runs text through the English analyzer. Positions are 1-based and
// keep the gaps left by removed stop words.
func lexemes(text string) []lexeme {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	tokens := englishAnalyzer()([]byte(text))
	out := make([]lexeme, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok.Term) == 0 {
			continue
		}
		out = append(out, lexeme{term: string(tok.Term), pos: tok.Position})
	}
	return out
}

// BuildVector analyses the three tiers in order, offsetting positions so each
// tier follows the previous one.
func BuildVector(c Components) Vector {
	v := Vector{}
	offset := 0
	for _, tier := range []struct {
		text   string
		weight byte
	}{{c.A, 'A'}, {c.B, 'B'}, {c.C, 'C'}} {
		maxPos := 0
		for _, lx := range lexemes(tier.text) {
			pos := offset + lx.pos
			v[lx.term] = append(v[lx.term], Occurrence{Pos: pos, Weight: tier.weight})
			if lx.pos > maxPos {
				maxPos = lx.pos
			}
		}
		offset += maxPos
	}
	return v
}

// Encode serialises a vector as "lexeme:1A,4C other:2B", lexemes sorted.
func (v Vector) Encode() string {
	terms := make([]string, 0, len(v))
	for term := range v {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var b strings.Builder
	for i, term := range terms {
		if i > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(term)
		b.WriteByte(':')
		for j, occ := range v[term] {
			if j > 0 {
				b.WriteByte(',')
			}
			b.WriteString(strconv.Itoa(occ.Pos))
			b.WriteByte(occ.Weight)
		}
	}
	return b.String()
}

// DecodeVector parses the output of Encode. Malformed entries are skipped.
func DecodeVector(s string) Vector {
	v := Vector{}
	for _, entry := range strings.Fields(s) {
		// lexemes may themselves contain ':' so split on the last one
		idx := strings.LastIndexByte(entry, ':')
		if idx <= 0 || idx == len(entry)-1 {
			continue
		}
		term := entry[:idx]
		for _, raw := range strings.Split(entry[idx+1:], ",") {
			if len(raw) < 2 {
				continue
			}
			weight := raw[len(raw)-1]
			pos, err := strconv.Atoi(raw[:len(raw)-1])
			if err != nil {
				continue
			}
			if _, ok := weights[weight]; !ok {
				weight = 'D'
			}
			v[term] = append(v[term], Occurrence{Pos: pos, Weight: weight})
		}
	}
	return v
}

func (v Vector) hasAt(term string, pos int) bool {
	for _, occ := range v[term] {
		if occ.Pos == pos {
			return true
		}
	}
	return false
}
