package fulltext

import (
	"strings"
	"unicode"
)

// clause is a single term or phrase of a web search query.
type clause struct {
	terms   []string
	offsets []int
	negated bool
}

// Query is a parsed web search query: a disjunction of conjunctions.
//
// Unquoted words are ANDed, "quoted text" is a phrase, the word "or" starts
// a new alternative and a leading '-' negates the following word or phrase.
type Query struct {
	groups [][]clause
}

// Empty reports whether the query reduced to no lexemes at all.
func (q Query) Empty() bool {
	return len(q.groups) == 0
}

// ParseQuery parses raw web search syntax. It never fails: unbalanced quotes
// run to the end of the input and stop words are dropped.
func ParseQuery(raw string) Query {
	var (
		q       Query
		current []clause
		pendOr  bool
	)

	flush := func() {
		if len(current) > 0 {
			q.groups = append(q.groups, current)
			current = nil
		}
	}
	add := func(text string, negated bool) {
		c, ok := newClause(text, negated)
		if !ok {
			return
		}
		if pendOr {
			flush()
			pendOr = false
		}
		current = append(current, c)
	}

	runes := []rune(raw)
	for i := 0; i < len(runes); {
		r := runes[i]
		if unicode.IsSpace(r) {
			i++
			continue
		}

		negated := false
		if r == '-' && i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			negated = true
			i++
			r = runes[i]
		}

		if r == '"' {
			end := i + 1
			for end < len(runes) && runes[end] != '"' {
				end++
			}
			add(string(runes[i+1:end]), negated)
			i = end + 1
			continue
		}

		end := i
		for end < len(runes) && !unicode.IsSpace(runes[end]) && runes[end] != '"' {
			end++
		}
		word := string(runes[i:end])
		i = end

		if !negated && strings.EqualFold(word, "or") {
			if len(current) > 0 {
				pendOr = true
			}
			continue
		}
		add(word, negated)
	}
	flush()
	return q
}

func newClause(text string, negated bool) (clause, bool) {
	lxs := lexemes(text)
	if len(lxs) == 0 {
		return clause{}, false
	}
	c := clause{negated: negated}
	first := lxs[0].pos
	for _, lx := range lxs {
		c.terms = append(c.terms, lx.term)
		c.offsets = append(c.offsets, lx.pos-first)
	}
	return c, true
}

func (c clause) presentIn(v Vector) bool {
	for _, occ := range v[c.terms[0]] {
		found := true
		for i := 1; i < len(c.terms); i++ {
			if !v.hasAt(c.terms[i], occ.Pos+c.offsets[i]) {
				found = false
				break
			}
		}
		if found {
			return true
		}
	}
	return false
}

// Matches reports whether any alternative of the query is satisfied by v.
func (q Query) Matches(v Vector) bool {
	for _, group := range q.groups {
		ok := true
		for _, c := range group {
			if c.presentIn(v) == c.negated {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// Rank sums the weights of every occurrence of the query's positive lexemes.
func (q Query) Rank(v Vector) float64 {
	seen := map[string]bool{}
	var score float64
	for _, group := range q.groups {
		for _, c := range group {
			if c.negated {
				continue
			}
			for _, term := range c.terms {
				if seen[term] {
					continue
				}
				seen[term] = true
				for _, occ := range v[term] {
					score += weights[occ.Weight]
				}
			}
		}
	}
	return score
}
