package reply

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// Selector picks a reply for normalized text by scanning a Table.
type Selector struct {
	table *Table

	mu  sync.Mutex
	rnd Rand
}

// NewSelector returns a Selector over table. A nil table means
// DefaultTable; a nil rnd gets a time-seeded source.
func NewSelector(table *Table, rnd Rand) *Selector {
	if table == nil {
		table = DefaultTable()
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Selector{table: table, rnd: rnd}
}

// Respond returns a reply for text. The first category, in table order,
// with a pattern contained in the lowercased text wins; otherwise a
// default reply is returned.
func (s *Selector) Respond(text string) string {
	c := s.match(strings.ToLower(text))
	if c == nil {
		return s.pick(s.table.fallback)
	}
	return s.pick(c.Responses)
}

// Match reports which category Respond would answer from.
func (s *Selector) Match(text string) string {
	c := s.match(strings.ToLower(text))
	if c == nil {
		return DefaultCategory
	}
	return c.Name
}

func (s *Selector) match(input string) *Category {
	for i := range s.table.categories {
		c := &s.table.categories[i]
		// no responses: treated as no match
		if len(c.Responses) == 0 {
			continue
		}
		for _, p := range c.Patterns {
			if strings.Contains(input, p) {
				return c
			}
		}
	}
	return nil
}

func (s *Selector) pick(candidates []string) string {
	s.mu.Lock()
	n := s.rnd.Intn(len(candidates))
	s.mu.Unlock()
	return candidates[n]
}
