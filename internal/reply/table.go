package reply

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Table is the ordered, read-only set of categories a Selector scans.
// Build it with NewTable, DefaultTable or LoadTable.
type Table struct {
	categories []Category
	fallback   []string
}

// NewTable copies categories and fallback into a new Table. Patterns are
// lowercased so matching against lowercased input stays case-insensitive.
func NewTable(categories []Category, fallback []string) (*Table, error) {
	if len(fallback) == 0 {
		return nil, errors.New("reply: default responses must not be empty")
	}
	for _, r := range fallback {
		if strings.TrimSpace(r) == "" {
			return nil, errors.New("reply: default responses must not contain blank entries")
		}
	}

	t := &Table{
		categories: make([]Category, 0, len(categories)),
		fallback:   append([]string(nil), fallback...),
	}
	for i, c := range categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("reply: category %d has no name", i)
		}
		if name == DefaultCategory {
			return nil, fmt.Errorf("reply: category name %q is reserved", DefaultCategory)
		}
		patterns := make([]string, 0, len(c.Patterns))
		for _, p := range c.Patterns {
			if p == "" {
				// An empty pattern would match every input.
				return nil, fmt.Errorf("reply: category %q has an empty pattern", name)
			}
			patterns = append(patterns, strings.ToLower(p))
		}
		t.categories = append(t.categories, Category{
			Name:      name,
			Patterns:  patterns,
			Responses: append([]string(nil), c.Responses...),
		})
	}
	return t, nil
}

// Categories returns a copy of the table's categories in scan order.
func (t *Table) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = Category{
			Name:      c.Name,
			Patterns:  append([]string(nil), c.Patterns...),
			Responses: append([]string(nil), c.Responses...),
		}
	}
	return out
}

// Fallback returns a copy of the default responses.
func (t *Table) Fallback() []string {
	return append([]string(nil), t.fallback...)
}

// DefaultTable returns the built-in reply table.
func DefaultTable() *Table {
	t, err := NewTable([]Category{
		{
			Name:      "greeting",
			Patterns:  []string{"hello", "hi", "hey", "greetings"},
			Responses: []string{"Hello! How can I help you today?", "Hi there! What can I do for you?"},
		},
		{
			Name:      "farewell",
			Patterns:  []string{"bye", "goodbye", "see you", "thanks"},
			Responses: []string{"Goodbye! Have a great day!", "See you later! Take care!"},
		},
		{
			Name:      "about",
			Patterns:  []string{"who are you", "what are you", "what do you do"},
			Responses: []string{"I am a chatbot designed to help answer your questions!", "I'm your friendly AI assistant, here to help!"},
		},
		{
			Name:      "help",
			Patterns:  []string{"help", "support", "assist"},
			Responses: []string{"I can help you with general questions, information, and basic tasks. What do you need?"},
		},
		{
			Name:      "weather",
			Patterns:  []string{"weather", "temperature", "forecast"},
			Responses: []string{"I can't check real-time weather, but I can help you find a weather service!"},
		},
	}, []string{
		"I'm not sure I understand. Could you rephrase that?",
		"Interesting question! Could you provide more details?",
		"I'm still learning. Could you try asking in a different way?",
	})
	if err != nil {
		panic(err)
	}
	return t
}

type tableFile struct {
	Categories []Category `json:"categories"`
	Default    []string   `json:"default"`
}

// LoadTable reads a JSON reply table:
//
//	{"categories":[{"name":"greeting","patterns":["hi"],"responses":["Hello!"]}],
//	 "default":["Sorry?"]}
func LoadTable(path string) (*Table, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reply: read table: %w", err)
	}
	var f tableFile
	if err := json.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("reply: decode table %q: %w", path, err)
	}
	t, err := NewTable(f.Categories, f.Default)
	if err != nil {
		return nil, fmt.Errorf("reply: table %q: %w", path, err)
	}
	return t, nil
}
