package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// Catalog is the fixed, ordered question list. Read-only after start.
type Catalog struct {
	questions []Question
}

func NewCatalog(qs []Question) *Catalog {
	return &Catalog{questions: append([]Question(nil), qs...)}
}

// Questions returns a copy in catalog order.
func (c *Catalog) Questions() []Question {
	return append([]Question(nil), c.questions...)
}

func (c *Catalog) Len() int { return len(c.questions) }

func (c *Catalog) ValidIndex(i int) bool { return i >= 0 && i < len(c.questions) }

func DefaultCatalog() *Catalog {
	return NewCatalog([]Question{
		{
			ID:            "q1",
			Text:          "Describe a real-world scenario where you would choose a hash table over a binary search tree. Explain your reasoning, including the trade-offs involved in this decision.",
			Topic:         "Data Structures & Algorithms",
			GuidanceNotes: optional("Consider time complexity, memory usage, and specific use case requirements in your answer."),
		},
		{
			ID:            "q2",
			Text:          "Explain the concept of eventual consistency in distributed systems. Provide an example of a real-world application where eventual consistency is acceptable and describe the trade-offs.",
			Topic:         "System Design",
			GuidanceNotes: optional("Address CAP theorem implications and discuss scenarios where consistency can be relaxed."),
		},
		{
			ID:            "q3",
			Text:          "Compare and contrast the Observer and Pub/Sub design patterns. When would you use one over the other? Provide concrete examples from software you've worked with or designed.",
			Topic:         "Software Design Patterns",
			GuidanceNotes: optional("Consider coupling, scalability, and message delivery guarantees in your comparison."),
		},
		{
			ID:            "q4",
			Text:          "Describe your approach to debugging a production issue where API response times have suddenly increased from 100ms to 5 seconds. What tools and methodology would you use?",
			Topic:         "Problem Solving & Debugging",
			GuidanceNotes: optional("Consider monitoring, profiling, database queries, network latency, and systematic elimination."),
		},
	})
}

// ==== JSON input structures ====

type QInput struct {
	ID            string `json:"id"`
	Text          string `json:"text"`
	Code          string `json:"code"`
	Topic         string `json:"topic"`
	GuidanceNotes string `json:"guidanceNotes"`
}

// LoadCatalog reads questions from a JSON file.
// Accepts either [ ... ] or { "questions": [ ... ] }.
func LoadCatalog(path string) (*Catalog, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var wrapper struct {
		Questions []QInput `json:"questions"`
	}
	var arr []QInput

	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Questions) > 0 {
		arr = wrapper.Questions
	} else if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, fmt.Errorf("json parse: %w", err)
	}
	if len(arr) == 0 {
		return nil, errors.New("catalog has no questions")
	}

	seen := map[string]bool{}
	dups := []string{}
	qs := make([]Question, 0, len(arr))
	for _, in := range arr {
		id := strings.TrimSpace(in.ID)
		if id == "" || strings.TrimSpace(in.Text) == "" {
			return nil, fmt.Errorf("question %q: id and text are required", in.ID)
		}
		if seen[id] {
			dups = append(dups, id)
		}
		seen[id] = true
		qs = append(qs, Question{
			ID:            id,
			Text:          in.Text,
			Code:          optional(in.Code),
			Topic:         strings.TrimSpace(in.Topic),
			GuidanceNotes: optional(in.GuidanceNotes),
		})
	}
	if len(dups) > 0 {
		return nil, fmt.Errorf("duplicate question IDs in JSON: %v", dups)
	}
	return NewCatalog(qs), nil
}

// optional maps blank strings to nil so they are omitted from JSON.
func optional(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
