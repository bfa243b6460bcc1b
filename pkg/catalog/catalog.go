// Package catalog loads and builds the ATT&CK technique table served by the reference pages.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Header is the column layout of the technique CSV
var Header = []string{
	"Tactic_Name",
	"Tactic_ID",
	"Tactic_Description",
	"Technique_Name",
	"Technique_ID",
	"Technique_Description",
	"Platform",
	"Matrices",
	"CIA",
	"STRIDE",
}

// ErrNotFound is returned by lookups for ids the catalog does not contain
var ErrNotFound = errors.New("technique not found")

// Technique is one tactic/technique row; a technique mapped to several tactics appears once per tactic
type Technique struct {
	TacticName           string `json:"tactic_name"`
	TacticID             string `json:"tactic_id"`
	TacticDescription    string `json:"tactic_description"`
	TechniqueName        string `json:"technique_name"`
	TechniqueID          string `json:"technique_id"`
	TechniqueDescription string `json:"technique_description"`
	Platform             string `json:"platform"`
	Matrices             string `json:"matrices"`
	CIA                  string `json:"cia"`
	STRIDE               string `json:"stride"`
}

func (t Technique) row() []string {
	return []string{
		t.TacticName, t.TacticID, t.TacticDescription,
		t.TechniqueName, t.TechniqueID, t.TechniqueDescription,
		t.Platform, t.Matrices, t.CIA, t.STRIDE,
	}
}

// Catalog is an immutable in-memory technique table
type Catalog struct {
	rows   []Technique
	byID   map[string][]int
	tactic map[string]string // lowercased tactic name or id -> tactic id
}

// Load reads a technique CSV from disk
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	defer f.Close()

	return Read(f)
}

// Read parses a technique CSV; columns are matched by header name so extra columns are ignored
func Read(r io.Reader) (*Catalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	head, err := reader.Read()
	if err == io.EOF {
		return New(nil), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog header: %w", err)
	}

	index := make(map[string]int, len(head))
	for i, name := range head {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	for _, required := range []string{"Technique_Name", "Technique_ID"} {
		if _, ok := index[required]; !ok {
			return nil, fmt.Errorf("catalog header is missing column %q", required)
		}
	}

	get := func(row []string, column string) string {
		i, ok := index[column]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	var rows []Technique
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog row: %w", err)
		}
		rows = append(rows, Technique{
			TacticName:           get(row, "Tactic_Name"),
			TacticID:             get(row, "Tactic_ID"),
			TacticDescription:    get(row, "Tactic_Description"),
			TechniqueName:        get(row, "Technique_Name"),
			TechniqueID:          get(row, "Technique_ID"),
			TechniqueDescription: get(row, "Technique_Description"),
			Platform:             get(row, "Platform"),
			Matrices:             get(row, "Matrices"),
			CIA:                  get(row, "CIA"),
			STRIDE:               get(row, "STRIDE"),
		})
	}

	return New(rows), nil
}

// New indexes rows into a catalog
func New(rows []Technique) *Catalog {
	c := &Catalog{
		rows:   rows,
		byID:   make(map[string][]int),
		tactic: make(map[string]string),
	}
	for i, t := range rows {
		id := strings.ToUpper(t.TechniqueID)
		c.byID[id] = append(c.byID[id], i)
		if t.TacticID != "" {
			c.tactic[strings.ToLower(t.TacticID)] = t.TacticID
			c.tactic[strings.ToLower(t.TacticName)] = t.TacticID
		}
	}
	return c
}

// Len returns the number of rows
func (c *Catalog) Len() int {
	return len(c.rows)
}

// All returns a copy of every row in file order
func (c *Catalog) All() []Technique {
	out := make([]Technique, len(c.rows))
	copy(out, c.rows)
	return out
}

// ByID returns every row for a technique or sub-technique id, case-insensitive
func (c *Catalog) ByID(id string) ([]Technique, error) {
	idx, ok := c.byID[strings.ToUpper(strings.TrimSpace(id))]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Technique, 0, len(idx))
	for _, i := range idx {
		out = append(out, c.rows[i])
	}
	return out, nil
}

// ByTactic returns the rows of one tactic, matched by name or id; unknown tactics yield nothing
func (c *Catalog) ByTactic(tactic string) []Technique {
	id, ok := c.tactic[strings.ToLower(strings.TrimSpace(tactic))]
	if !ok {
		return nil
	}
	var out []Technique
	for _, t := range c.rows {
		if t.TacticID == id {
			out = append(out, t)
		}
	}
	return out
}

// TacticSummary counts techniques per tactic
type TacticSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Techniques int    `json:"techniques"`
}

// Tactics lists tactics in first-seen order
func (c *Catalog) Tactics() []TacticSummary {
	pos := make(map[string]int)
	var out []TacticSummary
	for _, t := range c.rows {
		i, ok := pos[t.TacticID]
		if !ok {
			i = len(out)
			pos[t.TacticID] = i
			out = append(out, TacticSummary{ID: t.TacticID, Name: t.TacticName})
		}
		out[i].Techniques++
	}
	return out
}

// Write encodes rows as technique CSV
func Write(w io.Writer, rows []Technique) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Header); err != nil {
		return fmt.Errorf("failed to write catalog header: %w", err)
	}
	for _, t := range rows {
		if err := writer.Write(t.row()); err != nil {
			return fmt.Errorf("failed to write catalog row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
