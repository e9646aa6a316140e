package holidays

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/deskline/helpdesk-sla/internal/sla"
)

type entry struct {
	Date string `yaml:"date" json:"date"`
	Name string `yaml:"name,omitempty" json:"name,omitempty"`
}

type document struct {
	Holidays []entry `yaml:"holidays"`
}

// MarshalJSON writes the date as YYYY-MM-DD.
func (h Holiday) MarshalJSON() ([]byte, error) {
	return json.Marshal(entry{Date: h.Date.String(), Name: h.Name})
}

func (h *Holiday) UnmarshalJSON(b []byte) error {
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		return err
	}
	d, err := sla.ParseDate(e.Date)
	if err != nil {
		return err
	}
	*h = Holiday{Date: d, Name: e.Name}
	return nil
}

// Decode reads a YAML holiday document:
//
//	holidays:
//	  - date: 2025-01-01
//	    name: New Year's Day
func Decode(r io.Reader) ([]Holiday, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode holidays: %w", err)
	}
	out := make([]Holiday, 0, len(doc.Holidays))
	for i, e := range doc.Holidays {
		d, err := sla.ParseDate(e.Date)
		if err != nil {
			return nil, fmt.Errorf("holiday %d: %w", i, err)
		}
		out = append(out, Holiday{Date: d, Name: e.Name})
	}
	return Normalize(out), nil
}

// Encode writes hs in the format Decode reads.
func Encode(w io.Writer, hs []Holiday) error {
	doc := document{Holidays: make([]entry, 0, len(hs))}
	for _, h := range hs {
		doc.Holidays = append(doc.Holidays, entry{Date: h.Date.String(), Name: h.Name})
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return err
	}
	return enc.Close()
}
