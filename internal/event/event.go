package event

import (
	"bytes"
	"encoding/json"
)

// ObjectRecord is one reconstructed electron candidate.
type ObjectRecord struct {
	Energy float64 `json:"energy"`
	Pt     float64 `json:"pt"`
	Px     float64 `json:"px"`
	Py     float64 `json:"py"`
	Pz     float64 `json:"pz"`
	Eta    float64 `json:"eta"`
	Phi    float64 `json:"phi"`
	Charge float64 `json:"charge"`
	Global bool    `json:"global"` // globally reconstructed candidate
}

// Resolve implements condition.EvalContext over the record's attributes.
func (r *ObjectRecord) Resolve(path []string) (interface{}, bool) {
	if len(path) != 1 {
		return nil, false
	}
	switch path[0] {
	case "global":
		return r.Global, true
	case "energy", "e":
		return r.Energy, true
	case "pt":
		return r.Pt, true
	case "px":
		return r.Px, true
	case "py":
		return r.Py, true
	case "pz":
		return r.Pz, true
	case "eta":
		return r.Eta, true
	case "phi":
		return r.Phi, true
	case "charge", "q":
		return r.Charge, true
	}
	return nil, false
}

// IsRecordField reports whether path names an ObjectRecord attribute.
func IsRecordField(path []string) bool {
	_, ok := (&ObjectRecord{}).Resolve(path)
	return ok
}

// Collection is a named group of records for one event.
// A collection with Valid == false is treated the same as a missing one.
type Collection struct {
	Valid   bool           `json:"valid"`
	Objects []ObjectRecord `json:"objects"`
}

// UnmarshalJSON treats an omitted "valid" as true. A JSON null decodes to an
// invalid collection.
func (c *Collection) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = Collection{}
		return nil
	}
	type plain Collection
	aux := plain{Valid: true}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*c = Collection(aux)
	return nil
}

// Event is the canonical input model: one unit of detector data.
type Event struct {
	ID          string                `json:"id,omitempty"`
	Run         uint64                `json:"run"`
	Lumi        uint32                `json:"lumi"`
	Event       uint64                `json:"event"`
	Collections map[string]Collection `json:"collections"`
}

// Collection returns the records stored under label and whether the
// collection is present and valid.
func (e *Event) Collection(label string) ([]ObjectRecord, bool) {
	if e == nil || e.Collections == nil {
		return nil, false
	}
	c, ok := e.Collections[label]
	if !ok || !c.Valid {
		return nil, false
	}
	return c.Objects, true
}
