package model

// FieldKind is the declared type of a datastore field.
type FieldKind string

const (
	FieldText   FieldKind = "text"
	FieldNumber FieldKind = "number"
	FieldURL    FieldKind = "url"
)

// Field describes one column of the target table.
type Field struct {
	Name string    `json:"name"`
	Kind FieldKind `json:"kind"`
}

// ProjectedRecord is one item flattened into field values, ready for
// write-back. Order preserves the declared field order so backends that care
// about column order (xlsx export, slot fill) stay deterministic.
type ProjectedRecord struct {
	Key    string         `json:"key"`
	Order  []string       `json:"order"`
	Values map[string]any `json:"values"`
}

// Set appends a field value, keeping declaration order.
func (r *ProjectedRecord) Set(name string, v any) {
	if r.Values == nil {
		r.Values = make(map[string]any)
	}
	if _, ok := r.Values[name]; !ok {
		r.Order = append(r.Order, name)
	}
	r.Values[name] = v
}
