package models

// Dataset is parsed tabular data normalized from CSV or JSON input.
// Cells are kept as strings; type inference happens in the summary engine.
type Dataset struct {
	Columns []string   `json:"columns"`
	Rows    [][]string `json:"rows"`
	// Sampled is true when the source had more rows than the configured
	// limit and only a prefix was loaded
	Sampled bool `json:"sampled,omitempty"`
}

// Cell returns the value at (row, col), or "" when out of range
func (d *Dataset) Cell(row, col int) string {
	if row < 0 || row >= len(d.Rows) {
		return ""
	}
	r := d.Rows[row]
	if col < 0 || col >= len(r) {
		return ""
	}
	return r[col]
}

// Column returns all values of the named column in row order
func (d *Dataset) Column(name string) []string {
	idx := -1
	for i, c := range d.Columns {
		if c == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}
	out := make([]string, 0, len(d.Rows))
	for _, row := range d.Rows {
		if idx < len(row) {
			out = append(out, row[idx])
		} else {
			out = append(out, "")
		}
	}
	return out
}
