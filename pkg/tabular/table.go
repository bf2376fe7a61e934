package tabular

// Table is an in-memory tabular dataset: named columns with
// positionally-ordered rows. Cells are strings; the empty string is the
// missing-value marker throughout the pipeline.
type Table struct {
	Columns []string
	Rows    []Row
}

type Row map[string]string

func New(columns ...string) *Table {
	return &Table{Columns: append([]string(nil), columns...)}
}

func (t *Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

func (t *Table) Append(row Row) {
	if row == nil {
		row = Row{}
	}
	t.Rows = append(t.Rows, row)
}

// AddColumn registers a column name if not already present. Existing rows
// are left untouched; absent keys read as missing.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Columns = append(t.Columns, name)
	}
}

func (t *Table) DropColumn(name string) {
	cols := t.Columns[:0]
	for _, c := range t.Columns {
		if c != name {
			cols = append(cols, c)
		}
	}
	t.Columns = cols
	for _, row := range t.Rows {
		delete(row, name)
	}
}

// RenameColumns applies a source→target column mapping. Columns not named
// in the mapping pass through unchanged.
func (t *Table) RenameColumns(mapping map[string]string) {
	if len(mapping) == 0 {
		return
	}
	for i, c := range t.Columns {
		if target, ok := mapping[c]; ok {
			t.Columns[i] = target
		}
	}
	for _, row := range t.Rows {
		for src, target := range mapping {
			if src == target {
				continue
			}
			if v, ok := row[src]; ok {
				row[target] = v
				delete(row, src)
			}
		}
	}
}

func (t *Table) Clone() *Table {
	clone := &Table{Columns: append([]string(nil), t.Columns...)}
	clone.Rows = make([]Row, len(t.Rows))
	for i, row := range t.Rows {
		copied := make(Row, len(row))
		for k, v := range row {
			copied[k] = v
		}
		clone.Rows[i] = copied
	}
	return clone
}

func (t *Table) Len() int {
	return len(t.Rows)
}
