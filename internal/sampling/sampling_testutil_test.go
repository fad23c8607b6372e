package sampling

import "github.com/pgsample/pgsample/internal/catalog"

func tableWithColumns(name string, cols ...string) catalog.Table {
	t := catalog.Table{Schema: "public", Name: name}
	for i, c := range cols {
		t.Columns = append(t.Columns, catalog.Column{Name: c, Ordinal: i + 1})
	}
	return t
}
