package formatter

import (
	"fmt"
	"strings"

	"github.com/tordrt/megamerge/internal/schema"
)

// describeConstraints renders each declared constraint as one short clause
func describeConstraints(c schema.Constraints) []string {
	var out []string

	if len(c.PrimaryKey) > 0 {
		out = append(out, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(c.PrimaryKey, ", ")))
	}
	for _, col := range c.NotNull {
		out = append(out, "NOT NULL "+col)
	}
	for _, d := range c.Defaults {
		out = append(out, fmt.Sprintf("DEFAULT %s = %s", d.Column, d.Value))
	}
	for _, idx := range c.Indexes {
		kind := "INDEX"
		if idx.IsUnique {
			kind = "UNIQUE INDEX"
		}
		out = append(out, fmt.Sprintf("%s %s (%s)", kind, idx.Name, strings.Join(idx.Columns, ", ")))
	}
	for _, fk := range c.ForeignKeys {
		target := fk.TargetTable
		if fk.TargetColumn != "" {
			target += "(" + fk.TargetColumn + ")"
		}
		out = append(out, fmt.Sprintf("FOREIGN KEY %s -> %s", fk.Column, target))
	}
	return out
}
