package batch

import (
	"fmt"
	"strconv"
	"strings"
)

// maxBoundParams is Postgres's hard ceiling on bound parameters per
// statement.
const maxBoundParams = 65535

// chunkSizeFor returns the largest row count that keeps a single
// bulk-insert statement for spec under the parameter ceiling, capped
// by the configured default.
func chunkSizeFor(spec tableSpec, configured int) int {
	ceiling := maxBoundParams / spec.ParamsPerRow()
	if configured > 0 && configured < ceiling {
		return configured
	}
	return ceiling
}

// buildInsert constructs one parameterized bulk-insert statement for
// rowCount rows of spec, with the family's conflict clause appended.
func buildInsert(spec tableSpec, rowCount int) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", spec.Table, strings.Join(spec.Columns, ", "))

	paramsPerRow := spec.ParamsPerRow()
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteByte('(')
		for col := 0; col < paramsPerRow; col++ {
			if col > 0 {
				sb.WriteByte(',')
			}
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(row*paramsPerRow + col + 1))
		}
		sb.WriteByte(')')
	}

	fmt.Fprintf(&sb, " ON CONFLICT (%s) ", strings.Join(spec.conflictTarget(), ", "))

	switch spec.Conflict {
	case conflictDoNothing:
		sb.WriteString("DO NOTHING")
	case conflictCoalesce:
		sb.WriteString("DO UPDATE SET ")
		first := true
		target := conflictTargetSet(spec.conflictTarget())
		for _, col := range spec.Columns {
			if col == "id" || target[col] {
				continue
			}
			if !first {
				sb.WriteString(", ")
			}
			first = false
			fmt.Fprintf(&sb, "%s = COALESCE(EXCLUDED.%s, %s.%s)", col, col, spec.Table, col)
		}
	}

	return sb.String()
}

func conflictTargetSet(cols []string) map[string]bool {
	set := make(map[string]bool, len(cols))
	for _, c := range cols {
		set[c] = true
	}
	return set
}
