// Package prompt assembles the system prompt and initial user message from
// a user query and table schema. Build is a pure function: identical inputs
// produce byte-identical outputs, so it never iterates a map or embeds a
// timestamp/random value.
package prompt

import (
	"fmt"
	"strings"

	"tableloom/internal/domain/models"
)

// Build returns the deterministic (systemPrompt, userMessage) pair for the
// given query and table schema.
func Build(query string, schema []models.TableInfo) (system string, user string) {
	return buildSystem(schema), buildUser(query, schema)
}

func buildSystem(schema []models.TableInfo) string {
	var b strings.Builder

	b.WriteString("You are a data analysis assistant. You answer questions about tabular data by ")
	b.WriteString("invoking tools that run against the user's tables, then concluding with final_answer. ")
	b.WriteString("Every tool call must include a \"thought\" explaining why it was chosen.\n\n")

	if len(schema) == 1 {
		b.WriteString("The user has loaded one table:\n\n")
	} else {
		b.WriteString(fmt.Sprintf("The user has loaded %d tables. When a question spans more than one table, ", len(schema)))
		b.WriteString("identify a join key from the overlapping columns before querying.\n\n")
	}

	for _, table := range schema {
		writeTableDescription(&b, table)
	}

	return b.String()
}

func buildUser(query string, schema []models.TableInfo) string {
	var b strings.Builder
	b.WriteString(query)
	b.WriteString("\n\n")

	if len(schema) == 1 {
		b.WriteString(fmt.Sprintf("Table available: %s (%d rows).\n", schema[0].TableName, schema[0].RowCount))
	} else {
		b.WriteString("Tables available:\n")
		for _, table := range schema {
			b.WriteString(fmt.Sprintf("- %s (%d rows)\n", table.TableName, table.RowCount))
		}
	}

	return b.String()
}

func writeTableDescription(b *strings.Builder, table models.TableInfo) {
	b.WriteString(fmt.Sprintf("Table \"%s\" (%d rows, %d columns):\n", table.TableName, table.RowCount, len(table.Columns)))
	b.WriteString("  Columns: ")
	for i, col := range table.Columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(col)
	}
	b.WriteString("\n")

	if len(table.SampleRows) > 0 {
		b.WriteString("  Sample rows:\n")
		for _, row := range table.SampleRows {
			b.WriteString("    ")
			writeRow(b, table.Columns, row)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
}

// writeRow renders a sample row in column order rather than map-iteration
// order, so output is deterministic regardless of Go's randomised map
// iteration.
func writeRow(b *strings.Builder, columns []string, row map[string]any) {
	b.WriteString("{")
	for i, col := range columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(fmt.Sprintf("%s: %v", col, row[col]))
	}
	b.WriteString("}")
}
