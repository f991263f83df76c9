package prompt

import (
	"strings"
	"testing"

	"tableloom/internal/domain/models"
)

func sampleSchema() []models.TableInfo {
	return []models.TableInfo{
		{
			TableName:  "data",
			Columns:    []string{"a", "b"},
			SampleRows: []map[string]any{{"a": 1, "b": 2}},
			RowCount:   3,
		},
	}
}

func TestBuild_Deterministic(t *testing.T) {
	query := "Show the first 3 rows"
	schema := sampleSchema()

	sys1, user1 := Build(query, schema)
	sys2, user2 := Build(query, schema)

	if sys1 != sys2 {
		t.Errorf("system prompt not deterministic:\n%q\nvs\n%q", sys1, sys2)
	}
	if user1 != user2 {
		t.Errorf("user message not deterministic:\n%q\nvs\n%q", user1, user2)
	}
}

func TestBuild_SingularVsPlural(t *testing.T) {
	single := sampleSchema()
	multi := append(sampleSchema(), models.TableInfo{TableName: "other", Columns: []string{"c"}, RowCount: 1})

	sysSingle, _ := Build("q", single)
	sysMulti, _ := Build("q", multi)

	if sysSingle == sysMulti {
		t.Error("single-table and multi-table system prompts should differ in phrasing")
	}
}

func TestBuild_IncludesTableMetadata(t *testing.T) {
	sys, user := Build("Show the first 3 rows", sampleSchema())

	if !containsAll(sys, "data", "a", "b") {
		t.Errorf("system prompt missing table metadata: %q", sys)
	}
	if !containsAll(user, "Show the first 3 rows", "data") {
		t.Errorf("user message missing query/table reference: %q", user)
	}
}

func containsAll(s string, subs ...string) bool {
	for _, sub := range subs {
		if !strings.Contains(s, sub) {
			return false
		}
	}
	return true
}
