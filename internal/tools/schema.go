// Package tools declares the catalog of tools the LLM may invoke, and
// classifies each as browser-executed (suspends the turn loop, the client
// computes the result) or server-terminal (final_answer, concludes the
// analysis). SPEC_FULL.md §4.5.
package tools

// Classification distinguishes tools the turn loop must suspend for from
// the one tool that concludes an analysis server-side.
type Classification string

const (
	// BrowserExecuted tools are returned to the client as a tool_call event;
	// the turn loop suspends until the result is posted back.
	BrowserExecuted Classification = "browser_executed"

	// ServerTerminal tools are handled entirely by the turn loop: their
	// input is synthesised directly into the answer event.
	ServerTerminal Classification = "server_terminal"
)

const (
	RunQuery            = "run_query"
	GetColumnStats      = "get_column_stats"
	GetValueDistribution = "get_value_distribution"
	TransformData       = "transform_data"
	FinalAnswer         = "final_answer"
)

// Tool is one catalog entry: name, description, JSON-schema for inputs, and
// its dispatch classification.
type Tool struct {
	Name           string
	Description    string
	Classification Classification
	// InputSchema is a raw JSON-schema object, passed straight through to
	// the LLM Client's provider-specific tool-definition encoding.
	InputSchema map[string]any
}

// thoughtProperty is embedded in every tool's input schema: every tool call
// must carry a "thought" string alongside its parameters (§4.5).
var thoughtProperty = map[string]any{
	"type":        "string",
	"description": "Brief explanation of why this tool call was chosen.",
}

func withThought(properties map[string]any, required ...string) map[string]any {
	props := map[string]any{"thought": thoughtProperty}
	for k, v := range properties {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   append([]string{"thought"}, required...),
	}
}

// Catalog is the full declarative tool list the turn loop offers the LLM.
func Catalog() []Tool {
	return []Tool{
		{
			Name:           RunQuery,
			Description:    "Run a SQL query against the loaded tables and return the resulting rows.",
			Classification: BrowserExecuted,
			InputSchema: withThought(map[string]any{
				"sql": map[string]any{"type": "string", "description": "SQL query to execute."},
			}, "sql"),
		},
		{
			Name:           GetColumnStats,
			Description:    "Return summary statistics (min, max, mean, null count, distinct count) for a column.",
			Classification: BrowserExecuted,
			InputSchema: withThought(map[string]any{
				"table":  map[string]any{"type": "string"},
				"column": map[string]any{"type": "string"},
			}, "table", "column"),
		},
		{
			Name:           GetValueDistribution,
			Description:    "Return the value frequency distribution for a column.",
			Classification: BrowserExecuted,
			InputSchema: withThought(map[string]any{
				"table":  map[string]any{"type": "string"},
				"column": map[string]any{"type": "string"},
				"limit":  map[string]any{"type": "integer", "description": "Maximum distinct values to return."},
			}, "table", "column"),
		},
		{
			Name:           TransformData,
			Description:    "Run a JavaScript transform over a prior step's result and return the transformed rows.",
			Classification: BrowserExecuted,
			InputSchema: withThought(map[string]any{
				"sourceStep": map[string]any{"type": "string", "description": "step_N key of the data to transform."},
				"script":     map[string]any{"type": "string", "description": "JavaScript expression producing the transformed rows."},
			}, "sourceStep", "script"),
		},
		{
			Name:           FinalAnswer,
			Description:    "Conclude the analysis with a user-facing answer and optional chart specification.",
			Classification: ServerTerminal,
			InputSchema: withThought(map[string]any{
				"answer":    map[string]any{"type": "string"},
				"chartType": map[string]any{"type": "string", "enum": []string{"table", "bar", "line", "pie", "scatter"}},
				"axes": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"x": map[string]any{"type": "string"},
						"y": map[string]any{"type": "string"},
					},
				},
			}, "answer", "chartType"),
		},
	}
}

// ByName returns the catalog entry with the given name, and whether it exists.
func ByName(name string) (Tool, bool) {
	for _, t := range Catalog() {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// IsBrowserExecuted reports whether name is a known browser-executed tool.
func IsBrowserExecuted(name string) bool {
	t, ok := ByName(name)
	return ok && t.Classification == BrowserExecuted
}

// IsServerTerminal reports whether name is the server-terminal tool.
func IsServerTerminal(name string) bool {
	t, ok := ByName(name)
	return ok && t.Classification == ServerTerminal
}
