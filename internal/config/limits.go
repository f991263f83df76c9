package config

const (
	// MinQueryLength and MaxQueryLength bound the user's question (§4.9).
	MinQueryLength = 1
	MaxQueryLength = 1000

	// MaxTables bounds how many TableInfo entries a single schema may carry.
	MaxTables = 10

	// MaxColumnsPerTable bounds the width of any one table.
	MaxColumnsPerTable = 100

	// MaxSampleRows is the cap sample_rows is silently truncated to.
	MaxSampleRows = 20

	// MaxToolResultRows is the cap applied to a tool-result row array before
	// persisting it in the session, per SPEC_FULL.md §9.
	MaxToolResultRows = 500
)
