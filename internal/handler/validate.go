package handler

import (
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"tableloom/internal/config"
	"tableloom/internal/domain"
	"tableloom/internal/domain/models"
)

// parseSchema decodes the "schema" query param, accepting either a single
// TableInfo object or an array of them, and enforces the table/column/
// sample-row caps from SPEC_FULL.md §4.9.
func parseSchema(raw string) ([]models.TableInfo, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: schema is required", domain.ErrValidation)
	}

	var tables []models.TableInfo
	if err := json.Unmarshal([]byte(raw), &tables); err != nil {
		var single models.TableInfo
		if err2 := json.Unmarshal([]byte(raw), &single); err2 != nil {
			return nil, fmt.Errorf("%w: schema is not valid JSON", domain.ErrValidation)
		}
		tables = []models.TableInfo{single}
	}

	if err := validateTables(tables); err != nil {
		return nil, err
	}

	for i := range tables {
		if len(tables[i].SampleRows) > config.MaxSampleRows {
			tables[i].SampleRows = tables[i].SampleRows[:config.MaxSampleRows]
		}
	}

	return tables, nil
}

func validateTables(tables []models.TableInfo) error {
	if len(tables) == 0 {
		return fmt.Errorf("%w: schema must describe at least one table", domain.ErrValidation)
	}
	if len(tables) > config.MaxTables {
		return fmt.Errorf("%w: schema may describe at most %d tables", domain.ErrValidation, config.MaxTables)
	}
	for _, table := range tables {
		if err := validation.ValidateStruct(&table,
			validation.Field(&table.TableName, validation.Required),
			validation.Field(&table.Columns, validation.Required, validation.Length(1, config.MaxColumnsPerTable)),
		); err != nil {
			return fmt.Errorf("%w: %s", domain.ErrValidation, err.Error())
		}
	}
	return nil
}

func validateQuery(query string) error {
	return validation.Validate(query,
		validation.Required,
		validation.Length(config.MinQueryLength, config.MaxQueryLength),
	)
}

// toolResultRequest is the decoded body of POST /analyze/tool-result.
type toolResultRequest struct {
	SessionID string `json:"sessionId"`
	ToolID    string `json:"toolId"`
	Result    any    `json:"result,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (r toolResultRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.SessionID, validation.Required),
		validation.Field(&r.ToolID, validation.Required),
	)
}
