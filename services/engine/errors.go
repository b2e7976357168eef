package engine

import "fmt"

// Fatal error taxonomy. Non-fatal conditions (order rejections, discarded
// paths, failed folds) are represented as statuses on the records that
// carry them, not as errors.

// ConfigError is raised at construction time for invalid configuration.
type ConfigError struct {
	Field string
	Msg   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Msg)
}

// DataQualityError is raised when too much of the input series is unusable.
type DataQualityError struct {
	Reason  string
	Invalid int
	Total   int
	Limit   float64
}

func (e *DataQualityError) Error() string {
	if e.Total == 0 {
		return fmt.Sprintf("data quality: %s", e.Reason)
	}
	return fmt.Sprintf("data quality: %s (%d/%d invalid, limit %.2f)", e.Reason, e.Invalid, e.Total, e.Limit)
}
