package model

import "fmt"

// ConfigError reports an invalid model declaration. It is raised
// synchronously, before any SQL is issued, and is never retried.
type ConfigError struct {
	Model  string
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("model %s: field %s: %s", e.Model, e.Field, e.Reason)
	}
	return fmt.Sprintf("model %s: %s", e.Model, e.Reason)
}
