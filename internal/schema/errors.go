package schema

import "fmt"

// ConfigError reports a schema that failed to load, merge or validate.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("schema config: %v", e.Err)
	}
	return fmt.Sprintf("schema config %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}
