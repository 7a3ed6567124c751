package runs

import "fmt"

// ConfigurationError reports a required setting missing at call time.
// It is raised before any network call and is never retried.
type ConfigurationError struct {
	Setting string
	Err     error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Setting, e.Err)
	}
	return fmt.Sprintf("configuration: %s is required", e.Setting)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// NotFoundError reports an absent record
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}
