package cvsite

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aws/smithy-go"
)

// ConfigurationError reports invalid or missing input detected before any external call.
type ConfigurationError struct {
	Field  string
	Value  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s: %s", errorCodeConfiguration, e.Field, e.Reason)
	}
	return fmt.Sprintf("%s: %s %q: %s", errorCodeConfiguration, e.Field, e.Value, e.Reason)
}

// NewConfigurationError builds a ConfigurationError for a named input.
func NewConfigurationError(field, value, reason string) *ConfigurationError {
	return &ConfigurationError{
		Field:  strings.TrimSpace(field),
		Value:  value,
		Reason: strings.TrimSpace(reason),
	}
}

// StageExecutionError reports the first action that failed inside a pipeline stage.
type StageExecutionError struct {
	Stage    string
	Action   string
	ExitCode int
	Err      error
}

func (e *StageExecutionError) Error() string {
	msg := fmt.Sprintf("%s: stage %q action %q", errorCodeStageExecution, e.Stage, e.Action)
	if e.ExitCode != 0 {
		msg = fmt.Sprintf("%s exited %d", msg, e.ExitCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *StageExecutionError) Unwrap() error {
	return e.Err
}

// ProvisioningError reports a resource the provisioning engine rejected or failed to apply.
type ProvisioningError struct {
	Resource string
	Kind     string
	// Code is the upstream API error code when the cause is an AWS API error.
	Code string
	Err  error
}

func (e *ProvisioningError) Error() string {
	msg := fmt.Sprintf("%s: resource %q", errorCodeProvisioning, e.Resource)
	if e.Kind != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Kind)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// NewProvisioningError wraps cause for the named resource, capturing the AWS API error code if present.
func NewProvisioningError(resource, kind string, cause error) *ProvisioningError {
	out := &ProvisioningError{
		Resource: resource,
		Kind:     kind,
		Err:      cause,
	}
	var apiErr smithy.APIError
	if errors.As(cause, &apiErr) {
		out.Code = apiErr.ErrorCode()
	}
	return out
}

// ErrorCode returns the stable code for err, or an empty string when err is nil.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var cfgErr *ConfigurationError
	if errors.As(err, &cfgErr) {
		return errorCodeConfiguration
	}
	var stageErr *StageExecutionError
	if errors.As(err, &stageErr) {
		return errorCodeStageExecution
	}
	var provErr *ProvisioningError
	if errors.As(err, &provErr) {
		return errorCodeProvisioning
	}
	return errorCodeInternal
}

// ExitCode maps err onto the process exit status used by the cvsite CLI.
func ExitCode(err error) int {
	switch ErrorCode(err) {
	case "":
		return exitOK
	case errorCodeConfiguration:
		return exitConfiguration
	default:
		return exitFailure
	}
}

func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

func IsStageExecutionError(err error) bool {
	var stageErr *StageExecutionError
	return errors.As(err, &stageErr)
}

func IsProvisioningError(err error) bool {
	var provErr *ProvisioningError
	return errors.As(err, &provErr)
}
