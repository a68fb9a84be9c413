package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError represents a validation error with context
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

// Error implements the error interface
func (ve ValidationError) Error() string {
	if ve.Field == "" {
		return ve.Message
	}
	return fmt.Sprintf("field '%s': %s", ve.Field, ve.Message)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for multiple validation errors
func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}
	if len(ve) == 1 {
		return ve[0].Error()
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(messages, "; "))
}

// Add adds a new validation error
func (ve *ValidationErrors) Add(field, message string, value interface{}) {
	*ve = append(*ve, ValidationError{
		Field:   field,
		Value:   value,
		Message: message,
	})
}

// Validate checks the configuration and returns every problem found.
func (c Config) Validate() error {
	var errs ValidationErrors

	if u, err := url.Parse(c.APIBaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs.Add("apiBaseUrl", "must be an absolute http or https URL", c.APIBaseURL)
	}
	if strings.TrimSpace(c.ClientID) == "" {
		errs.Add("clientId", "is required", c.ClientID)
	}
	if strings.TrimSpace(c.CredentialsPath) == "" {
		errs.Add("credentialsPath", "is required", c.CredentialsPath)
	}
	if c.RequestTimeout <= 0 {
		errs.Add("requestTimeout", "must be positive", c.RequestTimeout)
	}

	cb := c.Callback
	if cb.PortLow < 1 || cb.PortLow > 65535 {
		errs.Add("callback.portLow", "must be between 1 and 65535", cb.PortLow)
	}
	if cb.PortHigh < 1 || cb.PortHigh > 65535 {
		errs.Add("callback.portHigh", "must be between 1 and 65535", cb.PortHigh)
	}
	if cb.PortLow > cb.PortHigh {
		errs.Add("callback.portHigh", "must not be lower than callback.portLow", cb.PortHigh)
	}
	if cb.Timeout <= 0 {
		errs.Add("callback.timeout", "must be positive", cb.Timeout)
	}
	if cb.ShutdownGrace < 0 {
		errs.Add("callback.shutdownGrace", "must not be negative", cb.ShutdownGrace)
	}

	if c.UsageRetry.MaxAttempts < 1 {
		errs.Add("usageRetry.maxAttempts", "must be at least 1", c.UsageRetry.MaxAttempts)
	}
	if c.UsageRetry.Delay < 0 {
		errs.Add("usageRetry.delay", "must not be negative", c.UsageRetry.Delay)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
