package errors

import (
	"errors"
	"fmt"
	"strings"
)

// UserError represents an error that should be shown to the user with helpful context
type UserError struct {
	Message    string
	Suggestion string
	Details    string
	Err        error
}

func (e UserError) Error() string {
	var parts []string

	if e.Message != "" {
		parts = append(parts, e.Message)
	} else if e.Err != nil {
		parts = append(parts, e.Err.Error())
	}

	if e.Details != "" {
		parts = append(parts, "\n  Details: "+e.Details)
	}

	if e.Suggestion != "" {
		parts = append(parts, "\n  💡 Try: "+e.Suggestion)
	}

	return strings.Join(parts, "")
}

func (e UserError) Unwrap() error {
	return e.Err
}

// ConfigError represents a configuration error with helpful context
type ConfigError struct {
	Field      string
	Value      interface{}
	Message    string
	Suggestion string
}

func (e ConfigError) Error() string {
	msg := "Configuration error"
	if e.Field != "" {
		msg += fmt.Sprintf(" in field '%s'", e.Field)
	}
	if e.Value != nil {
		msg += fmt.Sprintf(" (value: %v)", e.Value)
	}
	msg += ": " + e.Message

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// CheckError reports a failed self-check or diagnosis step
type CheckError struct {
	Check      string
	Failed     int
	Message    string
	Suggestion string
}

func (e CheckError) Error() string {
	msg := fmt.Sprintf("Check '%s' failed", e.Check)
	if e.Failed != 0 {
		msg += fmt.Sprintf(" (%d failing)", e.Failed)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}

	if e.Suggestion != "" {
		msg += "\n  💡 " + e.Suggestion
	}

	return msg
}

// PlatformError enhances a virtual-memory syscall failure with context
func PlatformError(operation string, err error) error {
	return UserError{
		Message:    fmt.Sprintf("%s failed", operation),
		Suggestion: platformSuggestion(operation, err),
		Err:        err,
	}
}

// platformSuggestion returns helpful suggestions based on operation and error
func platformSuggestion(operation string, err error) string {
	errStr := strings.ToLower(err.Error())

	switch operation {
	case "mlock", "lock":
		if strings.Contains(errStr, "cannot allocate memory") || strings.Contains(errStr, "resource temporarily unavailable") {
			return "RLIMIT_MEMLOCK is too low. Raise it with 'ulimit -l' or LimitMEMLOCK= in the service unit"
		}
		if strings.Contains(errStr, "operation not permitted") {
			return "Locking memory needs CAP_IPC_LOCK or a non-zero RLIMIT_MEMLOCK"
		}
		if strings.Contains(errStr, "working set") {
			return "Grow the process working set with SetProcessWorkingSetSize before locking more pages"
		}

	case "mprotect", "protect":
		if strings.Contains(errStr, "not supported") {
			return "This protection mode has no native equivalent here. Use one of the portable modes"
		}
		if strings.Contains(errStr, "permission denied") {
			return "The kernel refused the mapping change. Check SELinux or W^X policy for executable modes"
		}

	case "mmap", "alloc":
		if strings.Contains(errStr, "cannot allocate memory") {
			return "The address space or overcommit limit is exhausted. Check 'ulimit -v' and vm.overcommit_memory"
		}
	}

	if strings.Contains(errStr, "not supported") {
		return "memsec has no virtual-memory backend for this platform"
	}

	return ""
}

// SimplifyError simplifies complex error messages for users
func SimplifyError(err error) error {
	if err == nil {
		return nil
	}

	// Unwrap to get the root cause
	rootErr := err
	for {
		unwrapped := errors.Unwrap(rootErr)
		if unwrapped == nil {
			break
		}
		rootErr = unwrapped
	}

	// Already a user-friendly error
	if _, ok := err.(UserError); ok {
		return err
	}
	if _, ok := err.(ConfigError); ok {
		return err
	}
	if _, ok := err.(CheckError); ok {
		return err
	}

	// Simplify common technical errors
	errStr := rootErr.Error()

	if strings.Contains(errStr, "permission denied") {
		return UserError{
			Message:    "Permission denied",
			Suggestion: "Check file permissions or run with appropriate privileges",
			Err:        err,
		}
	}

	if strings.Contains(errStr, "no such file or directory") {
		return UserError{
			Message:    "File or directory not found",
			Suggestion: "Verify the path exists and is spelled correctly",
			Err:        err,
		}
	}

	// yaml.v3 errors carry this prefix
	if strings.HasPrefix(errStr, "yaml: ") {
		return ConfigError{
			Message:    "Invalid YAML format",
			Suggestion: "Check for indentation errors and missing quotes",
		}
	}

	if strings.Contains(errStr, "address already in use") {
		return UserError{
			Message:    "Metrics address already in use",
			Suggestion: "Pick another address with --metrics-addr or stop the process holding the port",
			Err:        err,
		}
	}

	// Return original error if we can't simplify it
	return err
}
