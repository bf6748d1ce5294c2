package errors

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/go-sql-driver/mysql"
)

// ErrorType represents the category of a backup run failure
type ErrorType string

const (
	// ErrorTypeConfig represents a missing or invalid configuration value
	ErrorTypeConfig ErrorType = "config"
	// ErrorTypeExternalTool represents a failed dump tool or database probe
	ErrorTypeExternalTool ErrorType = "external_tool"
	// ErrorTypeArchive represents a failure while building an archive
	ErrorTypeArchive ErrorType = "archive"
	// ErrorTypeTransfer represents a connect, auth or upload failure
	ErrorTypeTransfer ErrorType = "transfer"
	// ErrorTypeRetention represents a failed deletion during rotation
	ErrorTypeRetention ErrorType = "retention"
	// ErrorTypeHook represents a failed user hook command
	ErrorTypeHook ErrorType = "hook"
	// ErrorTypeInterruption represents a run cancelled by a signal
	ErrorTypeInterruption ErrorType = "interruption"
)

// AppError represents a backup run error with context
type AppError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// IsFatal reports whether the error aborts the pipeline.
// Hook and retention failures are downgraded to warnings.
func (e *AppError) IsFatal() bool {
	switch e.Type {
	case ErrorTypeHook, ErrorTypeRetention:
		return false
	default:
		return true
	}
}

// IsFatal reports whether err aborts the pipeline. Errors that carry no
// AppError are fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.IsFatal()
	}
	return true
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

func NewConfigError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeConfig, message, cause)
}

func NewExternalToolError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeExternalTool, message, cause)
}

func NewArchiveError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeArchive, message, cause)
}

func NewTransferError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeTransfer, message, cause)
}

func NewRetentionWarning(message string, cause error) *AppError {
	return NewAppError(ErrorTypeRetention, message, cause)
}

func NewHookWarning(message string, cause error) *AppError {
	return NewAppError(ErrorTypeHook, message, cause)
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
// The second return value is false when the chain carries no AppError.
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type, true
	}
	return "", false
}

// IsType reports whether err's chain carries an AppError of the given type
func IsType(err error, errorType ErrorType) bool {
	t, ok := TypeOf(err)
	return ok && t == errorType
}

// ClassifyMySQLError maps a database probe failure to an external tool error
// with a message an operator can act on. It returns nil for a nil error.
func ClassifyMySQLError(err error) *AppError {
	if err == nil {
		return nil
	}

	if ctxErr := classifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		var message string
		switch mysqlErr.Number {
		case 1045: // Access denied
			message = "Database access denied - check db_user and db_password"
		case 1049: // Unknown database
			message = "Database does not exist - check db_name"
		case 2003: // Can't connect to MySQL server
			message = "Cannot connect to MySQL server - server may be down or unreachable"
		case 2006: // MySQL server has gone away
			message = "MySQL server connection lost"
		default:
			message = fmt.Sprintf("MySQL error: %s", mysqlErr.Message)
		}
		return NewExternalToolError(message, err).
			WithContext("mysql_error_code", mysqlErr.Number)
	}

	return NewExternalToolError("Database preflight check failed", err)
}

// ClassifyFileSystemError wraps a file system failure as an archive error,
// naming the path when the cause is a *os.PathError.
func ClassifyFileSystemError(message string, err error) *AppError {
	if ctxErr := classifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		switch pathErr.Err {
		case syscall.ENOENT:
			return NewArchiveError(fmt.Sprintf("%s: not found: %s", message, pathErr.Path), err)
		case syscall.EACCES:
			return NewArchiveError(fmt.Sprintf("%s: permission denied: %s", message, pathErr.Path), err)
		case syscall.ENOSPC:
			return NewArchiveError(fmt.Sprintf("%s: no space left on device", message), err)
		}
	}
	return NewArchiveError(message, err)
}

// classifyContextError maps a cancelled run to an interruption.
// Deadlines are left to the caller.
func classifyContextError(err error) *AppError {
	if errors.Is(err, context.Canceled) {
		return NewAppError(ErrorTypeInterruption, "Operation was canceled", err)
	}
	return nil
}
