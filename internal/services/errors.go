package services

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/diewo77/smart-invoices/validation"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Sentinel errors shared by all services.
var (
	// ErrNotFound covers both "does not exist" and "belongs to another user".
	ErrNotFound = errors.New("not found")

	// ErrInvalidCredentials is returned by Authenticate for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")
)

// ValidationError reports malformed input per field.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Violations))
	for f, code := range e.Violations {
		fields = append(fields, f+"="+code)
	}
	sort.Strings(fields)
	return "validation failed: " + strings.Join(fields, ", ")
}

func invalid(v validation.Violations) error {
	if v.Empty() {
		return nil
	}
	return &ValidationError{Violations: v}
}

func invalidField(field, code string) error {
	return &ValidationError{Violations: validation.Violations{field: code}}
}

// ConflictError reports a unique value that is already taken.
type ConflictError struct {
	Resource string
	Err      error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s conflict: %v", e.Resource, e.Err)
}

func (e *ConflictError) Unwrap() error { return e.Err }

// DependencyError wraps a failure of an external service (language model, text recognition).
// Callers fall back to manual entry; no default data is substituted.
type DependencyError struct {
	Service string
	Op      string
	Err     error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Service, e.Op, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

// Is matches the wrapped error.
func (e *DependencyError) Is(target error) bool { return errors.Is(e.Err, target) }

// NewDependencyError wraps err unless it is already a DependencyError.
func NewDependencyError(service, op string, err error) error {
	if err == nil {
		return nil
	}
	var dep *DependencyError
	if errors.As(err, &dep) {
		return err
	}
	return &DependencyError{Service: service, Op: op, Err: err}
}

// IsNotFound reports whether err is ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// IsRetryable reports errors a caller may retry unchanged.
func IsRetryable(err error) bool {
	var dep *DependencyError
	return IsConflict(err) || errors.As(err, &dep)
}

// isUniqueViolation recognizes duplicate-key errors from postgres and sqlite,
// translated or not.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
