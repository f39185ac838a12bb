package domain

import (
	"errors"
	"fmt"
)

var (
	ErrFilingNotFound = errors.New("filing not found")
	ErrDealNotFound   = errors.New("deal not found")
	ErrAlertNotFound  = errors.New("alert not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrConflict       = errors.New("conflicting state")
	ErrTemporary      = errors.New("temporary failure")
	ErrConfig         = errors.New("invalid configuration")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}
