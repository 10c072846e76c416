package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/pkamalssn/rupi-sub000/internal/common"
	"github.com/pkamalssn/rupi-sub000/internal/model"
)

// Validation errors. The rule errors are the shared sentinels so callers
// can match them without importing storage.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrNilParameter = errors.New("parameter cannot be nil")
	ErrRuleNotFound = common.ErrRuleNotFound
	ErrInvalidRule  = common.ErrInvalidRule
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateRule validates a rule before it is written.
func validateRule(rule *model.Rule) error {
	if rule == nil {
		return fmt.Errorf("%w: rule", ErrNilParameter)
	}
	if err := rule.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRule, err)
	}
	return nil
}
