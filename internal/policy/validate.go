// Copyright (c) 2026 KriSYS Team
// KriSYS - crisis communication ledger
// This source code is licensed under the MIT license found in the LICENSE file.

package policy

import (
	"errors"
	"fmt"

	"github.com/paxdriver/KriSYS/internal/model"
)

// ErrPolicyViolation is matched by every *ViolationError.
var ErrPolicyViolation = errors.New("policy violation")

// Rule names reported in ViolationError.
const (
	RuleType     = "type"
	RuleSize     = "size"
	RulePriority = "priority"
)

// ViolationError names the rule a transaction broke.
type ViolationError struct {
	Rule   string
	Detail string
}

func (e *ViolationError) Error() string {
	return fmt.Sprintf("policy violation (%s): %s", e.Rule, e.Detail)
}

// Is lets errors.Is(err, ErrPolicyViolation) match.
func (e *ViolationError) Is(target error) bool { return target == ErrPolicyViolation }

// SizeFunc reports the serialized size of a transaction in bytes.
type SizeFunc func(model.Transaction) (int, error)

// Validate checks tx against p: type whitelist, serialized size and
// priority, in that order.
func Validate(tx model.Transaction, p Policy, size SizeFunc) error {
	s := p.Settings
	if !s.HasType(tx.Kind) {
		return &ViolationError{Rule: RuleType, Detail: fmt.Sprintf("invalid transaction type: %q", tx.Kind)}
	}
	if size != nil {
		n, err := size(tx)
		if err != nil {
			return fmt.Errorf("measure transaction: %w", err)
		}
		if n > s.SizeLimit {
			return &ViolationError{Rule: RuleSize, Detail: fmt.Sprintf("transaction exceeds size limit (%d/%d bytes)", n, s.SizeLimit)}
		}
	}
	if !s.HasPriority(tx.Priority) {
		return &ViolationError{Rule: RulePriority, Detail: fmt.Sprintf("invalid priority level: %d", tx.Priority)}
	}
	return nil
}
