package directory

import "fmt"

// RuleField is the closed set of user fields a rule may inspect.
type RuleField string

const (
	FieldRole               RuleField = "role"
	FieldStatus             RuleField = "status"
	FieldSubscriptionTier   RuleField = "subscription.tier"
	FieldSubscriptionStatus RuleField = "subscription.status"
)

// RuleOp is a rule comparison operator.
type RuleOp string

const (
	OpEqual    RuleOp = "eq"
	OpNotEqual RuleOp = "ne"
)

// Rule is a single auto-assignment predicate. A group's rules are
// conjunctive: every rule must match for the group to be assigned.
type Rule struct {
	Field RuleField `json:"field"`
	Op    RuleOp    `json:"op,omitempty"` // empty means eq
	Value string    `json:"value"`
}

// Validate checks the rule is structurally sound.
func (r Rule) Validate() error {
	switch r.Field {
	case FieldRole, FieldStatus, FieldSubscriptionTier, FieldSubscriptionStatus:
	default:
		return &ValidationError{Field: "rule.field", Reason: fmt.Sprintf("unknown field %q", r.Field)}
	}
	switch r.Op {
	case "", OpEqual, OpNotEqual:
	default:
		return &ValidationError{Field: "rule.op", Reason: fmt.Sprintf("unknown operator %q", r.Op)}
	}
	if r.Value == "" {
		return &ValidationError{Field: "rule.value", Reason: "value is required"}
	}
	return nil
}

// Evaluate applies the rule to a user.
func (r Rule) Evaluate(u *User) bool {
	var actual string
	switch r.Field {
	case FieldRole:
		actual = string(u.Role)
	case FieldStatus:
		actual = string(u.Status)
	case FieldSubscriptionTier:
		actual = string(u.Subscription.Tier)
	case FieldSubscriptionStatus:
		actual = string(u.Subscription.Status)
	default:
		return false
	}

	switch r.Op {
	case OpNotEqual:
		return actual != r.Value
	default:
		return actual == r.Value
	}
}

// EvaluateRules reports whether the user satisfies every rule. An empty
// rule list matches vacuously, mirroring the conjunctive semantics.
func EvaluateRules(rules []Rule, u *User) bool {
	for _, r := range rules {
		if !r.Evaluate(u) {
			return false
		}
	}
	return true
}
