// Package policy implements the policy evaluation engine:
// prioritized rule selection over a condition tree, with default-deny
// semantics.
package policy

import "time"

// Effect is a rule or default outcome.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Policy is a loaded policy document, keyed by its URN.
type Policy struct {
	ID         string
	Version    string
	Issuer     string
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Rules      []Rule
	Defaults   Defaults
	Metadata   map[string]string
}

// Defaults governs behavior when no rule matches.
type Defaults struct {
	Effect               Effect
	AuditUnmatched       bool
	RequireExplicitAllow bool
}

// Rule is a single prioritized policy rule.
type Rule struct {
	Effect     Effect
	Resources  []string
	Actions    []string
	Conditions Conditions
	Priority   int32
	Audit      map[string]string
}

// Conditions is the AND of present condition categories. A nil
// category is skipped; a present one must match.
type Conditions struct {
	Time         *TimeCondition
	IP           *IPCondition
	Device       *DeviceCondition
	MFA          *MFACondition
	Relationship *RelationshipCondition
	Custom       map[string]CustomPredicate
}

// TimeCondition restricts matching to a time-of-day window and/or set
// of weekdays.
type TimeCondition struct {
	After  string // "HH:MM"
	Before string // "HH:MM"
	Days   []string
}

// IPCondition restricts matching by VPN status, geo, and CIDR ranges.
type IPCondition struct {
	RequireVPN  bool
	GeoAllow    []string
	GeoDeny     []string
	DenyRanges  []string
	AllowRanges []string
}

// DeviceCondition restricts matching by device attributes.
type DeviceCondition struct {
	Types               []string
	OS                  []string
	Managed             *bool
	AttestationRequired *bool
	MinSecurityLevel    *int
}

// MFACondition restricts matching by MFA state.
type MFACondition struct {
	Required      bool
	Methods       []string
	MaxAgeMinutes *int
	StepUpFor     []string
}

// RelationshipCondition defers to an external oracle.
type RelationshipCondition struct {
	Relation string
	TargetID string
}

// CustomPredicate looks up ctx.subject.attributes[key] and applies one
// operator against Value.
type CustomPredicate struct {
	Op    string // eq, ne, gt, gte, lt, lte, in, not_in, contains, matches
	Value interface{}
}

// Result is the evaluation outcome.
type Result struct {
	Effect      Effect
	MatchedRule *int // index into the policy's Rules, nil for "none"
	Reason      string
	Audit       map[string]string
}
