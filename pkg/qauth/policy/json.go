package policy

import (
	"encoding/json"
	"time"

	"github.com/qauthteam/qshield/pkg/qerr"
)

// jsonPolicy mirrors the policy JSON schema for decoding.
type jsonPolicy struct {
	ID         string            `json:"id"`
	Version    string            `json:"version"`
	Issuer     string            `json:"issuer"`
	ValidFrom  *time.Time        `json:"valid_from,omitempty"`
	ValidUntil *time.Time        `json:"valid_until,omitempty"`
	Rules      []jsonRule        `json:"rules"`
	Defaults   jsonDefaults      `json:"defaults"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

type jsonDefaults struct {
	Effect               Effect `json:"effect"`
	AuditUnmatched       bool   `json:"audit_unmatched"`
	RequireExplicitAllow bool   `json:"require_explicit_allow"`
}

type jsonRule struct {
	Effect     Effect            `json:"effect"`
	Resources  []string          `json:"resources"`
	Actions    []string          `json:"actions"`
	Conditions jsonConditions    `json:"conditions"`
	Priority   int32             `json:"priority"`
	Audit      map[string]string `json:"audit,omitempty"`
}

type jsonConditions struct {
	Time         *TimeCondition            `json:"time,omitempty"`
	IP           *IPCondition              `json:"ip,omitempty"`
	Device       *DeviceCondition          `json:"device,omitempty"`
	MFA          *MFACondition             `json:"mfa,omitempty"`
	Relationship *RelationshipCondition    `json:"relationship,omitempty"`
	Custom       map[string]jsonCustomPred `json:"custom,omitempty"`
}

type jsonCustomPred struct {
	Op    string      `json:"op"`
	Value interface{} `json:"value"`
}

// LoadJSON parses a policy document from JSON.
// Malformed policies are rejected without partial load: on any error
// the caller's Store is left untouched since LoadJSON only returns a
// fully built *Policy on success.
func LoadJSON(b []byte) (*Policy, error) {
	var jp jsonPolicy
	if err := json.Unmarshal(b, &jp); err != nil {
		return nil, qerr.Wrap(qerr.KindPolicy, "malformed policy JSON", err)
	}
	if jp.ID == "" {
		return nil, qerr.New(qerr.KindPolicy, "policy missing id")
	}
	if jp.Defaults.Effect != Allow && jp.Defaults.Effect != Deny {
		return nil, qerr.New(qerr.KindPolicy, "policy defaults.effect must be allow or deny")
	}

	rules := make([]Rule, 0, len(jp.Rules))
	for _, jr := range jp.Rules {
		if jr.Effect != Allow && jr.Effect != Deny {
			return nil, qerr.New(qerr.KindPolicy, "rule effect must be allow or deny")
		}
		custom := make(map[string]CustomPredicate, len(jr.Conditions.Custom))
		for k, jp := range jr.Conditions.Custom {
			custom[k] = CustomPredicate{Op: jp.Op, Value: jp.Value}
		}
		rules = append(rules, Rule{
			Effect:    jr.Effect,
			Resources: jr.Resources,
			Actions:   jr.Actions,
			Priority:  jr.Priority,
			Audit:     jr.Audit,
			Conditions: Conditions{
				Time:         jr.Conditions.Time,
				IP:           jr.Conditions.IP,
				Device:       jr.Conditions.Device,
				MFA:          jr.Conditions.MFA,
				Relationship: jr.Conditions.Relationship,
				Custom:       custom,
			},
		})
	}

	return &Policy{
		ID:         jp.ID,
		Version:    jp.Version,
		Issuer:     jp.Issuer,
		ValidFrom:  jp.ValidFrom,
		ValidUntil: jp.ValidUntil,
		Rules:      rules,
		Defaults: Defaults{
			Effect:               jp.Defaults.Effect,
			AuditUnmatched:       jp.Defaults.AuditUnmatched,
			RequireExplicitAllow: jp.Defaults.RequireExplicitAllow,
		},
		Metadata: jp.Metadata,
	}, nil
}
