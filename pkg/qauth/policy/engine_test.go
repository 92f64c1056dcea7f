package policy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qauthteam/qshield/pkg/qauth/dynval"
)

func baseCtx() EvalContext {
	return EvalContext{
		Subject:  Subject{ID: "user-1"},
		Resource: Resource{Path: "/documents/42"},
		Request:  Request{Action: "read", Timestamp: time.Now()},
	}
}

func TestEvaluate_DefaultDenyWhenNoRuleMatches(t *testing.T) {
	p := &Policy{
		ID:       "urn:test:default-deny",
		Rules:    []Rule{},
		Defaults: Defaults{Effect: Deny},
	}
	result, err := Evaluate(p, baseCtx())
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect)
	assert.Nil(t, result.MatchedRule)
}

func TestEvaluate_MatchingRuleAllows(t *testing.T) {
	p := &Policy{
		ID: "urn:test:allow-read",
		Rules: []Rule{
			{Effect: Allow, Resources: []string{"/documents/*"}, Actions: []string{"read"}, Priority: 1},
		},
		Defaults: Defaults{Effect: Deny},
	}
	result, err := Evaluate(p, baseCtx())
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Effect)
	require.NotNil(t, result.MatchedRule)
	assert.Equal(t, 0, *result.MatchedRule)
}

func TestEvaluate_HigherPriorityRuleWinsRegardlessOfOrder(t *testing.T) {
	p := &Policy{
		ID: "urn:test:priority",
		Rules: []Rule{
			{Effect: Allow, Resources: []string{"/documents/*"}, Actions: []string{"read"}, Priority: 1},
			{Effect: Deny, Resources: []string{"/documents/*"}, Actions: []string{"read"}, Priority: 10},
		},
		Defaults: Defaults{Effect: Allow},
	}
	result, err := Evaluate(p, baseCtx())
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect)
	require.NotNil(t, result.MatchedRule)
	assert.Equal(t, 1, *result.MatchedRule)
}

func TestEvaluate_EqualPriorityTiebreaksOnDeclarationOrder(t *testing.T) {
	p := &Policy{
		ID: "urn:test:tiebreak",
		Rules: []Rule{
			{Effect: Allow, Resources: []string{"/documents/*"}, Actions: []string{"read"}, Priority: 5},
			{Effect: Deny, Resources: []string{"/documents/*"}, Actions: []string{"read"}, Priority: 5},
		},
		Defaults: Defaults{Effect: Deny},
	}
	result, err := Evaluate(p, baseCtx())
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Effect, "first-declared rule at equal priority must win")
}

func TestEvaluate_ConditionMustMatch(t *testing.T) {
	after := "09:00"
	before := "17:00"
	p := &Policy{
		ID: "urn:test:time-gated",
		Rules: []Rule{
			{
				Effect:     Allow,
				Resources:  []string{"/documents/*"},
				Actions:    []string{"read"},
				Priority:   1,
				Conditions: Conditions{Time: &TimeCondition{After: after, Before: before}},
			},
		},
		Defaults: Defaults{Effect: Deny},
	}

	ctx := baseCtx()
	ctx.Request.Timestamp = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	result, err := Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Effect)

	ctx.Request.Timestamp = time.Date(2026, 1, 1, 3, 0, 0, 0, time.UTC)
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect, "outside the time window the rule must not match, falling through to default-deny")
}

func TestEvaluate_ValidityWindowRejectsOutOfRangePolicy(t *testing.T) {
	past := time.Now().Add(-48 * time.Hour)
	until := time.Now().Add(-24 * time.Hour)
	p := &Policy{
		ID:         "urn:test:expired",
		ValidFrom:  &past,
		ValidUntil: &until,
		Defaults:   Defaults{Effect: Allow},
	}
	_, err := Evaluate(p, baseCtx())
	assert.Error(t, err)
}

func TestMatchResource_GlobSemantics(t *testing.T) {
	assert.True(t, matchResource("*", "/anything"))
	assert.True(t, matchResource("/documents/*", "/documents/42"))
	assert.False(t, matchResource("/documents/*", "/documents/42/versions"))
	assert.True(t, matchResource("/documents/**", "/documents/42/versions"))
	assert.True(t, matchResource("/documents/?", "/documents/4"))
	assert.False(t, matchResource("/documents/?", "/documents/42"))
}

func TestEvaluate_CustomPredicate(t *testing.T) {
	p := &Policy{
		ID: "urn:test:custom",
		Rules: []Rule{
			{
				Effect:    Allow,
				Resources: []string{"*"},
				Actions:   []string{"*"},
				Priority:  1,
				Conditions: Conditions{
					Custom: map[string]CustomPredicate{
						"tier": {Op: "eq", Value: "gold"},
					},
				},
			},
		},
		Defaults: Defaults{Effect: Deny},
	}

	ctx := baseCtx()
	ctx.Subject.Attributes = map[string]dynval.Value{"tier": dynval.String("gold")}
	result, err := Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Effect)

	ctx.Subject.Attributes = map[string]dynval.Value{"tier": dynval.String("silver")}
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect, "custom predicate mismatch must fall through to default-deny")
}

func TestEvaluate_OverlappingResourcePatterns(t *testing.T) {
	p := &Policy{
		ID: "urn:test:projects",
		Rules: []Rule{
			{Effect: Allow, Resources: []string{"projects/*"}, Actions: []string{"read"}, Priority: 100},
			{Effect: Allow, Resources: []string{"projects/123"}, Actions: []string{"read", "write", "delete"}, Priority: 200},
			{Effect: Deny, Resources: []string{"admin/**"}, Actions: []string{"*"}, Priority: 1000},
		},
		Defaults: Defaults{Effect: Deny},
	}

	ctx := baseCtx()
	ctx.Resource.Path = "projects/123"
	ctx.Request.Action = "write"
	result, err := Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Effect)
	require.NotNil(t, result.MatchedRule)
	assert.Equal(t, 1, *result.MatchedRule, "the more specific priority-200 rule must win")

	ctx.Resource.Path = "admin/settings"
	ctx.Request.Action = "read"
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect)

	ctx.Resource.Path = "unknown/x"
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect)
	assert.Nil(t, result.MatchedRule)
}

func TestEvaluate_MFACondition(t *testing.T) {
	p := &Policy{
		ID: "urn:test:mfa",
		Rules: []Rule{
			{
				Effect:    Allow,
				Resources: []string{"*"},
				Actions:   []string{"read"},
				Priority:  1,
				Conditions: Conditions{
					MFA: &MFACondition{Required: true, Methods: []string{"totp", "webauthn"}},
				},
			},
		},
		Defaults: Defaults{Effect: Deny},
	}

	ctx := baseCtx()
	result, err := Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect, "without MFA the rule must not match")

	ctx.Request.MFAVerified = true
	ctx.Request.MFAMethod = "totp"
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Effect)

	ctx.Request.MFAMethod = "sms"
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect, "an MFA method outside the allowed set must not match")
}

func TestEvaluate_MFAStepUpForAction(t *testing.T) {
	p := &Policy{
		ID: "urn:test:step-up",
		Rules: []Rule{
			{
				Effect:    Allow,
				Resources: []string{"*"},
				Actions:   []string{"*"},
				Priority:  1,
				Conditions: Conditions{
					MFA: &MFACondition{StepUpFor: []string{"delete"}},
				},
			},
		},
		Defaults: Defaults{Effect: Deny},
	}

	ctx := baseCtx()
	ctx.Request.Action = "read"
	result, err := Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Effect, "a non-step-up action needs no MFA")

	ctx.Request.Action = "delete"
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect, "a step-up action without MFA must not match")

	ctx.Request.MFAVerified = true
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Effect)
}

func TestEvaluate_IPCondition(t *testing.T) {
	p := &Policy{
		ID: "urn:test:ip",
		Rules: []Rule{
			{
				Effect:    Allow,
				Resources: []string{"*"},
				Actions:   []string{"*"},
				Priority:  1,
				Conditions: Conditions{
					IP: &IPCondition{AllowRanges: []string{"10.0.0.0/8"}, DenyRanges: []string{"10.9.0.0/16"}},
				},
			},
		},
		Defaults: Defaults{Effect: Deny},
	}

	ctx := baseCtx()
	ctx.Request.IP = "10.1.2.3"
	result, err := Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Allow, result.Effect)

	ctx.Request.IP = "10.9.2.3"
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect, "deny_ranges is checked before allow_ranges")

	ctx.Request.IP = "192.168.1.1"
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect)

	ctx.Request.IP = ""
	result, err = Evaluate(p, ctx)
	require.NoError(t, err)
	assert.Equal(t, Deny, result.Effect, "a rule requiring an IP must not match when none is present")
}

func TestEvaluate_MalformedTimeConditionSurfacesError(t *testing.T) {
	p := &Policy{
		ID: "urn:test:bad-time",
		Rules: []Rule{
			{
				Effect:     Allow,
				Resources:  []string{"*"},
				Actions:    []string{"*"},
				Priority:   1,
				Conditions: Conditions{Time: &TimeCondition{After: "25:99"}},
			},
		},
		Defaults: Defaults{Effect: Deny},
	}
	_, err := Evaluate(p, baseCtx())
	assert.Error(t, err, "a malformed time string is a configuration bug and must surface")
}
