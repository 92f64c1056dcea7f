package policy

import (
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/qauthteam/qshield/pkg/qauth/dynval"
	"github.com/qauthteam/qshield/pkg/qerr"
)

var weekdayNames = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday,
	"wednesday": time.Wednesday, "thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday,
}

// parseHHMM parses an "HH:MM" string into minutes since midnight.
func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, qerr.New(qerr.KindPolicy, "malformed time string: "+s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, qerr.New(qerr.KindPolicy, "malformed hour in time string: "+s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, qerr.New(qerr.KindPolicy, "malformed minute in time string: "+s)
	}
	return h*60 + m, nil
}

// evalTime checks the time-of-day and weekday restriction. Parse
// failures surface as policy errors rather than silently failing
// closed or open.
func evalTime(c *TimeCondition, ts time.Time) (bool, error) {
	if c == nil {
		return true, nil
	}
	nowMinutes := ts.Hour()*60 + ts.Minute()

	if c.After != "" {
		after, err := parseHHMM(c.After)
		if err != nil {
			return false, err
		}
		if nowMinutes < after {
			return false, nil
		}
	}
	if c.Before != "" {
		before, err := parseHHMM(c.Before)
		if err != nil {
			return false, err
		}
		if nowMinutes > before {
			return false, nil
		}
	}
	if len(c.Days) > 0 {
		today := ts.Weekday()
		ok := false
		for _, d := range c.Days {
			wd, known := weekdayNames[strings.ToLower(d)]
			if !known {
				return false, qerr.New(qerr.KindPolicy, "unknown weekday name: "+d)
			}
			if wd == today {
				ok = true
				break
			}
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// cidrContains reports whether ip falls within the given CIDR range.
func cidrContains(cidr, ip string) (bool, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return false, qerr.Wrap(qerr.KindPolicy, "malformed CIDR range: "+cidr, err)
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false, qerr.New(qerr.KindPolicy, "malformed IP address: "+ip)
	}
	return network.Contains(parsed), nil
}

func stringSliceContainsFold(list []string, v string) bool {
	for _, item := range list {
		if strings.EqualFold(item, v) {
			return true
		}
	}
	return false
}

// evalIP checks VPN, geo, and CIDR restrictions. If the
// IP is absent and any check would require it, the rule does not
// match.
func evalIP(c *IPCondition, req Request) (bool, error) {
	if c == nil {
		return true, nil
	}
	if c.RequireVPN && !req.IsVPN {
		return false, nil
	}
	if len(c.GeoAllow) > 0 {
		if req.GeoCountry == "" || !stringSliceContainsFold(c.GeoAllow, req.GeoCountry) {
			return false, nil
		}
	}
	if len(c.GeoDeny) > 0 && req.GeoCountry != "" && stringSliceContainsFold(c.GeoDeny, req.GeoCountry) {
		return false, nil
	}
	if len(c.DenyRanges) > 0 || len(c.AllowRanges) > 0 {
		if req.IP == "" {
			return false, nil
		}
		for _, r := range c.DenyRanges {
			in, err := cidrContains(r, req.IP)
			if err != nil {
				return false, err
			}
			if in {
				return false, nil
			}
		}
		if len(c.AllowRanges) > 0 {
			allowed := false
			for _, r := range c.AllowRanges {
				in, err := cidrContains(r, req.IP)
				if err != nil {
					return false, err
				}
				if in {
					allowed = true
					break
				}
			}
			if !allowed {
				return false, nil
			}
		}
	}
	return true, nil
}

// evalDevice checks device type/OS/managed/attestation/security-level
// restrictions.
func evalDevice(c *DeviceCondition, req Request) bool {
	if c == nil {
		return true
	}
	if len(c.Types) > 0 && !stringSliceContainsFold(c.Types, req.DeviceType) {
		return false
	}
	if len(c.OS) > 0 && !stringSliceContainsFold(c.OS, req.OS) {
		return false
	}
	if c.Managed != nil && *c.Managed != req.ManagedDevice {
		return false
	}
	if c.AttestationRequired != nil && *c.AttestationRequired && !req.DeviceAttested {
		return false
	}
	if c.MinSecurityLevel != nil {
		if req.SecurityLevel == nil || *req.SecurityLevel < *c.MinSecurityLevel {
			return false
		}
	}
	return true
}

// evalMFA checks MFA restrictions, including the step-up rule where an
// action in StepUpFor independently requires MFA regardless of the
// Required flag.
func evalMFA(c *MFACondition, req Request) bool {
	if c == nil {
		return true
	}
	needMFA := c.Required
	if !needMFA && len(c.StepUpFor) > 0 {
		for _, a := range c.StepUpFor {
			if a == req.Action {
				needMFA = true
				break
			}
		}
	}
	if needMFA && !req.MFAVerified {
		return false
	}
	if len(c.Methods) > 0 && !stringSliceContainsFold(c.Methods, req.MFAMethod) {
		return false
	}
	if c.MaxAgeMinutes != nil {
		if req.MFATime == nil {
			return false
		}
		age := req.Timestamp.Sub(*req.MFATime)
		if age > time.Duration(*c.MaxAgeMinutes)*time.Minute {
			return false
		}
	}
	return true
}

// regexCache lazily compiles "matches" patterns once per process,
// since they may be reused across many evaluations.
var (
	regexCacheMu sync.Mutex
	regexCache   = map[string]*regexp.Regexp{}
)

func compileRegex(pattern string) (*regexp.Regexp, error) {
	regexCacheMu.Lock()
	defer regexCacheMu.Unlock()
	if re, ok := regexCache[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, qerr.Wrap(qerr.KindPolicy, "invalid regex pattern: "+pattern, err)
	}
	regexCache[pattern] = re
	return re, nil
}

// evalCustomPredicate applies one comparison operator against the
// attribute value looked up by key.
func evalCustomPredicate(attrs map[string]dynval.Value, key string, pred CustomPredicate) (bool, error) {
	attr, present := attrs[key]
	if !present {
		attr = dynval.Null()
	}
	want := toValue(pred.Value)

	switch pred.Op {
	case "eq":
		return attr.Equal(want), nil
	case "ne":
		return !attr.Equal(want), nil
	case "gt", "gte", "lt", "lte":
		cmp, ok := attr.Compare(want)
		if !ok {
			return false, nil
		}
		switch pred.Op {
		case "gt":
			return cmp > 0, nil
		case "gte":
			return cmp >= 0, nil
		case "lt":
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case "in":
		return attr.In(want), nil
	case "not_in":
		return !attr.In(want), nil
	case "contains":
		return attr.Contains(want), nil
	case "matches":
		s, ok := attr.AsString()
		if !ok {
			return false, nil
		}
		pattern, ok := want.AsString()
		if !ok {
			return false, qerr.New(qerr.KindPolicy, "matches predicate requires a string pattern")
		}
		re, err := compileRegex(pattern)
		if err != nil {
			return false, err
		}
		return re.MatchString(s), nil
	default:
		return false, qerr.New(qerr.KindPolicy, fmt.Sprintf("unknown custom predicate operator %q", pred.Op))
	}
}

// toValue coerces a raw Go value (as stored in policy JSON) into a dynval.Value.
func toValue(v interface{}) dynval.Value {
	switch t := v.(type) {
	case nil:
		return dynval.Null()
	case bool:
		return dynval.Bool(t)
	case int:
		return dynval.Int(int64(t))
	case int64:
		return dynval.Int(t)
	case float64:
		return dynval.Float(t)
	case string:
		return dynval.String(t)
	case []byte:
		return dynval.Bytes(t)
	case []interface{}:
		out := make([]dynval.Value, 0, len(t))
		for _, item := range t {
			out = append(out, toValue(item))
		}
		return dynval.List(out)
	case dynval.Value:
		return t
	default:
		return dynval.String(fmt.Sprintf("%v", t))
	}
}

// evalConditions evaluates every present condition category as an AND.
func evalConditions(c Conditions, ctx EvalContext) (bool, error) {
	if ok, err := evalTime(c.Time, ctx.Request.Timestamp); err != nil || !ok {
		return false, err
	}
	if ok, err := evalIP(c.IP, ctx.Request); err != nil || !ok {
		return false, err
	}
	if !evalDevice(c.Device, ctx.Request) {
		return false, nil
	}
	if !evalMFA(c.MFA, ctx.Request) {
		return false, nil
	}
	if c.Relationship != nil {
		ok, err := evalRelationship(c.Relationship, ctx)
		if err != nil || !ok {
			return false, err
		}
	}
	for key, pred := range c.Custom {
		ok, err := evalCustomPredicate(ctx.Subject.Attributes, key, pred)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
