package policy

import (
	"time"

	"github.com/qauthteam/qshield/pkg/qauth/dynval"
)

// EvalContext is the evaluation input.
type EvalContext struct {
	Subject  Subject
	Resource Resource
	Request  Request
	Env      Env
}

type Subject struct {
	ID         string
	Email      string
	Roles      []string
	Groups     []string
	Attributes map[string]dynval.Value
}

type Resource struct {
	Path       string
	Owner      string
	Type       string
	Attributes map[string]dynval.Value
}

type Request struct {
	Action         string
	Method         string
	IP             string
	Timestamp      time.Time
	DeviceType     string
	OS             string
	ManagedDevice  bool
	DeviceAttested bool
	SecurityLevel  *int
	MFAVerified    bool
	MFAMethod      string
	MFATime        *time.Time
	IsVPN          bool
	GeoCountry     string
}

type Env struct {
	Region     string
	Attributes map[string]dynval.Value
}
