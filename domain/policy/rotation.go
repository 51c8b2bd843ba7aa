package policy

import (
	"fmt"
	"math"
	"strings"
	"time"

	"gooutlier/domain/core"
)

// Kind selects how a distribution is judged to be "full"
type Kind int

const (
	Never Kind = iota
	ByAmount
	ByTime
)

func (k Kind) String() string {
	switch k {
	case Never:
		return "NEVER"
	case ByAmount:
		return "BY_AMOUNT"
	case ByTime:
		return "BY_TIME"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// ParseKind accepts NEVER, BY_AMOUNT and BY_TIME
func ParseKind(s string) (Kind, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NEVER":
		return Never, nil
	case "BY_AMOUNT":
		return ByAmount, nil
	case "BY_TIME":
		return ByTime, nil
	}
	return Never, core.NewPolicyError("type", fmt.Sprintf("%q is not one of NEVER, BY_AMOUNT, BY_TIME", s))
}

// TimeUnit is the unit attached to a policy amount
type TimeUnit int

const (
	Points TimeUnit = iota
	Milliseconds
	Seconds
	Minutes
	Hours
	Days
)

var unitNames = map[TimeUnit]string{
	Points:       "POINTS",
	Milliseconds: "MILLISECONDS",
	Seconds:      "SECONDS",
	Minutes:      "MINUTES",
	Hours:        "HOURS",
	Days:         "DAYS",
}

func (u TimeUnit) String() string {
	if name, ok := unitNames[u]; ok {
		return name
	}
	return fmt.Sprintf("TimeUnit(%d)", int(u))
}

// ParseTimeUnit accepts the upper-case unit names; empty means POINTS
func ParseTimeUnit(s string) (TimeUnit, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	if normalized == "" {
		return Points, nil
	}
	for u, name := range unitNames {
		if name == normalized {
			return u, nil
		}
	}
	return Points, core.NewPolicyError("unit", fmt.Sprintf("%q is not a known unit", s))
}

// Duration is the wall-clock length of one unit; zero for POINTS
func (u TimeUnit) Duration() time.Duration {
	switch u {
	case Milliseconds:
		return time.Millisecond
	case Seconds:
		return time.Second
	case Minutes:
		return time.Minute
	case Hours:
		return time.Hour
	case Days:
		return 24 * time.Hour
	default:
		return 0
	}
}

// IsTime reports whether the unit measures wall-clock time
func (u TimeUnit) IsTime() bool {
	return u.Duration() > 0
}

// Measurable is anything with a point count and a time extent
type Measurable interface {
	Amount() uint64
	Begin() int64
	End() int64
}

// RotationConfig is an immutable rotation or chunking policy
type RotationConfig struct {
	kind   Kind
	amount uint64
	unit   TimeUnit
}

// NeverRotate never reports a distribution as out of policy
func NeverRotate() RotationConfig {
	return RotationConfig{kind: Never}
}

// RotateByAmount is out of policy once a distribution holds threshold points
func RotateByAmount(threshold uint64) (RotationConfig, error) {
	if threshold == 0 {
		return RotationConfig{}, core.NewPolicyError("amount", "must be positive for BY_AMOUNT")
	}
	return RotationConfig{kind: ByAmount, amount: threshold, unit: Points}, nil
}

// RotateByTime is out of policy once a distribution spans amount units of time
func RotateByTime(amount uint64, unit TimeUnit) (RotationConfig, error) {
	if amount == 0 {
		return RotationConfig{}, core.NewPolicyError("amount", "must be positive for BY_TIME")
	}
	if !unit.IsTime() {
		return RotationConfig{}, core.NewPolicyError("unit", fmt.Sprintf("%s is not a time unit", unit))
	}
	return RotationConfig{kind: ByTime, amount: amount, unit: unit}, nil
}

// NewRotationConfig builds a policy from the configuration surface (type, amount, unit)
func NewRotationConfig(kind string, amount uint64, unit string) (RotationConfig, error) {
	k, err := ParseKind(kind)
	if err != nil {
		return RotationConfig{}, err
	}
	u, err := ParseTimeUnit(unit)
	if err != nil {
		return RotationConfig{}, err
	}
	switch k {
	case ByAmount:
		if u != Points {
			return RotationConfig{}, core.NewPolicyError("unit", "BY_AMOUNT only counts POINTS")
		}
		return RotateByAmount(amount)
	case ByTime:
		return RotateByTime(amount, u)
	default:
		return NeverRotate(), nil
	}
}

func (c RotationConfig) Kind() Kind { return c.kind }

func (c RotationConfig) Amount() uint64 { return c.amount }

func (c RotationConfig) Unit() TimeUnit { return c.unit }

func (c RotationConfig) IsNever() bool { return c.kind == Never }

// Window is the wall-clock length of a BY_TIME policy
func (c RotationConfig) Window() time.Duration {
	return time.Duration(c.amount) * c.unit.Duration()
}

// ExpectedAmount estimates how many points m would hold over the policy window
// at its observed arrival rate. A zero-width distribution has no rate yet.
func (c RotationConfig) ExpectedAmount(m Measurable) float64 {
	span := m.End() - m.Begin()
	if span <= 0 {
		return math.Inf(1)
	}
	window := float64(c.Window().Milliseconds())
	return float64(m.Amount()) * window / float64(span)
}

// OutOfPolicy reports whether m has reached the policy threshold
func (c RotationConfig) OutOfPolicy(m Measurable) bool {
	switch c.kind {
	case ByAmount:
		return m.Amount() >= c.amount
	case ByTime:
		return float64(m.Amount()) >= c.ExpectedAmount(m)
	default:
		return false
	}
}

func (c RotationConfig) String() string {
	if c.kind == Never {
		return "NEVER"
	}
	return fmt.Sprintf("%s(%d %s)", c.kind, c.amount, c.unit)
}
