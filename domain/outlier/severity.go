package outlier

import (
	"fmt"
	"strings"
)

// Severity is the four-valued verdict shared by the streaming and batch classifiers
type Severity int

const (
	// NotEnoughData means too little history to judge the point either way
	NotEnoughData Severity = iota
	// Normal means the point is consistent with recent history
	Normal
	// ModerateOutlier means the point deviates but below the severe cutoff
	ModerateOutlier
	// SevereOutlier means the point should be confirmed or published
	SevereOutlier
)

var severityNames = map[Severity]string{
	NotEnoughData:   "NOT_ENOUGH_DATA",
	Normal:          "NORMAL",
	ModerateOutlier: "MODERATE_OUTLIER",
	SevereOutlier:   "SEVERE_OUTLIER",
}

func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ParseSeverity accepts the canonical upper-case names, case-insensitively
func ParseSeverity(s string) (Severity, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	for sev, name := range severityNames {
		if name == normalized {
			return sev, nil
		}
	}
	return NotEnoughData, fmt.Errorf("unknown severity %q", s)
}

// MoreSevereThan compares two verdicts; only meaningful between configured cutoffs
func (s Severity) MoreSevereThan(other Severity) bool {
	return s > other
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(text []byte) error {
	parsed, err := ParseSeverity(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
