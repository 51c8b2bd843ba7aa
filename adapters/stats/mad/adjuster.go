package mad

import "gooutlier/domain/outlier"

// historySize is how many recent verdicts are handed to a SeverityAdjuster
const historySize = 3

// SeverityAdjuster may rewrite a verdict given the most recent ones (oldest first)
type SeverityAdjuster interface {
	Adjust(recent []outlier.Outlier, current outlier.Outlier) outlier.Outlier
}

// NoopAdjuster leaves verdicts unchanged. Suppressing runs of consecutive
// severe verdicts is deliberately not enabled.
type NoopAdjuster struct{}

func (NoopAdjuster) Adjust(_ []outlier.Outlier, current outlier.Outlier) outlier.Outlier {
	return current
}

// AdjusterFunc adapts a plain function to SeverityAdjuster
type AdjusterFunc func(recent []outlier.Outlier, current outlier.Outlier) outlier.Outlier

func (f AdjusterFunc) Adjust(recent []outlier.Outlier, current outlier.Outlier) outlier.Outlier {
	return f(recent, current)
}
