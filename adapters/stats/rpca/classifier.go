package rpca

import (
	"math"

	"github.com/montanaflynn/stats"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"

	"gooutlier/domain/outlier"
)

const (
	// Name is the registry name of the batch classifier
	Name = "RPCA"

	epsilon = 1e-12
)

// Classifier confirms streaming candidates with a robust PCA of the recent
// context. It holds no state between calls.
type Classifier struct {
	cfg    Config
	logger *zap.Logger
}

// NewClassifier creates a classifier; a nil logger is replaced by a nop logger
func NewClassifier(cfg Config, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Classifier{cfg: cfg, logger: logger}
}

// Name returns the algorithm name
func (c *Classifier) Name() string {
	return Name
}

// Config returns the active configuration
func (c *Classifier) Config() Config {
	return c.cfg
}

// Analyze returns a copy of the candidate carrying dp and the batch verdict.
// SampleSize records how many context points backed the decision.
func (c *Classifier) Analyze(candidate outlier.Outlier, context []outlier.DataPoint, dp outlier.DataPoint) outlier.Outlier {
	out := candidate
	out.DataPoint = dp
	out.Severity = c.IsOutlier(context, dp)
	out.SampleSize = len(context)
	return out
}

// IsOutlier decides whether dp stands out as sparse noise against context
func (c *Classifier) IsOutlier(context []outlier.DataPoint, dp outlier.DataPoint) outlier.Severity {
	x := make([]float64, 0, len(context)+1)
	nonZero := 0
	for _, p := range context {
		x = append(x, p.Value)
		if p.Value > epsilon {
			nonZero++
		}
	}
	x = append(x, dp.Value)

	if nonZero <= c.cfg.minRecords {
		return outlier.NotEnoughData
	}

	differenced := c.cfg.forceDiff
	if !differenced {
		adf := AugmentedDickeyFuller(x)
		differenced = adf.NeedsDiff
		c.logger.Debug("stationarity test",
			zap.String("source", dp.Source),
			zap.Bool("performed", adf.Performed),
			zap.Float64("statistic", adf.Statistic),
			zap.Float64("pvalue", adf.PValue))
	}
	if differenced {
		x = ZeroPaddedDiff(x)
	}

	normalized := normalize(x)
	rows, cols := len(normalized), 1
	lPenalty, sPenalty := c.cfg.Penalties(rows, cols)
	d := Decompose(mat.NewDense(rows, cols, normalized), lPenalty, sPenalty)
	if !d.Converged {
		c.logger.Debug("rpca iteration cap reached",
			zap.String("source", dp.Source),
			zap.Int("iterations", d.Iterations))
	}

	if math.Abs(d.S.At(rows-1, 0)) > epsilon {
		return outlier.SevereOutlier
	}
	return outlier.Normal
}

// normalize rescales x to zero mean and unit sample variance; a flat series maps to zeros
func normalize(x []float64) []float64 {
	out := make([]float64, len(x))
	if len(x) < 2 {
		return out
	}
	data := stats.Float64Data(x)
	mean, err := stats.Mean(data)
	if err != nil {
		return out
	}
	sd, err := stats.StandardDeviationSample(data)
	if err != nil || sd < epsilon || math.IsNaN(sd) {
		return out
	}
	for i, v := range x {
		out[i] = (v - mean) / sd
	}
	return out
}
