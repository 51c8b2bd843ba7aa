package distribution

import (
	"gooutlier/domain/outlier"
	"gooutlier/domain/policy"
)

// Context is the windowed view of one source: a running aggregate plus the
// chunks it can be rebuilt from. It is owned by a single worker.
type Context struct {
	accuracy float64
	current  *Distribution
	// oldest first; the front chunk is the last element
	chunks []*Distribution
}

// NewContext creates an empty context whose sketches use the given relative accuracy
func NewContext(accuracy float64) *Context {
	return &Context{accuracy: accuracy}
}

// Current is the aggregate of everything still in window, nil before the first point
func (c *Context) Current() *Distribution {
	return c.current
}

// Amount is the number of points in the current aggregate
func (c *Context) Amount() uint64 {
	if c.current == nil {
		return 0
	}
	return c.current.Amount()
}

// Chunks returns the chunks most recent first
func (c *Context) Chunks() []*Distribution {
	out := make([]*Distribution, len(c.chunks))
	for i, d := range c.chunks {
		out[len(c.chunks)-1-i] = d
	}
	return out
}

// AddDataPoint absorbs dp into the aggregate and the front chunk, opening a new
// chunk when the front one is full and rotating out the oldest chunk when both the
// aggregate and the remaining chunks have reached the rotation policy.
func (c *Context) AddDataPoint(dp outlier.DataPoint, rotation, chunking policy.RotationConfig, scaling policy.ScalingFunction, stats *policy.GlobalStatistics) error {
	if c.current == nil {
		d, err := New(dp, scaling, stats, c.accuracy)
		if err != nil {
			return err
		}
		c.current = d
	} else if err := c.current.Add(dp, scaling, stats); err != nil {
		return err
	}

	if len(c.chunks) > 0 && !chunking.OutOfPolicy(c.chunks[len(c.chunks)-1]) {
		return c.chunks[len(c.chunks)-1].Add(dp, scaling, stats)
	}

	chunk, err := New(dp, scaling, stats, c.accuracy)
	if err != nil {
		return err
	}
	c.chunks = append(c.chunks, chunk)

	if !rotation.OutOfPolicy(c.current) || len(c.chunks) < 2 {
		return nil
	}
	recent, err := Merge(c.chunks[1:])
	if err != nil {
		return err
	}
	if !rotation.OutOfPolicy(recent) {
		return nil
	}
	c.rotate(recent)
	return nil
}

// rotate drops the oldest chunk and installs the aggregate of the rest in one step
func (c *Context) rotate(recent *Distribution) {
	c.chunks[0] = nil
	c.chunks = c.chunks[1:]
	c.current = recent
}
