package memory

import (
	"context"
	"testing"

	"gooutlier/domain/core"
	"gooutlier/domain/outlier"
	"gooutlier/ports"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPersistKeepsOrderAndMergesTags(t *testing.T) {
	ctx := context.Background()
	s := NewStore()

	for _, ts := range []int64{30, 10, 20} {
		dp := outlier.NewDataPoint(ts, float64(ts), map[string]string{"host": "a"}, "cpu")
		require.NoError(t, s.Persist(ctx, "metrics.cpu", dp, map[string]string{outlier.TagType: outlier.TypeRaw}))
	}
	// same identity and type replaces
	require.NoError(t, s.Persist(ctx, "metrics.cpu", outlier.NewDataPoint(10, 10, map[string]string{"host": "b"}, "cpu"),
		map[string]string{outlier.TagType: outlier.TypeRaw}))

	points := s.Points("metrics.cpu")
	require.Len(t, points, 3)
	assert.Equal(t, []int64{10, 20, 30}, []int64{points[0].Timestamp, points[1].Timestamp, points[2].Timestamp})
	assert.Equal(t, "b", points[0].Metadata["host"])
	assert.Equal(t, outlier.TypeRaw, points[0].Metadata[outlier.TagType])
}

func TestPersistKeepsRawRecordBesideOutlierRecords(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	dp := outlier.NewDataPoint(20, 20, map[string]string{"host": "a"}, "cpu")

	require.NoError(t, s.Persist(ctx, "m", dp, outlier.Tags(dp, outlier.TypeRaw, nil)))
	require.NoError(t, s.Persist(ctx, "m", dp, outlier.OutlierTags(dp, outlier.SevereOutlier, outlier.TypeProspective, nil)))
	require.NoError(t, s.Persist(ctx, "m", dp, outlier.OutlierTags(dp, outlier.SevereOutlier, outlier.TypeOutlier, nil)))

	points := s.Points("m")
	require.Len(t, points, 3)
	var types []string
	for _, p := range points {
		types = append(types, p.Metadata[outlier.TagType])
	}
	assert.ElementsMatch(t, []string{outlier.TypeRaw, outlier.TypeProspective, outlier.TypeOutlier}, types)

	eval := outlier.NewDataPoint(30, 30, nil, "cpu")
	raw, err := s.Retrieve(ctx, ports.ContextQuery{
		Measure: "m",
		Point:   eval,
		Range:   core.TimeRange{Begin: 0, End: 30},
		Filter:  map[string]string{outlier.TagType: outlier.TypeRaw},
	})
	require.NoError(t, err)
	require.Len(t, raw, 1)
	assert.Equal(t, "a", raw[0].Metadata["host"])
}

func TestPersistDoesNotAliasCallerMetadata(t *testing.T) {
	s := NewStore()
	meta := map[string]string{"host": "a"}
	require.NoError(t, s.Persist(context.Background(), "m", outlier.NewDataPoint(1, 1, meta, "cpu"), map[string]string{"type": "raw"}))
	_, leaked := meta["type"]
	assert.False(t, leaked)
}

func TestRetrieveWindowFilterAndExclusion(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i := int64(0); i < 10; i++ {
		host := "a"
		if i%2 == 1 {
			host = "b"
		}
		require.NoError(t, s.Persist(ctx, "m", outlier.NewDataPoint(i*10, float64(i), map[string]string{"host": host}, "cpu"), nil))
	}
	eval := outlier.NewDataPoint(80, 8, nil, "cpu")

	got, err := s.Retrieve(ctx, ports.ContextQuery{Measure: "m", Point: eval, Range: core.TimeRange{Begin: 20, End: 80}})
	require.NoError(t, err)
	var ts []int64
	for _, p := range got {
		ts = append(ts, p.Timestamp)
	}
	assert.Equal(t, []int64{20, 30, 40, 50, 60, 70}, ts, "evaluation point is excluded and later points are out of range")

	filtered, err := s.Retrieve(ctx, ports.ContextQuery{Measure: "m", Point: eval, Range: core.TimeRange{Begin: 0, End: 80}, Filter: map[string]string{"host": "b"}})
	require.NoError(t, err)
	assert.Len(t, filtered, 4)

	limited, err := s.Retrieve(ctx, ports.ContextQuery{Measure: "m", Point: eval, Range: core.TimeRange{Begin: 0, End: 80}, Limit: 2})
	require.NoError(t, err)
	require.Len(t, limited, 2)
	assert.Equal(t, int64(70), limited[1].Timestamp)

	missing, err := s.Retrieve(ctx, ports.ContextQuery{Measure: "unknown", Point: eval})
	require.NoError(t, err)
	assert.Empty(t, missing)
}

func TestStoresAreIndependent(t *testing.T) {
	ctx := context.Background()
	a, b := NewStore(), NewStore()
	require.NoError(t, a.Persist(ctx, "m", outlier.NewDataPoint(1, 1, nil, "cpu"), nil))
	require.NoError(t, a.Publish(ctx, outlier.New(outlier.DataPoint{}, outlier.SevereOutlier, core.TimeRange{}, nil, 0)))

	assert.Len(t, a.Points("m"), 1)
	assert.Empty(t, b.Points("m"))
	assert.Len(t, a.Outliers(), 1)
	assert.Empty(t, b.Outliers())
	assert.NoError(t, a.Close())
}

func TestListOutliersNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := NewStore()
	for i, src := range []string{"cpu", "mem", "cpu"} {
		dp := outlier.NewDataPoint(int64(i), float64(i), nil, src)
		require.NoError(t, s.Publish(ctx, outlier.New(dp, outlier.SevereOutlier, core.TimeRange{End: int64(i)}, nil, 0)))
	}

	all, err := s.ListOutliers(ctx, "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, int64(2), all[0].DataPoint.Timestamp)

	cpu, err := s.ListOutliers(ctx, "cpu", 1)
	require.NoError(t, err)
	require.Len(t, cpu, 1)
	assert.Equal(t, int64(2), cpu[0].DataPoint.Timestamp)
}
