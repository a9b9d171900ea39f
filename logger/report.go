package logger

import (
	"context"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
)

// Counters holds the pipeline progress totals accumulated since startup.
type Counters struct {
	UnitsDone    int64
	UnitsSkipped int64
	UnitsFailed  int64
	RowsDropped  int64
	CacheWrites  int64
	S3Uploads    int64
}

var (
	unitsDone    int64
	unitsSkipped int64
	unitsFailed  int64
	rowsDropped  int64
	cacheWrites  int64
	s3Uploads    int64

	componentErrors sync.Map // map[string]*int64
	componentWarns  sync.Map // map[string]*int64
)

func recordWarn(component string) {
	v, _ := componentWarns.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

func recordError(component string) {
	v, _ := componentErrors.LoadOrStore(component, new(int64))
	atomic.AddInt64(v.(*int64), 1)
}

// AddUnitDone records one (symbol, date) unit processed to completion.
func AddUnitDone() {
	atomic.AddInt64(&unitsDone, 1)
}

// AddUnitSkipped records one unit skipped because its output already exists.
func AddUnitSkipped() {
	atomic.AddInt64(&unitsSkipped, 1)
}

// AddUnitFailed records one unit abandoned after an error.
func AddUnitFailed() {
	atomic.AddInt64(&unitsFailed, 1)
}

// AddRowsDropped records snapshot rows removed by the validity filter.
func AddRowsDropped(n int64) {
	atomic.AddInt64(&rowsDropped, n)
}

// AddCacheWrite records one parquet file published to the local cache.
func AddCacheWrite() {
	atomic.AddInt64(&cacheWrites, 1)
}

// AddS3Upload records one output file mirrored to S3.
func AddS3Upload() {
	atomic.AddInt64(&s3Uploads, 1)
}

// SnapshotCounters returns the current totals.
func SnapshotCounters() Counters {
	return Counters{
		UnitsDone:    atomic.LoadInt64(&unitsDone),
		UnitsSkipped: atomic.LoadInt64(&unitsSkipped),
		UnitsFailed:  atomic.LoadInt64(&unitsFailed),
		RowsDropped:  atomic.LoadInt64(&rowsDropped),
		CacheWrites:  atomic.LoadInt64(&cacheWrites),
		S3Uploads:    atomic.LoadInt64(&s3Uploads),
	}
}

func startReport(ctx context.Context, log *Log, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		for {
			select {
			case <-ctx.Done():
				ticker.Stop()
				return
			case <-ticker.C:
				logReport(ctx, log)
			}
		}
	}()
}

// StartReport begins periodic logging of progress and runtime statistics.
// It exposes the internal startReport function for use by other packages.
func StartReport(ctx context.Context, log *Log, interval time.Duration) {
	startReport(ctx, log, interval)
}

func logReport(ctx context.Context, log *Log) {
	c := SnapshotCounters()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	errorTotals := map[string]int64{}
	componentErrors.Range(func(k, v any) bool {
		errorTotals[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})
	warnTotals := map[string]int64{}
	componentWarns.Range(func(k, v any) bool {
		warnTotals[k.(string)] = atomic.LoadInt64(v.(*int64))
		return true
	})

	fields := Fields{
		"units_done":    c.UnitsDone,
		"units_skipped": c.UnitsSkipped,
		"units_failed":  c.UnitsFailed,
		"rows_dropped":  c.RowsDropped,
		"cache_writes":  c.CacheWrites,
		"s3_uploads":    c.S3Uploads,
		"goroutines":    runtime.NumGoroutine(),
		"heap_mb":       int64(memStats.HeapAlloc) / 1024 / 1024,
		"errors":        errorTotals,
		"warns":         warnTotals,
	}

	log.WithComponent("report").WithFields(fields).Info("runtime report")

	data := []cwtypes.MetricDatum{
		{MetricName: aws.String("UnitsDone"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.UnitsDone))},
		{MetricName: aws.String("UnitsSkipped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.UnitsSkipped))},
		{MetricName: aws.String("UnitsFailed"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.UnitsFailed))},
		{MetricName: aws.String("RowsDropped"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.RowsDropped))},
		{MetricName: aws.String("CacheWrites"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.CacheWrites))},
		{MetricName: aws.String("S3Uploads"), Unit: cwtypes.StandardUnitCount, Value: aws.Float64(float64(c.S3Uploads))},
		{MetricName: aws.String("HeapMB"), Unit: cwtypes.StandardUnitMegabytes, Value: aws.Float64(float64(memStats.HeapAlloc) / 1024 / 1024)},
	}
	for component, n := range errorTotals {
		data = append(data, cwtypes.MetricDatum{
			MetricName: aws.String("Errors"),
			Unit:       cwtypes.StandardUnitCount,
			Dimensions: []cwtypes.Dimension{{Name: aws.String("Component"), Value: aws.String(component)}},
			Value:      aws.Float64(float64(n)),
		})
	}

	publishMetrics(ctx, data)
}
