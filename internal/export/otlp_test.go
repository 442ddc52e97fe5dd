package export

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/nixlim/pantrycost/internal/analytics"
	"github.com/nixlim/pantrycost/internal/period"
)

// fakeCollector records every export request it receives.
type fakeCollector struct {
	colmetricspb.UnimplementedMetricsServiceServer

	mu       sync.Mutex
	requests []*colmetricspb.ExportMetricsServiceRequest
	fail     error
	reject   int64
}

func (c *fakeCollector) Export(_ context.Context, req *colmetricspb.ExportMetricsServiceRequest) (*colmetricspb.ExportMetricsServiceResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}
	c.requests = append(c.requests, req)
	resp := &colmetricspb.ExportMetricsServiceResponse{}
	if c.reject > 0 {
		resp.PartialSuccess = &colmetricspb.ExportMetricsPartialSuccess{
			RejectedDataPoints: c.reject,
			ErrorMessage:       "too old",
		}
	}
	return resp, nil
}

func startCollector(t *testing.T, c *fakeCollector) *grpc.ClientConn {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	colmetricspb.RegisterMetricsServiceServer(srv, c)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sampleReport() *analytics.Report {
	day := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	return &analytics.Report{
		ID:          "rep-1",
		AsOf:        day.Add(12 * time.Hour),
		Granularity: period.Daily,
		CostTrends: []analytics.CostTrendPeriod{{
			Period:      "2025-03-10",
			PeriodStart: day,
			TotalCost:   12,
			AverageCost: 4,
			EventCount:  3,
			TopExpensiveIngredients: []analytics.RankedIngredient{
				{IngredientID: "butter", Name: "Butter", AverageCostInPeriod: 8, PercentageOfPeriodTotal: 66.7},
				{IngredientID: "flour", Name: "Flour", AverageCostInPeriod: 2, PercentageOfPeriodTotal: 16.7},
			},
		}},
		Patterns: []analytics.ConsumptionPattern{{
			IngredientID: "flour", Granularity: period.Daily,
			AverageUsage: 30, PeakUsage: 50, LowUsage: 10,
			Trend: analytics.TrendIncreasing, Seasonal: true, ActiveDays: 4,
		}},
		Heatmap: []analytics.UsageHeatmapRow{{
			IngredientID: "flour", Name: "Flour",
			DailyUsage: []analytics.HeatmapCell{
				{Date: day.AddDate(0, 0, -1), Usage: 0},
				{Date: day, Usage: 50, Intensity: 0.5},
			},
		}},
	}
}

func metricByName(t *testing.T, req *colmetricspb.ExportMetricsServiceRequest, name string) *metricspb.Metric {
	t.Helper()
	for _, m := range req.GetResourceMetrics()[0].GetScopeMetrics()[0].GetMetrics() {
		if m.GetName() == name {
			return m
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestBuildRequest(t *testing.T) {
	req := BuildRequest(sampleReport(), "bakery")

	require.Len(t, req.GetResourceMetrics(), 1)
	res := req.GetResourceMetrics()[0].GetResource()
	assert.Equal(t, "service.name", res.GetAttributes()[0].GetKey())
	assert.Equal(t, "bakery", res.GetAttributes()[0].GetValue().GetStringValue())
	assert.Equal(t, "rep-1", res.GetAttributes()[1].GetValue().GetStringValue())

	total := metricByName(t, req, MetricPeriodTotalCost).GetGauge().GetDataPoints()
	require.Len(t, total, 1)
	assert.Equal(t, 12.0, total[0].GetAsDouble())
	assert.Equal(t, uint64(time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC).UnixNano()), total[0].GetTimeUnixNano())

	events := metricByName(t, req, MetricPeriodEventCount).GetGauge().GetDataPoints()
	assert.Equal(t, int64(3), events[0].GetAsInt())

	assert.Len(t, metricByName(t, req, MetricIngredientPeriodCost).GetGauge().GetDataPoints(), 2)

	peak := metricByName(t, req, MetricUsagePeak).GetGauge().GetDataPoints()
	require.Len(t, peak, 1)
	assert.Equal(t, 50.0, peak[0].GetAsDouble())

	// Zero-usage heatmap cells are skipped.
	daily := metricByName(t, req, MetricUsageDaily).GetGauge().GetDataPoints()
	require.Len(t, daily, 1)
	assert.Equal(t, 50.0, daily[0].GetAsDouble())
}

func TestBuildRequest_EmptyReport(t *testing.T) {
	req := BuildRequest(&analytics.Report{ID: "empty"}, "bakery")
	assert.Empty(t, req.GetResourceMetrics()[0].GetScopeMetrics()[0].GetMetrics())
}

func TestEncodeJSON_DecodesToSameRequest(t *testing.T) {
	data, err := EncodeJSON(sampleReport(), "bakery")
	require.NoError(t, err)
	assert.Contains(t, string(data), MetricUsageDaily)

	var got colmetricspb.ExportMetricsServiceRequest
	require.NoError(t, protojson.Unmarshal(data, &got))
	assert.Len(t, got.GetResourceMetrics()[0].GetScopeMetrics()[0].GetMetrics(), 8)
}

func TestExporter_Export(t *testing.T) {
	c := &fakeCollector{}
	e := NewExporter(startCollector(t, c), "bakery")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, e.Export(ctx, sampleReport()))
	require.NoError(t, e.Close())

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.requests, 1)
	assert.NotEmpty(t, c.requests[0].GetResourceMetrics()[0].GetScopeMetrics()[0].GetMetrics())
}

func TestExporter_ServerError(t *testing.T) {
	c := &fakeCollector{fail: status.Error(codes.Unavailable, "collector down")}
	e := NewExporter(startCollector(t, c), "bakery")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.Export(ctx, sampleReport())
	require.Error(t, err)
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestExporter_PartialSuccessIsError(t *testing.T) {
	c := &fakeCollector{reject: 2}
	e := NewExporter(startCollector(t, c), "bakery")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := e.Export(ctx, sampleReport())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rejected 2")
}
