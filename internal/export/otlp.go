// Package export pushes analytics reports to an OpenTelemetry collector as
// OTLP gauge metrics over gRPC.
package export

import (
	"context"
	"crypto/tls"
	"fmt"
	"strconv"
	"time"

	colmetricspb "go.opentelemetry.io/proto/otlp/collector/metrics/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	metricspb "go.opentelemetry.io/proto/otlp/metrics/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/nixlim/pantrycost/internal/analytics"
)

const scopeName = "github.com/nixlim/pantrycost/internal/export"

// Metric names emitted for a report.
const (
	MetricPeriodTotalCost      = "pantrycost.cost.period.total"
	MetricPeriodAverageCost    = "pantrycost.cost.period.average"
	MetricPeriodEventCount     = "pantrycost.cost.period.events"
	MetricIngredientPeriodCost = "pantrycost.cost.ingredient.average"
	MetricUsageAverage         = "pantrycost.usage.daily.average"
	MetricUsagePeak            = "pantrycost.usage.daily.peak"
	MetricUsageLow             = "pantrycost.usage.daily.low"
	MetricUsageDaily           = "pantrycost.usage.daily"
)

// Exporter sends reports through an OTLP MetricsService client.
type Exporter struct {
	client      colmetricspb.MetricsServiceClient
	conn        *grpc.ClientConn
	serviceName string
}

// Dial creates an Exporter connected to endpoint (host:port). TLS is used
// unless insecureConn is set.
func Dial(endpoint string, insecureConn bool, serviceName string) (*Exporter, error) {
	creds := credentials.NewTLS(&tls.Config{MinVersion: tls.VersionTLS12})
	if insecureConn {
		creds = insecure.NewCredentials()
	}
	conn, err := grpc.NewClient(endpoint, grpc.WithTransportCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP client for %s: %w", endpoint, err)
	}
	e := NewExporter(conn, serviceName)
	e.conn = conn
	return e, nil
}

// NewExporter wraps an existing connection. Close does not close cc.
func NewExporter(cc grpc.ClientConnInterface, serviceName string) *Exporter {
	return &Exporter{
		client:      colmetricspb.NewMetricsServiceClient(cc),
		serviceName: serviceName,
	}
}

// Export converts r to gauges and sends them in a single request.
func (e *Exporter) Export(ctx context.Context, r *analytics.Report) error {
	req := BuildRequest(r, e.serviceName)
	resp, err := e.client.Export(ctx, req)
	if err != nil {
		return fmt.Errorf("exporting report %s: %w", r.ID, err)
	}
	if ps := resp.GetPartialSuccess(); ps != nil && ps.GetRejectedDataPoints() > 0 {
		return fmt.Errorf("collector rejected %d data points: %s", ps.GetRejectedDataPoints(), ps.GetErrorMessage())
	}
	return nil
}

func (e *Exporter) Close() error {
	if e.conn == nil {
		return nil
	}
	return e.conn.Close()
}

// BuildRequest maps a report onto OTLP gauges. Cost points are stamped at
// their period start, usage summaries at the report's asOf and heatmap
// cells at their day.
func BuildRequest(r *analytics.Report, serviceName string) *colmetricspb.ExportMetricsServiceRequest {
	asOf := unixNano(r.AsOf)
	g := newGauges()

	for _, p := range r.CostTrends {
		ts := unixNano(p.PeriodStart)
		attrs := []*commonpb.KeyValue{
			strAttr("period", string(p.Period)),
			strAttr("granularity", string(r.Granularity)),
		}
		g.add(MetricPeriodTotalCost, "1", ts, p.TotalCost, attrs)
		g.add(MetricPeriodAverageCost, "1", ts, p.AverageCost, attrs)
		g.addInt(MetricPeriodEventCount, "{event}", ts, int64(p.EventCount), attrs)
		for _, ri := range p.TopExpensiveIngredients {
			g.add(MetricIngredientPeriodCost, "1", ts, ri.AverageCostInPeriod, []*commonpb.KeyValue{
				strAttr("period", string(p.Period)),
				strAttr("ingredient.id", ri.IngredientID),
				strAttr("ingredient.name", ri.Name),
			})
		}
	}

	for _, cp := range r.Patterns {
		attrs := []*commonpb.KeyValue{
			strAttr("ingredient.id", cp.IngredientID),
			strAttr("trend", string(cp.Trend)),
			strAttr("seasonal", strconv.FormatBool(cp.Seasonal)),
		}
		g.add(MetricUsageAverage, "1", asOf, cp.AverageUsage, attrs)
		g.add(MetricUsagePeak, "1", asOf, cp.PeakUsage, attrs)
		g.add(MetricUsageLow, "1", asOf, cp.LowUsage, attrs)
	}

	for _, row := range r.Heatmap {
		for _, cell := range row.DailyUsage {
			if cell.Usage == 0 {
				continue
			}
			g.add(MetricUsageDaily, "1", unixNano(cell.Date), cell.Usage, []*commonpb.KeyValue{
				strAttr("ingredient.id", row.IngredientID),
				strAttr("ingredient.name", row.Name),
			})
		}
	}

	return &colmetricspb.ExportMetricsServiceRequest{
		ResourceMetrics: []*metricspb.ResourceMetrics{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{
					strAttr("service.name", serviceName),
					strAttr("pantrycost.report.id", r.ID),
				},
			},
			ScopeMetrics: []*metricspb.ScopeMetrics{{
				Scope:   &commonpb.InstrumentationScope{Name: scopeName},
				Metrics: g.metrics(),
			}},
		}},
	}
}

// EncodeJSON renders the export request for r in the OTLP/JSON encoding,
// for inspecting what Export would send.
func EncodeJSON(r *analytics.Report, serviceName string) ([]byte, error) {
	opts := protojson.MarshalOptions{Multiline: true, Indent: "  "}
	data, err := opts.Marshal(BuildRequest(r, serviceName))
	if err != nil {
		return nil, fmt.Errorf("encoding report %s as OTLP/JSON: %w", r.ID, err)
	}
	return data, nil
}

// gauges accumulates data points per metric name, preserving first-seen
// metric order.
type gauges struct {
	order  []string
	byName map[string]*metricspb.Metric
}

func newGauges() *gauges {
	return &gauges{byName: make(map[string]*metricspb.Metric)}
}

func (g *gauges) point(name, unit string) *metricspb.Gauge {
	m, ok := g.byName[name]
	if !ok {
		m = &metricspb.Metric{
			Name: name,
			Unit: unit,
			Data: &metricspb.Metric_Gauge{Gauge: &metricspb.Gauge{}},
		}
		g.byName[name] = m
		g.order = append(g.order, name)
	}
	return m.GetGauge()
}

func (g *gauges) add(name, unit string, ts uint64, v float64, attrs []*commonpb.KeyValue) {
	gauge := g.point(name, unit)
	gauge.DataPoints = append(gauge.DataPoints, &metricspb.NumberDataPoint{
		TimeUnixNano: ts,
		Value:        &metricspb.NumberDataPoint_AsDouble{AsDouble: v},
		Attributes:   attrs,
	})
}

func (g *gauges) addInt(name, unit string, ts uint64, v int64, attrs []*commonpb.KeyValue) {
	gauge := g.point(name, unit)
	gauge.DataPoints = append(gauge.DataPoints, &metricspb.NumberDataPoint{
		TimeUnixNano: ts,
		Value:        &metricspb.NumberDataPoint_AsInt{AsInt: v},
		Attributes:   attrs,
	})
}

func (g *gauges) metrics() []*metricspb.Metric {
	out := make([]*metricspb.Metric, len(g.order))
	for i, name := range g.order {
		out[i] = g.byName[name]
	}
	return out
}

func strAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func unixNano(t time.Time) uint64 {
	if t.IsZero() || t.UnixNano() < 0 {
		return 0
	}
	return uint64(t.UnixNano())
}
