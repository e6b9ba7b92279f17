package observability

import (
	"testing"

	"github.com/danmuck/cwpctl/internal/testutil/testlog"
	"github.com/prometheus/client_golang/prometheus"
)

func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
	next:
		for _, m := range fam.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestRegisterMetricsAndRecordersAreSafe(t *testing.T) {
	testlog.Start(t)
	RegisterMetrics()
	RegisterMetrics()

	RecordStateTransition("connected")
	RecordFailure("resolve")
	RecordKeying(DirectionIn, true)
	RecordMessage(DirectionOut)
	RecordSignalWidth(50)
	RecordSignalWidth(0)
}

func TestRecordBytesAccumulates(t *testing.T) {
	testlog.Start(t)
	labels := map[string]string{"direction": DirectionOut}
	before := counterValue(t, "cwp_wire_bytes_total", labels)

	RecordBytes(DirectionOut, 6)
	RecordBytes(DirectionOut, 4)
	RecordBytes(DirectionOut, 0)

	if got := counterValue(t, "cwp_wire_bytes_total", labels) - before; got != 10 {
		t.Fatalf("bytes delta got=%v", got)
	}
}
