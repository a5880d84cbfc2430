package util

import (
	"testing"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
)

var _ api.WriteAPI = (*MockWriteAPI)(nil)

func TestMockWriteAPICounts(t *testing.T) {
	m := &MockWriteAPI{}
	m.WritePoint(influxdb2.NewPoint("a", nil, map[string]interface{}{"v": 1}, time.Now()))
	m.WritePoint(influxdb2.NewPoint("a", nil, map[string]interface{}{"v": 2}, time.Now()))
	m.WritePoint(influxdb2.NewPoint("b", nil, map[string]interface{}{"v": 3}, time.Now()))
	m.WriteRecord("c v=1")

	if got := m.Count("a"); got != 2 {
		t.Errorf("Count(a) = %d, want 2", got)
	}
	if got := m.Count("missing"); got != 0 {
		t.Errorf("Count(missing) = %d, want 0", got)
	}
	if got := m.Records(); got != 1 {
		t.Errorf("Records() = %d, want 1", got)
	}
}
