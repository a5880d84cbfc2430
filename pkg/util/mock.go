package util

import (
	"sync"

	"github.com/influxdata/influxdb-client-go/api/write"
)

// MockWriteAPI stands in for an influx WriteAPI when no database is configured. It keeps
// the names of the measurements it was handed so tests can check what was written.
type MockWriteAPI struct {
	mu           sync.Mutex
	measurements []string
	records      int
}

// WriteRecord counts the line protocol record and drops it.
func (m *MockWriteAPI) WriteRecord(line string) {
	m.mu.Lock()
	m.records++
	m.mu.Unlock()
}

// WritePoint keeps the measurement name and drops the point.
func (m *MockWriteAPI) WritePoint(point *write.Point) {
	m.mu.Lock()
	m.measurements = append(m.measurements, point.Name())
	m.mu.Unlock()
}

func (m *MockWriteAPI) Flush() {}

func (m *MockWriteAPI) Close() {}

// Errors returns nil; nothing is ever sent anywhere.
func (m *MockWriteAPI) Errors() <-chan error { return nil }

// Count reports how many points with the given measurement name were written.
func (m *MockWriteAPI) Count(measurement string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, name := range m.measurements {
		if name == measurement {
			n++
		}
	}
	return n
}

func (m *MockWriteAPI) Records() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records
}
