package balance

import "time"

const maxRecords = 32

// CycleRecord captures what happened in a single analytics cycle.
type CycleRecord struct {
	At        time.Time `json:"at"`
	Level     Level     `json:"level"`
	Gini      float64   `json:"gini"`
	HHI       float64   `json:"hhi"`
	Integrity float64   `json:"integrity"`
	Emergency bool      `json:"emergency"`
	Adjusted  int       `json:"adjusted"`
}

// cycleMemory is a ring of recent cycle records.
type cycleMemory struct {
	records []CycleRecord
}

func (m *cycleMemory) record(r CycleRecord) {
	m.records = append(m.records, r)
	if len(m.records) > maxRecords {
		m.records = m.records[len(m.records)-maxRecords:]
	}
}

func (m *cycleMemory) last() (CycleRecord, bool) {
	if len(m.records) == 0 {
		return CycleRecord{}, false
	}
	return m.records[len(m.records)-1], true
}
