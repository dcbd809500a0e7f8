package vast

import (
	"testing"
	"time"
)

func TestOccupancy(t *testing.T) {
	tests := []struct {
		name         string
		occupancy    string
		wantOccupied int
		wantType     string
	}{
		{"AllFree", "x x x x", 0, ""},
		{"OnDemand", "D D x x", 2, "D"},
		{"Interruptible", "I x", 1, "I"},
		{"Reserved", "R R R R", 4, "R"},
		{"Mixed", "x D I x", 2, "D"},
		{"Empty", "", 0, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := Machine{GPUOccupancy: tt.occupancy}
			if got := m.OccupiedCount(); got != tt.wantOccupied {
				t.Errorf("OccupiedCount() = %d, want %d", got, tt.wantOccupied)
			}
			if got := m.RentalType(); got != tt.wantType {
				t.Errorf("RentalType() = %q, want %q", got, tt.wantType)
			}
			if got := m.GPUsAllocated(); got != (tt.wantOccupied > 0) {
				t.Errorf("GPUsAllocated() = %v", got)
			}
		})
	}
}

func TestGPURate(t *testing.T) {
	m := Machine{
		ListedGPUCost: 0.40,
		MinBidPrice:   0.20,
		BidGPUCost:    0.30,
	}

	tests := []struct {
		occupancy string
		want      float64
	}{
		{"D x", 0.40},
		{"I x", 0.20},
		{"R x", 0.30},
		{"x x", 0},
	}

	for _, tt := range tests {
		m.GPUOccupancy = tt.occupancy
		if got := m.GPURate(); got != tt.want {
			t.Errorf("GPURate() with occupancy %q = %v, want %v", tt.occupancy, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		m       Machine
		wantErr bool
	}{
		{"Valid", Machine{ID: 1234, NumGPUs: 4}, false},
		{"MissingID", Machine{NumGPUs: 4}, true},
		{"ZeroGPUs", Machine{ID: 1234}, true},
		{"NegativeGPUs", Machine{ID: 1234, NumGPUs: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.m.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestErrorText(t *testing.T) {
	m := Machine{}
	if got := m.ErrorText(); got != "" {
		t.Errorf("healthy machine ErrorText() = %q", got)
	}

	m.Timeout = 120
	if got := m.ErrorText(); got == "" {
		t.Error("timeout should produce error text")
	}

	m.ErrorDescription = "nvml: GPU fell off the bus"
	if got := m.ErrorText(); got != "nvml: GPU fell off the bus" {
		t.Errorf("description should win over timeout, got %q", got)
	}
}

func TestContractEnd(t *testing.T) {
	m := Machine{}
	if m.ContractEnd() != nil {
		t.Error("zero client_end_date should mean no contract end")
	}

	m.ClientEndDate = 1700000000
	end := m.ContractEnd()
	if end == nil {
		t.Fatal("expected contract end")
	}
	if !end.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("ContractEnd() = %v", end)
	}
}
