package vast

import (
	"context"
	"sync"
)

// mockPhase describes one machine's observation for a stretch of polls.
type mockPhase struct {
	occupancy string
	disk      float64
	errDesc   string
	timeout   float64
	ticks     int
}

type mockMachine struct {
	base   Machine
	phases []mockPhase
}

// MockClient serves a scripted sequence of snapshots so the full
// monitor pipeline can be exercised without provider credentials.
// Each call to Machines advances the script by one poll tick.
type MockClient struct {
	mu       sync.Mutex
	tick     int
	machines []mockMachine
}

// NewMockClient builds a two-machine script: one machine cycles through
// a full rental lifecycle (start, pause, resume, end), the other goes
// through an error and recovery while idle.
func NewMockClient(ids []int) *MockClient {
	if len(ids) == 0 {
		ids = []int{11111, 22222}
	}
	first := ids[0]
	second := first + 1
	if len(ids) > 1 {
		second = ids[1]
	}

	renter := mockMachine{
		base: Machine{
			ID:                first,
			Hostname:          "mock-host-a",
			Geolocation:       "Helsinki, FI",
			NumGPUs:           4,
			GPUName:           "RTX 4090",
			Listed:            true,
			Verification:      "verified",
			ListedGPUCost:     0.42,
			ListedStorageCost: 0.18,
			MinBidPrice:       0.21,
		},
		phases: []mockPhase{
			{occupancy: "x x x x", ticks: 2},
			{occupancy: "D D x x", disk: 64, ticks: 3},
			{occupancy: "x x x x", disk: 64, ticks: 2}, // GPUs released, storage kept
			{occupancy: "D D x x", disk: 64, ticks: 3},
			{occupancy: "x x x x", ticks: 2}, // everything released
		},
	}
	flaky := mockMachine{
		base: Machine{
			ID:                second,
			Hostname:          "mock-host-b",
			Geolocation:       "Dallas, US",
			NumGPUs:           2,
			GPUName:           "RTX 3090",
			Listed:            true,
			Verification:      "verified",
			ListedGPUCost:     0.19,
			ListedStorageCost: 0.12,
			MinBidPrice:       0.09,
		},
		phases: []mockPhase{
			{occupancy: "x x", ticks: 4},
			{occupancy: "x x", errDesc: "nvml: GPU fell off the bus", ticks: 3},
			{occupancy: "x x", ticks: 5},
		},
	}
	return &MockClient{machines: []mockMachine{renter, flaky}}
}

func (c *MockClient) Machines(ctx context.Context) ([]Machine, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	tick := c.tick
	c.tick++
	c.mu.Unlock()

	out := make([]Machine, 0, len(c.machines))
	for _, mm := range c.machines {
		out = append(out, mm.at(tick))
	}
	return out, nil
}

// at resolves the scripted phase for a tick, looping the script so the
// mock keeps producing transitions indefinitely.
func (mm *mockMachine) at(tick int) Machine {
	total := 0
	for _, p := range mm.phases {
		total += p.ticks
	}
	tick %= total

	m := mm.base
	for _, p := range mm.phases {
		if tick < p.ticks {
			m.GPUOccupancy = p.occupancy
			m.AllocDiskSpace = p.disk
			m.ErrorDescription = p.errDesc
			m.Timeout = p.timeout
			return m
		}
		tick -= p.ticks
	}
	return m
}
