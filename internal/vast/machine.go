// Package vast models the raw machine snapshots returned by the Vast.ai
// hosting API and provides the fetch collaborator used by the monitor.
package vast

import (
	"errors"
	"strings"
	"time"
)

// Occupancy tokens as reported in gpu_occupancy. "x" marks a free slot;
// everything else is an allocated GPU (D = on-demand, I = interruptible,
// R = reserved bid).
const FreeSlot = "x"

// Machine is a point-in-time snapshot of one hosted machine as returned
// by the provider's machines endpoint. Immutable once captured; only the
// fields the monitor consumes are modeled, with JSON tags matching the
// provider API.
type Machine struct {
	ID          int    `json:"machine_id"`
	Hostname    string `json:"hostname"`
	Geolocation string `json:"geolocation"`

	NumGPUs      int    `json:"num_gpus"`
	GPUName      string `json:"gpu_name"`
	GPUOccupancy string `json:"gpu_occupancy"`

	Listed       bool   `json:"listed"`
	Verification string `json:"verification"`

	CurrentRentalsRunning         int `json:"current_rentals_running"`
	CurrentRentalsRunningOnDemand int `json:"current_rentals_running_on_demand"`
	CurrentRentalsResident        int `json:"current_rentals_resident"`
	CurrentRentalsOnDemand        int `json:"current_rentals_on_demand"`

	AllocDiskSpace float64 `json:"alloc_disk_space"`

	ListedGPUCost     float64 `json:"listed_gpu_cost"`
	ListedStorageCost float64 `json:"listed_storage_cost"`
	MinBidPrice       float64 `json:"min_bid_price"`
	BidGPUCost        float64 `json:"bid_gpu_cost"`

	ErrorDescription   string  `json:"error_description"`
	Timeout            float64 `json:"timeout"`
	MachineMaintenance string  `json:"machine_maintenance"`

	// ClientEndDate is the contract end of the current rental as a unix
	// timestamp, when the provider reports one. Zero means none.
	ClientEndDate float64 `json:"client_end_date"`
}

// ErrMalformed reports a snapshot missing fields the tracker requires.
var ErrMalformed = errors.New("malformed machine snapshot")

// Validate checks the fields the tracker depends on. A failing snapshot
// is reported as a per-machine error event, never a process failure.
func (m *Machine) Validate() error {
	if m.ID == 0 {
		return ErrMalformed
	}
	if m.NumGPUs <= 0 {
		return ErrMalformed
	}
	return nil
}

// OccupancyTokens splits gpu_occupancy into per-slot tokens.
func (m *Machine) OccupancyTokens() []string {
	return strings.Fields(m.GPUOccupancy)
}

// OccupiedCount returns the number of allocated GPU slots.
func (m *Machine) OccupiedCount() int {
	n := 0
	for _, tok := range m.OccupancyTokens() {
		if tok != FreeSlot {
			n++
		}
	}
	return n
}

// GPUsAllocated reports whether any GPU slot is allocated to a rental.
func (m *Machine) GPUsAllocated() bool {
	return m.OccupiedCount() > 0
}

// StorageAllocated reports whether any rental storage is held on disk.
func (m *Machine) StorageAllocated() bool {
	return m.AllocDiskSpace > 0
}

// RentalType returns the occupancy token of the first allocated slot,
// or "" when the machine is idle.
func (m *Machine) RentalType() string {
	for _, tok := range m.OccupancyTokens() {
		if tok != FreeSlot {
			return tok
		}
	}
	return ""
}

// GPURate resolves the hourly per-GPU rate for the current rental type:
// listed cost for on-demand, min bid for interruptible, bid cost for
// reserved.
func (m *Machine) GPURate() float64 {
	switch m.RentalType() {
	case "D":
		return m.ListedGPUCost
	case "I":
		return m.MinBidPrice
	case "R":
		return m.BidGPUCost
	default:
		return 0
	}
}

// HasError reports whether the provider flags this machine as unhealthy,
// either through an error description or a connectivity timeout.
func (m *Machine) HasError() bool {
	return m.ErrorDescription != "" || m.Timeout > 0
}

// ErrorText returns a human-readable description of the active error
// condition, or "" when healthy.
func (m *Machine) ErrorText() string {
	if m.ErrorDescription != "" {
		return m.ErrorDescription
	}
	if m.Timeout > 0 {
		return "timeout: machine unreachable"
	}
	return ""
}

// ContractEnd converts client_end_date to a timestamp. Nil when the
// provider did not report one.
func (m *Machine) ContractEnd() *time.Time {
	if m.ClientEndDate <= 0 {
		return nil
	}
	t := time.Unix(int64(m.ClientEndDate), 0).UTC()
	return &t
}
