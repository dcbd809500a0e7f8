package notify

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/begna112/vast-monitor/internal/session"
)

func rentalEvent(kind session.EventKind) session.Event {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	started := now.Add(-2 * time.Hour)
	return session.Event{
		Kind:      kind,
		MachineID: 9001,
		Time:      now,
		Session: &session.SessionInfo{
			ID:         "m9001-0001",
			GPUCount:   2,
			GPUName:    "RTX 4090",
			GPURate:    0.42,
			StorageGB:  64,
			RentalType: "D",
			Status:     "active",
			StartedAt:  &started,
		},
		Machine: &session.MachineInfo{
			ID:          9001,
			GPUName:     "RTX 4090",
			NumGPUs:     4,
			GPUsUsed:    2,
			Occupancy:   "D D x x",
			Geolocation: "Helsinki, FI",
		},
	}
}

func TestDiscordFormatRentalStart(t *testing.T) {
	f := &DiscordFormatter{}
	msg := f.Format(rentalEvent(session.EventRentalStart), &Target{})

	if len(msg.Bodies) != 1 {
		t.Fatalf("bodies = %d, want 1", len(msg.Bodies))
	}
	body := msg.Bodies[0]

	for _, want := range []string{
		"**New Rental on Machine 9001**",
		"m9001-0001",
		"x2 RTX 4090 @ $0.4200/gpu/hr",
		"on-demand",
		"Helsinki, FI",
		"<t:", // dynamic timestamp token
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestDiscordErrorMention(t *testing.T) {
	f := &DiscordFormatter{}
	ev := session.Event{
		Kind:      session.EventError,
		MachineID: 9001,
		Time:      time.Now(),
		Error:     "nvml: GPU fell off the bus",
		Machine:   &session.MachineInfo{ID: 9001, GPUName: "RTX 4090", NumGPUs: 4},
	}

	msg := f.Format(ev, &Target{Mention: "<@&123>"})
	if !strings.Contains(msg.Bodies[0], "<@&123>") {
		t.Error("error body missing mention")
	}

	msg = f.Format(ev, &Target{})
	if strings.Contains(msg.Bodies[0], "<@&") {
		t.Error("mention rendered for target without one")
	}
}

func TestChunkLinesRespectsLimit(t *testing.T) {
	header := "**Header**"
	var lines []string
	for i := 0; i < 200; i++ {
		lines = append(lines, fmt.Sprintf("line %03d: some rental detail text to pad the body out", i))
	}

	limit := 500
	bodies := chunkLines(header, lines, limit)

	if len(bodies) < 2 {
		t.Fatalf("expected chunking, got %d bodies", len(bodies))
	}
	for i, body := range bodies {
		if len(body) > limit {
			t.Errorf("body %d length %d exceeds limit %d", i, len(body), limit)
		}
		if !strings.HasPrefix(body, header) {
			t.Errorf("body %d missing header: %q", i, body[:min(40, len(body))])
		}
		if i > 0 && !strings.Contains(strings.SplitN(body, "\n", 2)[0], "(cont.)") {
			t.Errorf("continuation body %d not marked", i)
		}
	}

	// No line lost or split mid-line.
	joined := strings.Join(bodies, "\n")
	for _, line := range lines {
		if !strings.Contains(joined, line) {
			t.Errorf("line lost in chunking: %q", line)
		}
	}
}

func TestChunkLinesShortBody(t *testing.T) {
	bodies := chunkLines("**H**", []string{"one", "two"}, 1800)
	if len(bodies) != 1 {
		t.Fatalf("bodies = %d, want 1", len(bodies))
	}
	if bodies[0] != "**H**\none\ntwo" {
		t.Errorf("body = %q", bodies[0])
	}
}

func TestChunkLinesOversizedLine(t *testing.T) {
	long := strings.Repeat("a", 1200)
	bodies := chunkLines("**H**", []string{long}, 500)

	for i, body := range bodies {
		if len(body) > 500 {
			t.Errorf("body %d length %d exceeds limit", i, len(body))
		}
	}
	total := 0
	for _, body := range bodies {
		total += strings.Count(body, "a")
	}
	if total != 1200 {
		t.Errorf("oversized line content lost: %d of 1200 chars survive", total)
	}
}

func TestDiscordChunkLimitUnderPlatformCap(t *testing.T) {
	if discordChunkLimit >= 2000 {
		t.Fatalf("chunk limit %d leaves no headroom under the 2000 cap", discordChunkLimit)
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
