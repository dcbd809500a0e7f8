package notify

import (
	"fmt"
	"strings"

	"github.com/begna112/vast-monitor/internal/session"
)

// EmailFormatter renders a single plain-text body with absolute UTC
// timestamps. Email clients do not resolve dynamic timestamp tokens.
type EmailFormatter struct{}

func (f *EmailFormatter) Format(ev session.Event, t *Target) Message {
	title := eventTitle(ev)
	var lines []string
	lines = append(lines, title)
	lines = append(lines, strings.Repeat("=", len(title)))
	lines = append(lines, "")

	switch ev.Kind {
	case session.EventRentalStart, session.EventRentalPause,
		session.EventRentalResume, session.EventRentalEnd:
		lines = append(lines, sessionLinesPlain(ev.Session)...)
		lines = append(lines, hr)
		lines = append(lines, machineLines(ev.Machine)...)

	case session.EventError:
		lines = append(lines, fmt.Sprintf("Error: %s", ev.Error))
		lines = append(lines, machineLines(ev.Machine)...)

	case session.EventRecovery:
		lines = append(lines, "Error condition cleared.")
		lines = append(lines, machineLines(ev.Machine)...)

	case session.EventStartup:
		for i, sm := range ev.Startup {
			if i > 0 {
				lines = append(lines, hr)
			}
			lines = append(lines, machineLines(&sm.Machine)...)
			lines = append(lines, fmt.Sprintf("Running: %d, Stored: %d", sm.Running, sm.Stored))
			for _, info := range sm.Sessions {
				lines = append(lines, fmt.Sprintf("  %s: x%d %s, %s", info.ID, info.GPUCount, info.GPUName, info.Status))
			}
		}

	case session.EventSystem:
		if ev.System != nil {
			lines = append(lines, ev.System.Lines...)
		}
	}

	lines = append(lines, "")
	lines = append(lines, fmt.Sprintf("At %s", absoluteTS(ev.Time)))
	return Message{Title: title, Bodies: []string{strings.Join(lines, "\n")}}
}

func sessionLinesPlain(info *session.SessionInfo) []string {
	if info == nil {
		return nil
	}
	lines := []string{
		fmt.Sprintf("Session %s", info.ID),
		fmt.Sprintf("GPUs: x%d %s @ $%.4f/gpu/hr", info.GPUCount, info.GPUName, info.GPURate),
	}
	if info.RentalType != "" {
		lines = append(lines, fmt.Sprintf("Type: %s", rentalTypeName(info.RentalType)))
	}
	if info.StorageGB > 0 {
		lines = append(lines, fmt.Sprintf("Storage: %.0f GB", info.StorageGB))
	}
	if info.StartedAt != nil {
		lines = append(lines, fmt.Sprintf("Started: %s", absoluteTS(*info.StartedAt)))
	}
	if info.PausedAt != nil {
		lines = append(lines, fmt.Sprintf("Paused: %s", absoluteTS(*info.PausedAt)))
	}
	if info.EndedAt != nil {
		lines = append(lines, fmt.Sprintf("Ended: %s", absoluteTS(*info.EndedAt)))
	}
	if info.Duration > 0 {
		lines = append(lines, fmt.Sprintf("Duration: %s", humanizeDuration(info.Duration)))
	}
	if info.ContractEnd != nil {
		lines = append(lines, fmt.Sprintf("Contract ends: %s", absoluteTS(*info.ContractEnd)))
	}
	return lines
}
