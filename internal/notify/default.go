package notify

import (
	"fmt"
	"strings"

	"github.com/begna112/vast-monitor/internal/session"
)

// DefaultFormatter renders a compact plain-text body for services
// without a dedicated formatter.
type DefaultFormatter struct{}

func (f *DefaultFormatter) Format(ev session.Event, t *Target) Message {
	title := eventTitle(ev)
	var lines []string

	switch ev.Kind {
	case session.EventRentalStart, session.EventRentalPause,
		session.EventRentalResume, session.EventRentalEnd:
		if info := ev.Session; info != nil {
			lines = append(lines, fmt.Sprintf("%s: x%d %s @ $%.4f/gpu/hr",
				info.ID, info.GPUCount, info.GPUName, info.GPURate))
			if info.Duration > 0 {
				lines = append(lines, fmt.Sprintf("Duration: %s", humanizeDuration(info.Duration)))
			}
		}

	case session.EventError:
		lines = append(lines, ev.Error)

	case session.EventRecovery:
		lines = append(lines, "Error condition cleared.")

	case session.EventStartup:
		for _, sm := range ev.Startup {
			lines = append(lines, fmt.Sprintf("Machine %d: %d running, %d stored",
				sm.Machine.ID, sm.Running, sm.Stored))
		}

	case session.EventSystem:
		if ev.System != nil {
			lines = append(lines, ev.System.Lines...)
		}
	}

	lines = append(lines, absoluteTS(ev.Time))
	return Message{Title: title, Bodies: []string{strings.Join(lines, "\n")}}
}
