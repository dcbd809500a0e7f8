package notify

import (
	"fmt"
	"strings"

	"github.com/begna112/vast-monitor/internal/session"
)

// discordChunkLimit keeps every chunk comfortably under discord's
// 2000-character message cap, leaving headroom for the repeated header.
const discordChunkLimit = 1800

// DiscordFormatter renders events with markdown, dynamic timestamp
// tokens, and bodies chunked at line boundaries so no single message
// exceeds the platform limit.
type DiscordFormatter struct {
	Limit int
}

func (f *DiscordFormatter) Format(ev session.Event, t *Target) Message {
	title := eventTitle(ev)
	lines := f.lines(ev, t)
	header := fmt.Sprintf("**%s**", title)
	return Message{
		Title:  title,
		Bodies: chunkLines(header, lines, f.limit()),
	}
}

func (f *DiscordFormatter) limit() int {
	if f.Limit > 0 {
		return f.Limit
	}
	return discordChunkLimit
}

func (f *DiscordFormatter) lines(ev session.Event, t *Target) []string {
	var lines []string

	switch ev.Kind {
	case session.EventRentalStart, session.EventRentalResume:
		lines = append(lines, sessionLinesDiscord(ev.Session)...)
		lines = append(lines, hr)
		lines = append(lines, machineLines(ev.Machine)...)

	case session.EventRentalPause:
		lines = append(lines, sessionLinesDiscord(ev.Session)...)
		if ev.Session != nil && ev.Session.PausedAt != nil {
			lines = append(lines, fmt.Sprintf("Paused: %s (%s)",
				discordTS(*ev.Session.PausedAt, "f"), discordTS(*ev.Session.PausedAt, "R")))
		}
		lines = append(lines, hr)
		lines = append(lines, machineLines(ev.Machine)...)

	case session.EventRentalEnd:
		lines = append(lines, sessionLinesDiscord(ev.Session)...)
		if ev.Session != nil {
			if ev.Session.EndedAt != nil {
				lines = append(lines, fmt.Sprintf("Ended: %s", discordTS(*ev.Session.EndedAt, "f")))
			}
			if ev.Session.Duration > 0 {
				lines = append(lines, fmt.Sprintf("Duration: %s", humanizeDuration(ev.Session.Duration)))
			}
		}
		lines = append(lines, hr)
		lines = append(lines, machineLines(ev.Machine)...)

	case session.EventError:
		lines = append(lines, fmt.Sprintf("```%s```", ev.Error))
		lines = append(lines, machineLines(ev.Machine)...)
		if t != nil && t.Mention != "" {
			lines = append(lines, t.Mention)
		}

	case session.EventRecovery:
		lines = append(lines, "Error condition cleared.")
		lines = append(lines, machineLines(ev.Machine)...)

	case session.EventStartup:
		for i, sm := range ev.Startup {
			if i > 0 {
				lines = append(lines, hr)
			}
			lines = append(lines, machineLines(&sm.Machine)...)
			lines = append(lines, fmt.Sprintf("Running: %d  Stored: %d", sm.Running, sm.Stored))
			for _, info := range sm.Sessions {
				lines = append(lines, startupSessionLineDiscord(info))
			}
		}

	case session.EventSystem:
		if ev.System != nil {
			lines = append(lines, ev.System.Lines...)
		}
	}

	lines = append(lines, discordTS(ev.Time, "f"))
	return lines
}

func sessionLinesDiscord(info *session.SessionInfo) []string {
	if info == nil {
		return nil
	}
	lines := []string{
		fmt.Sprintf("Session `%s`", info.ID),
		fmt.Sprintf("GPUs: x%d %s @ $%.4f/gpu/hr", info.GPUCount, info.GPUName, info.GPURate),
	}
	if info.RentalType != "" {
		lines = append(lines, fmt.Sprintf("Type: %s", rentalTypeName(info.RentalType)))
	}
	if info.StorageGB > 0 {
		lines = append(lines, fmt.Sprintf("Storage: %.0f GB", info.StorageGB))
	}
	if info.StartedAt != nil {
		lines = append(lines, fmt.Sprintf("Started: %s (%s)",
			discordTS(*info.StartedAt, "f"), discordTS(*info.StartedAt, "R")))
	}
	if info.ContractEnd != nil {
		lines = append(lines, fmt.Sprintf("Contract ends: %s", discordTS(*info.ContractEnd, "f")))
	}
	return lines
}

func startupSessionLineDiscord(info session.SessionInfo) string {
	line := fmt.Sprintf("`%s`: x%d %s, %s", info.ID, info.GPUCount, info.GPUName, info.Status)
	if info.Seeded {
		line += " (observed at startup)"
	}
	return line
}

const contMark = " (cont.)"

// chunkLines joins lines into bodies no longer than limit. Splits
// happen only at line boundaries and every body after the first
// repeats the header with a continuation mark, so each message stands
// on its own. A single line longer than the limit is hard-cut rather
// than dropped.
func chunkLines(header string, lines []string, limit int) []string {
	// Budget for line content, reserving room for the repeated header
	// and the newline after it.
	contentLimit := limit - len(header) - len(contMark) - 1
	if contentLimit < 1 {
		contentLimit = 1
	}

	var (
		chunks []string
		b      strings.Builder
	)
	flush := func() {
		if b.Len() > 0 {
			chunks = append(chunks, b.String())
			b.Reset()
		}
	}

	for _, line := range lines {
		for len(line) > contentLimit {
			flush()
			b.WriteString(line[:contentLimit])
			flush()
			line = line[contentLimit:]
		}
		if b.Len() > 0 && b.Len()+1+len(line) > contentLimit {
			flush()
		}
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(line)
	}
	flush()

	if len(chunks) == 0 {
		return []string{header}
	}
	bodies := make([]string, len(chunks))
	for i, chunk := range chunks {
		h := header
		if i > 0 {
			h += contMark
		}
		bodies[i] = h + "\n" + chunk
	}
	return bodies
}
