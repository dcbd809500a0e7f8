package notify

import (
	"fmt"
	"strings"
	"time"

	"github.com/begna112/vast-monitor/internal/session"
)

// hr separates sections inside one notification body.
const hr = "---------------------------------"

// humanizeDuration renders a duration as "2d 3h 4m" style text,
// dropping zero leading units. Sub-minute durations render seconds.
func humanizeDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60

	var parts []string
	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}
	if hours > 0 || days > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	parts = append(parts, fmt.Sprintf("%dm", minutes))
	return strings.Join(parts, " ")
}

// discordTS renders a discord dynamic timestamp token. Style "f" is
// full date-time, "R" is relative.
func discordTS(t time.Time, style string) string {
	return fmt.Sprintf("<t:%d:%s>", t.Unix(), style)
}

// absoluteTS renders an absolute UTC timestamp for services without
// dynamic timestamp support.
func absoluteTS(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05 UTC")
}

// eventTitle is the human heading for an event kind.
func eventTitle(ev session.Event) string {
	switch ev.Kind {
	case session.EventRentalStart:
		return fmt.Sprintf("New Rental on Machine %d", ev.MachineID)
	case session.EventRentalEnd:
		return fmt.Sprintf("Rental Ended on Machine %d", ev.MachineID)
	case session.EventRentalPause:
		return fmt.Sprintf("Rental Paused on Machine %d", ev.MachineID)
	case session.EventRentalResume:
		return fmt.Sprintf("Rental Resumed on Machine %d", ev.MachineID)
	case session.EventError:
		return fmt.Sprintf("Machine %d Error", ev.MachineID)
	case session.EventRecovery:
		return fmt.Sprintf("Machine %d Recovered", ev.MachineID)
	case session.EventStartup:
		return "Monitor Startup: Ongoing Rentals"
	case session.EventSystem:
		if ev.System != nil && ev.System.Title != "" {
			return ev.System.Title
		}
		return "Vast Monitor"
	default:
		return "Vast Monitor"
	}
}

// machineLines renders the machine overview block shared by every
// formatter.
func machineLines(mi *session.MachineInfo) []string {
	if mi == nil {
		return nil
	}
	lines := []string{
		fmt.Sprintf("Machine %d: %s x%d", mi.ID, mi.GPUName, mi.NumGPUs),
		fmt.Sprintf("GPUs in use: %d/%d", mi.GPUsUsed, mi.NumGPUs),
	}
	if mi.Occupancy != "" {
		lines = append(lines, fmt.Sprintf("Occupancy: %s", mi.Occupancy))
	}
	if mi.Geolocation != "" {
		lines = append(lines, fmt.Sprintf("Location: %s", mi.Geolocation))
	}
	return lines
}

// rentalTypeName expands the provider's single-letter rental type.
func rentalTypeName(t string) string {
	switch t {
	case "D":
		return "on-demand"
	case "I":
		return "interruptible"
	case "R":
		return "reserved"
	default:
		return t
	}
}
