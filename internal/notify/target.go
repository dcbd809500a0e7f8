// Package notify routes lifecycle events to the configured targets,
// formats them per service, and delivers them through a worker pool.
package notify

import (
	"fmt"
	"log"
	"strings"

	"github.com/begna112/vast-monitor/internal/config"
	"github.com/begna112/vast-monitor/internal/session"
)

// Target is one resolved notification destination. Targets are built
// once at startup and never mutated afterward.
type Target struct {
	Name    string
	URL     string
	Service string
	// Mention is appended to error events; discord targets without one
	// fall back to the global error mention.
	Mention string
	// Events restricts delivery; nil means all kinds.
	Events map[session.EventKind]bool
}

// Wants reports whether the target subscribes to the event kind.
func (t *Target) Wants(kind session.EventKind) bool {
	return t.Events == nil || t.Events[kind]
}

// BuildTargets resolves the configured targets: disabled entries are
// dropped, the service is derived from the URL scheme when unset, and
// unnamed targets get unique service-based names. Unknown event names
// in a subscription are skipped with a warning rather than failing the
// whole config.
func BuildTargets(cfg config.AppriseConfig) []*Target {
	var targets []*Target
	counts := make(map[string]int)

	for _, tc := range cfg.Targets {
		if !tc.IsEnabled() {
			continue
		}
		if tc.URL == "" {
			log.Println("Skipping notification target with empty url")
			continue
		}

		service := tc.Service
		if service == "" {
			service = serviceFromURL(tc.URL)
		}

		name := tc.Name
		if name == "" {
			counts[service]++
			name = fmt.Sprintf("%s-%d", service, counts[service])
		}

		mention := tc.Mention
		if mention == "" && strings.HasPrefix(service, "discord") {
			mention = cfg.ErrorMention
		}

		var events map[session.EventKind]bool
		if len(tc.Events) > 0 {
			events = make(map[session.EventKind]bool, len(tc.Events))
			for _, evName := range tc.Events {
				kind := session.EventKind(evName)
				if !session.ValidEventKinds[kind] {
					log.Printf("Target %q subscribes to unknown event %q, skipping it", name, evName)
					continue
				}
				events[kind] = true
			}
		}

		targets = append(targets, &Target{
			Name:    name,
			URL:     tc.URL,
			Service: service,
			Mention: mention,
			Events:  events,
		})
	}
	return targets
}

// serviceFromURL derives a service identifier from the URL scheme, so
// an apprise-style "discord://..." target works without an explicit
// service field.
func serviceFromURL(url string) string {
	if i := strings.Index(url, "://"); i > 0 {
		scheme := strings.ToLower(url[:i])
		if strings.Contains(url, "discord.com/api/webhooks") {
			return "discord"
		}
		if scheme == "http" || scheme == "https" {
			return "webhook"
		}
		return scheme
	}
	return "webhook"
}

// Route returns the targets subscribed to the event, in configuration
// order. It is a pure function of its inputs.
func Route(targets []*Target, kind session.EventKind) []*Target {
	var out []*Target
	for _, t := range targets {
		if t.Wants(kind) {
			out = append(out, t)
		}
	}
	return out
}
