package notify

import (
	"strings"

	"github.com/begna112/vast-monitor/internal/session"
)

// Message is a formatted notification. Chunked services return several
// bodies; single-body services return one.
type Message struct {
	Title  string
	Bodies []string
}

// Formatter renders an event for one service family. Formatters are
// stateless and safe for concurrent use.
type Formatter interface {
	Format(ev session.Event, t *Target) Message
}

var (
	discordFormatter = &DiscordFormatter{Limit: discordChunkLimit}
	emailFormatter   = &EmailFormatter{}
	defaultFormatter = &DefaultFormatter{}
)

// ServiceFor picks the formatter for a target's service. Discord
// variants (discord, discordwh) share the chunking formatter; mail
// services share the email formatter; everything else renders plain.
func ServiceFor(service string) Formatter {
	switch {
	case strings.HasPrefix(service, "discord"):
		return discordFormatter
	case strings.HasPrefix(service, "email"), strings.HasPrefix(service, "mail"):
		return emailFormatter
	default:
		return defaultFormatter
	}
}
