package twitch

import (
	"strings"

	"chatwarden/internal/core/domain"
)

// ircMessage is one parsed line of the IRCv3-flavoured chat protocol.
type ircMessage struct {
	tags     map[string]string
	prefix   string
	command  string
	params   []string
	trailing string
}

// parseLine splits a raw IRC line into tags, prefix, command and params.
// Malformed lines come back with an empty command and are skipped upstream.
func parseLine(line string) ircMessage {
	msg := ircMessage{tags: map[string]string{}}
	line = strings.TrimRight(line, "\r\n")

	if strings.HasPrefix(line, "@") {
		idx := strings.Index(line, " ")
		if idx < 0 {
			return msg
		}
		for _, pair := range strings.Split(line[1:idx], ";") {
			if k, v, ok := strings.Cut(pair, "="); ok {
				msg.tags[k] = unescapeTag(v)
			}
		}
		line = line[idx+1:]
	}

	if strings.HasPrefix(line, ":") {
		idx := strings.Index(line, " ")
		if idx < 0 {
			return msg
		}
		msg.prefix = line[1:idx]
		line = line[idx+1:]
	}

	if rest, trailing, ok := strings.Cut(line, " :"); ok {
		msg.trailing = trailing
		line = rest
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return msg
	}
	msg.command = fields[0]
	msg.params = fields[1:]
	return msg
}

// unescapeTag reverses IRCv3 tag value escaping.
func unescapeTag(v string) string {
	r := strings.NewReplacer(`\:`, ";", `\s`, " ", `\\`, `\`, `\r`, "\r", `\n`, "\n")
	return r.Replace(v)
}

// parseBadges turns the badges tag ("broadcaster/1,subscriber/12") into the
// domain badge map.
func parseBadges(tag string) domain.Badges {
	badges := make(domain.Badges)
	if tag == "" {
		return badges
	}
	for _, entry := range strings.Split(tag, ",") {
		name, version, _ := strings.Cut(entry, "/")
		if name != "" {
			badges[name] = version
		}
	}
	return badges
}

// nickFromPrefix extracts the sender nick from an IRC prefix
// ("nick!user@host").
func nickFromPrefix(prefix string) string {
	if idx := strings.Index(prefix, "!"); idx > 0 {
		return prefix[:idx]
	}
	return prefix
}

// channelFromParam normalizes "#channel" to the domain channel name.
func channelFromParam(param string) domain.Channel {
	return domain.Channel(strings.ToLower(strings.TrimPrefix(param, "#")))
}
