package warnings

import (
	"strings"

	"github.com/couchcryptid/storm-radar-overlay/internal/domain"
)

// eventStyle is the display treatment of one NWS event type.
type eventStyle struct {
	severity domain.Severity
	color    string
}

// eventStyles maps lower-cased NWS event names to their display style.
var eventStyles = map[string]eventStyle{
	"tornado warning":              {domain.SeverityExtreme, "#ff69b4"},
	"tornado watch":                {domain.SeveritySevere, "#ffff00"},
	"severe thunderstorm warning":  {domain.SeveritySevere, "#ff0000"},
	"severe thunderstorm watch":    {domain.SeverityModerate, "#aaaa00"},
	"flash flood warning":          {domain.SeveritySevere, "#8b0000"},
	"flash flood watch":            {domain.SeverityModerate, "#2e8b57"},
	"flood warning":                {domain.SeverityModerate, "#00ff00"},
	"flood advisory":               {domain.SeverityMinor, "#00ff7f"},
	"special marine warning":       {domain.SeverityModerate, "#ffa500"},
	"special weather statement":    {domain.SeverityMinor, "#ffe4b5"},
	"winter storm warning":         {domain.SeveritySevere, "#ff69b4"},
	"blizzard warning":             {domain.SeveritySevere, "#ff4500"},
	"ice storm warning":            {domain.SeveritySevere, "#8b008b"},
	"high wind warning":            {domain.SeverityModerate, "#daa520"},
	"extreme wind warning":         {domain.SeverityExtreme, "#ff8c00"},
	"dust storm warning":           {domain.SeverityModerate, "#ffe4c4"},
	"red flag warning":             {domain.SeverityModerate, "#ff1493"},
	"excessive heat warning":       {domain.SeveritySevere, "#c71585"},
	"mesoscale discussion":         {domain.SeverityMinor, "#00aaaa"},
	"hurricane warning":            {domain.SeverityExtreme, "#dc143c"},
	"tropical storm warning":       {domain.SeveritySevere, "#b22222"},
	"storm surge warning":          {domain.SeverityExtreme, "#b524f7"},
	"winter weather advisory":      {domain.SeverityMinor, "#7b68ee"},
	"dense fog advisory":           {domain.SeverityMinor, "#708090"},
	"wind advisory":                {domain.SeverityMinor, "#d2b48c"},
	"heat advisory":                {domain.SeverityMinor, "#ff7f50"},
	"small craft advisory":         {domain.SeverityMinor, "#d8bfd8"},
	"severe weather statement":     {domain.SeverityModerate, "#00ffff"},
	"flash flood statement":        {domain.SeverityModerate, "#8b0000"},
	"tornado emergency":            {domain.SeverityExtreme, "#ff69b4"},
	"flash flood emergency":        {domain.SeverityExtreme, "#8b0000"},
	"extreme cold warning":         {domain.SeveritySevere, "#0000ff"},
	"hazardous seas warning":       {domain.SeverityModerate, "#d8bfd8"},
	"heavy freezing spray warning": {domain.SeverityModerate, "#00bfff"},
}

// severityColors is used when an event has no dedicated color.
var severityColors = map[domain.Severity]string{
	domain.SeverityExtreme:  "#a52a2a",
	domain.SeveritySevere:   "#ff0000",
	domain.SeverityModerate: "#b25900",
	domain.SeverityMinor:    "#aaaa00",
	domain.SeverityUnknown:  "#808080",
}

// keywordSeverity derives a level from unlisted event names, first match wins.
var keywordSeverity = []struct {
	keyword  string
	severity domain.Severity
}{
	{"emergency", domain.SeverityExtreme},
	{"warning", domain.SeveritySevere},
	{"watch", domain.SeverityModerate},
	{"advisory", domain.SeverityMinor},
	{"statement", domain.SeverityMinor},
}

// ParseSeverity normalizes the feed's severity property.
func ParseSeverity(s string) domain.Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extreme":
		return domain.SeverityExtreme
	case "severe":
		return domain.SeveritySevere
	case "moderate":
		return domain.SeverityModerate
	case "minor":
		return domain.SeverityMinor
	default:
		return domain.SeverityUnknown
	}
}

// Style returns the severity and display color for an event. A known feed
// severity wins over the event table; the color always follows the event
// when the event is listed.
func Style(event string, feedSeverity domain.Severity) (domain.Severity, string) {
	key := strings.ToLower(strings.TrimSpace(event))
	style, listed := eventStyles[key]

	sev := feedSeverity
	if sev == "" || sev == domain.SeverityUnknown {
		switch {
		case listed:
			sev = style.severity
		default:
			sev = severityFromKeywords(key)
		}
	}

	if listed {
		return sev, style.color
	}
	return sev, severityColors[sev]
}

func severityFromKeywords(event string) domain.Severity {
	for _, k := range keywordSeverity {
		if strings.Contains(event, k.keyword) {
			return k.severity
		}
	}
	return domain.SeverityUnknown
}
