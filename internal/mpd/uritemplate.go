package mpd

import (
	"log/slog"
	"regexp"
	"strconv"
	"strings"
)

// tokenRe matches $Token$ or $Token%0Nd$ ($RepresentationID$, $Number$,
// $Bandwidth$, $Time$, with an optional width+format specifier).
var tokenRe = regexp.MustCompile(`\$(RepresentationID|Number|Bandwidth|Time)(%0(\d+)([dioux X]))?\$`)

// TemplateParams carries the substitution values for one segment URL.
type TemplateParams struct {
	RepresentationID string
	Number           int64
	Bandwidth        int64
	Time             int64
}

// Expand fills a SegmentTemplate @media/@initialization string. Missing
// substitution preserves the literal $token$ and logs a warning.
func Expand(tmpl string, p TemplateParams) string {
	return tokenRe.ReplaceAllStringFunc(tmpl, func(match string) string {
		sub := tokenRe.FindStringSubmatch(match)
		token, widthStr, format := sub[1], sub[3], sub[4]
		if token == "RepresentationID" && widthStr != "" {
			slog.Warn("uri template: RepresentationID rejects width specifier", "template", tmpl)
		}
		var raw int64
		var hasValue = true
		switch token {
		case "RepresentationID":
			if p.RepresentationID == "" {
				hasValue = false
			}
		case "Number":
			raw = p.Number
		case "Bandwidth":
			raw = p.Bandwidth
		case "Time":
			raw = p.Time
		}
		if !hasValue {
			slog.Warn("uri template: missing substitution", "token", token, "template", tmpl)
			return match
		}
		if token == "RepresentationID" {
			return p.RepresentationID
		}
		return formatNumber(raw, widthStr, format)
	})
}

func formatNumber(n int64, widthStr, format string) string {
	width := 0
	if widthStr != "" {
		width, _ = strconv.Atoi(widthStr)
	}
	var s string
	switch format {
	case "o":
		s = strconv.FormatInt(n, 8)
	case "x":
		s = strconv.FormatInt(n, 16)
	case "X":
		s = strings.ToUpper(strconv.FormatInt(n, 16))
	default: // d, i, u
		s = strconv.FormatInt(n, 10)
	}
	if width > 0 && len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s
}
