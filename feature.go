package smtp

import (
	"regexp"
	"strings"
)

// Features is the parsed form of a multi-line EHLO response: a lowercase
// keyword maps to either the trimmed parameter text, or the literal bool
// true when the server advertised the keyword with no parameters.
type Features map[string]any

// featureLine matches one line of an EHLO reply body. The leading
// "digits + separator" group is optional so the regex works whether or
// not the caller stripped the reply code from each line before joining
// them into Response.Data (RFC 5321 §4.2 continuation vs. old-style "=").
// The separator is required inside that group, so a keyword that itself
// starts with a digit (8BITMIME) is not mistaken for a reply code.
var featureLine = regexp.MustCompile(`^(?:\d+[-=\s])?\s*?([^\s]+)(?:\s+(.*?)\s*?)?$`)

// ParseFeatures parses an EHLO response body into a Features map. Each
// line of data is matched independently; lines that don't match the
// expected "keyword [params]" shape are ignored. Note that this does not
// skip the first line (the server's greeting/hostname echo) — a literal
// reading of the parsing rule, matching the behavior of the client this
// engine is modeled on.
func ParseFeatures(data string) Features {
	features := make(Features)
	for _, line := range strings.Split(data, "\n") {
		m := featureLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		keyword := strings.ToLower(m[1])
		param := strings.TrimSpace(m[2])
		if param != "" {
			features[keyword] = param
		} else {
			features[keyword] = true
		}
	}
	return features
}
