// Package sources pulls citation links out of retrieved chunk text.
package sources

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const pubmedURL = "https://pubmed.ncbi.nlm.nih.gov/%s/"

var (
	pmidRe = regexp.MustCompile(`(?i)\bPMID:?\s*(\d{1,9})\b`)
	doiRe  = regexp.MustCompile(`(?i)\bdoi:\s*(\S+)`)

	// most specific first
	urlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)https?://(?:dx\.)?doi\.org/[^\s<>"'\])]+`),
		regexp.MustCompile(`(?i)https?://[^\s<>"'\])]+`),
		regexp.MustCompile(`(?i)\bwww\.[^\s<>"'\])]+`),
		regexp.MustCompile(`(?i)\b[a-z0-9][a-z0-9-]*(?:\.[a-z0-9-]+)*\.[a-z]{2,}/[^\s<>"'\])]*`),
	}

	labelRe = regexp.MustCompile(`(?i)\bURL:\s*(\S+)`)

	bareDOIRe = regexp.MustCompile(`^10\.\d+/\S+$`)
)

const trailingPunct = `.,;:!?)]}'"`

// ExtractURL returns the first citation link found in text.
func ExtractURL(text string) (string, bool) {
	return extract(text, func(string) bool { return true })
}

// ExtractURLStrict is ExtractURL that also rejects hosts without a dotted
// domain and doi.org links without a real DOI path.
func ExtractURLStrict(text string) (string, bool) {
	return extract(text, validURL)
}

func extract(text string, valid func(string) bool) (string, bool) {
	for _, candidate := range candidates(text) {
		if valid(candidate) {
			return candidate, true
		}
	}
	return "", false
}

// candidates lists possible links in precedence order.
func candidates(text string) []string {
	var out []string

	if m := pmidRe.FindStringSubmatch(text); m != nil {
		out = append(out, fmt.Sprintf(pubmedURL, m[1]))
	}

	for _, m := range doiRe.FindAllStringSubmatch(text, -1) {
		doi := trimTrailing(m[1])
		if isAbsolute(doi) {
			out = append(out, doi)
			continue
		}
		if ValidDOI(doi) {
			out = append(out, "https://doi.org/"+doi)
		}
	}

	for _, re := range urlPatterns {
		for _, m := range re.FindAllString(text, -1) {
			u := trimTrailing(m)
			if u == "" {
				continue
			}
			if !isAbsolute(u) {
				u = "https://" + u
			}
			out = append(out, u)
		}
	}

	if m := labelRe.FindStringSubmatch(text); m != nil {
		if u := trimTrailing(m[1]); u != "" {
			if !isAbsolute(u) {
				u = "https://" + u
			}
			out = append(out, u)
		}
	}
	return out
}

// ValidDOI reports whether doi looks like "10.<registrant>/<suffix>" with a
// suffix longer than two characters.
func ValidDOI(doi string) bool {
	if !bareDOIRe.MatchString(doi) {
		return false
	}
	i := strings.Index(doi, "/")
	return len(doi[i+1:]) > 2
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}

	host := strings.ToLower(u.Hostname())
	labels := strings.Split(host, ".")
	if len(labels) < 2 {
		return false
	}
	for _, l := range labels {
		if l == "" {
			return false
		}
	}

	if host == "doi.org" || host == "dx.doi.org" {
		path := strings.Trim(u.Path, "/")
		if len(path) <= 2 {
			return false
		}
		if strings.HasPrefix(path, "10.") {
			return ValidDOI(path)
		}
	}
	return true
}

func isAbsolute(s string) bool {
	lower := strings.ToLower(s)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func trimTrailing(s string) string {
	return strings.TrimRight(s, trailingPunct)
}
