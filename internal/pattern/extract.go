package pattern

import (
	"net/url"
	"regexp"
	"strings"
)

// poPatterns are tried in order and the first match wins. Conflicting
// matches from later patterns are never consulted.
var poPatterns = []*regexp.Regexp{
	// PO #12345, P.O. 12345, PO: 12345, PO Number 12345
	regexp.MustCompile(`(?i)\bP\.?O\b\.?\s*(?:#|Number|No\.?)?\s*:?\s*([A-Z0-9-]*\d[A-Z0-9-]*)`),
	// Purchase Order #12345
	regexp.MustCompile(`(?i)\bPurchase\s+Order\s*(?:#|Number|No\.?)?\s*:?\s*([A-Z0-9-]*\d[A-Z0-9-]*)`),
	// internal reference IMP-1234
	regexp.MustCompile(`(?i)\b(IMP-\d{4,6})\b`),
	// Job #J-2001
	regexp.MustCompile(`(?i)\bJob\s*#\s*(J-\d+)\b`),
}

// ExtractPONumber returns the first purchase-order token found in s,
// upper-cased, or "" when none of the patterns match.
func ExtractPONumber(s string) string {
	for _, re := range poPatterns {
		if m := re.FindStringSubmatch(s); m != nil {
			return strings.ToUpper(strings.Trim(m[1], "-"))
		}
	}
	return ""
}

// ExtractDomain returns the lower-cased domain of an address such as
// "Jane <jane@Acme.com>", or "" when there is none.
func ExtractDomain(addr string) string {
	if open := strings.LastIndex(addr, "<"); open >= 0 {
		addr = addr[open+1:]
		if end := strings.Index(addr, ">"); end >= 0 {
			addr = addr[:end]
		}
	}
	at := strings.LastIndex(addr, "@")
	if at < 0 {
		return ""
	}
	domain := strings.TrimSpace(addr[at+1:])
	domain = strings.TrimRight(domain, ">.,;")
	return strings.ToLower(domain)
}

var (
	urlPattern = regexp.MustCompile(`https?://[^\s<>"'()\[\]]+`)

	trustedHosts = []string{
		"dropbox.com",
		"wetransfer.com",
		"we.tl",
		"drive.google.com",
		"docs.google.com",
		"box.com",
		"onedrive.live.com",
		"1drv.ms",
	}
)

// ExtractLinks returns every URL in s hosted on a trusted file-sharing
// service, in order of appearance. Duplicates are kept.
func ExtractLinks(s string) []string {
	var links []string
	for _, raw := range urlPattern.FindAllString(s, -1) {
		raw = strings.TrimRight(raw, ".,;:!?")
		u, err := url.Parse(raw)
		if err != nil {
			continue
		}
		if trustedHost(u.Hostname()) {
			links = append(links, raw)
		}
	}
	return links
}

func trustedHost(host string) bool {
	host = strings.ToLower(host)
	for _, h := range trustedHosts {
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// Classification is the stateless pre-processing result for one message.
type Classification struct {
	PONumber string   `json:"poNumber,omitempty"`
	Links    []string `json:"links"`
}

// Classify extracts the PO number and trusted links from a subject and body.
// The subject is searched for a PO first.
func Classify(subject, body string) Classification {
	po := ExtractPONumber(subject)
	if po == "" {
		po = ExtractPONumber(body)
	}
	links := ExtractLinks(subject + "\n" + body)
	if links == nil {
		links = []string{}
	}
	return Classification{PONumber: po, Links: links}
}
