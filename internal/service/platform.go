package service

import (
	"net/url"
	"strings"

	"github.com/jmylchreest/pricewatch-api/internal/models"
)

// platformHosts maps a host fragment to its platform. Order matters only if
// two fragments could match one host.
var platformHosts = []struct {
	fragment string
	platform models.Platform
}{
	{"amazon", models.PlatformAmazon},
	{"flipkart", models.PlatformFlipkart},
	{"myntra", models.PlatformMyntra},
	{"meesho", models.PlatformMeesho},
	{"nykaa", models.PlatformNykaa},
	{"ajio", models.PlatformAjio},
}

// PlatformFromURL infers the platform from the URL's host.
// Unparseable input is matched as a bare host string.
func PlatformFromURL(raw string) models.Platform {
	host := raw
	if u, err := url.Parse(strings.TrimSpace(raw)); err == nil && u.Host != "" {
		host = u.Host
	}
	host = strings.ToLower(host)

	for _, p := range platformHosts {
		if strings.Contains(host, p.fragment) {
			return p.platform
		}
	}
	return models.PlatformUnknown
}
