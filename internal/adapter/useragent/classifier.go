// Package useragent classifies client-identification strings.
package useragent

import (
	"strings"
	"unicode"

	ua "github.com/mssola/useragent"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

// Classifier implements domain.ClientClassifier on top of mssola/useragent.
type Classifier struct{}

// NewClassifier returns a Classifier.
func NewClassifier() *Classifier {
	return &Classifier{}
}

// Classify never fails; anything unrecognised resolves to "Other" families.
func (c *Classifier) Classify(userAgent string) domain.ClientDescriptor {
	userAgent = strings.TrimSpace(userAgent)
	if userAgent == "" {
		return domain.UnknownClient()
	}

	p := ua.New(userAgent)
	d := domain.UnknownClient()

	name, version := p.Browser()
	if isProductToken(name) {
		d.Browser = name
		d.BrowserVersion = version
	}
	os := p.OSInfo()
	if os.Name != "" {
		d.OS = os.Name
		d.OSVersion = os.Version
	}

	d.IsBot = p.Bot()
	d.IsTablet = !d.IsBot && isTablet(userAgent)
	d.IsMobile = !d.IsBot && !d.IsTablet && p.Mobile()
	d.IsPC = !d.IsBot && !d.IsTablet && !d.IsMobile && isDesktopOS(d.OS)
	d.Device = deviceFamily(p.Platform(), d)

	return d
}

// isProductToken rejects the placeholders mssola echoes back for strings it
// cannot parse, such as "-" or punctuation-only tokens.
func isProductToken(name string) bool {
	if name == "" || name == "-" {
		return false
	}
	return strings.IndexFunc(name, unicode.IsLetter) >= 0
}

func isTablet(s string) bool {
	switch {
	case strings.Contains(s, "iPad"), strings.Contains(s, "Tablet"), strings.Contains(s, "Kindle"):
		return true
	case strings.Contains(s, "Android") && !strings.Contains(s, "Mobile"):
		return true
	}
	return false
}

var desktopOS = []string{"Windows", "Mac OS", "Linux", "CrOS", "Chrome OS", "FreeBSD", "OpenBSD", "Ubuntu"}

func isDesktopOS(os string) bool {
	if strings.Contains(os, "Android") {
		return false
	}
	for _, prefix := range desktopOS {
		if strings.Contains(os, prefix) {
			return true
		}
	}
	return false
}

func deviceFamily(platform string, d domain.ClientDescriptor) string {
	switch {
	case d.IsBot:
		return "Spider"
	case platform == "iPhone", platform == "iPad", platform == "iPod", platform == "iPod touch":
		return platform
	case platform == "Macintosh":
		return "Mac"
	case d.IsTablet:
		return "Generic Tablet"
	case d.IsMobile:
		return "Generic Smartphone"
	}
	return domain.UnknownFamily
}
