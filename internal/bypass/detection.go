package bypass

import (
	"bytes"
	"net/http"
	"strings"
)

// Detector examines a fetched response to determine whether a bot protection
// vendor blocked or challenged the request. It returns the vendor name when
// it triggers. Challenge interstitials must not end up in an analysis corpus;
// a blocked fetch is treated as a failed fetch.
type Detector func(status int, header http.Header, body []byte) (detected bool, vendor string)

// DefaultDetectors returns the standard list of bot protection detectors.
func DefaultDetectors() []Detector {
	return []Detector{
		detectCloudflare,
		detectAkamai,
		detectDataDome,
		detectPerimeterX,
	}
}

// Detect runs the response through all provided detectors and returns the
// first vendor that triggers.
func Detect(status int, header http.Header, body []byte, detectors []Detector) (string, bool) {
	for _, d := range detectors {
		if detected, vendor := d(status, header, body); detected {
			return vendor, true
		}
	}
	return "", false
}

// detectCloudflare looks for common Cloudflare challenge/block signatures.
func detectCloudflare(status int, header http.Header, body []byte) (bool, string) {
	// Status codes 403 or 503 are common for CF challenges
	if status == http.StatusForbidden || status == http.StatusServiceUnavailable {
		if strings.Contains(strings.ToLower(header.Get("Server")), "cloudflare") {
			return true, "Cloudflare"
		}
		if bytes.Contains(body, []byte("cf-browser-verification")) ||
			bytes.Contains(body, []byte("cloudflare-nginx")) ||
			bytes.Contains(body, []byte("cf-turnstile")) ||
			bytes.Contains(body, []byte("Attention Required! | Cloudflare")) {
			return true, "Cloudflare"
		}
	}
	return false, ""
}

// detectAkamai looks for Akamai Bot Manager signatures.
func detectAkamai(status int, header http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden {
		if strings.Contains(strings.ToLower(header.Get("Server")), "akamai") {
			return true, "Akamai"
		}
		// Akamai often returns a generic "Reference #" block page
		if bytes.Contains(body, []byte("Reference #")) && bytes.Contains(body, []byte("Access Denied")) {
			return true, "Akamai"
		}
	}
	return false, ""
}

// detectDataDome looks for DataDome challenge/block signatures.
func detectDataDome(status int, header http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden {
		if strings.Contains(strings.ToLower(header.Get("Server")), "datadome") {
			return true, "DataDome"
		}
		if header.Get("X-DataDome") != "" || header.Get("X-DataDome-Response") != "" {
			return true, "DataDome"
		}
		if bytes.Contains(body, []byte("geo.captcha-delivery.com")) || bytes.Contains(body, []byte("datadome")) {
			return true, "DataDome"
		}
	}
	return false, ""
}

// detectPerimeterX looks for PerimeterX (HUMAN) signatures.
func detectPerimeterX(status int, header http.Header, body []byte) (bool, string) {
	if status == http.StatusForbidden {
		if header.Get("X-Px-Captcha") != "" {
			return true, "PerimeterX"
		}
		if bytes.Contains(body, []byte("client.perimeterx.net")) ||
			bytes.Contains(body, []byte("px-captcha")) ||
			bytes.Contains(body, []byte("_pxBlock")) {
			return true, "PerimeterX"
		}
	}
	return false, ""
}
