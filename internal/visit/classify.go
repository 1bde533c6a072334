package visit

import "strings"

const (
	DeviceMobile  = "Mobile"
	DeviceTablet  = "Tablet"
	DeviceDesktop = "Desktop"

	Unknown = "Unknown"
)

// Classification is the device/browser/os triple derived from a user agent.
type Classification struct {
	Device  string
	Browser string
	OS      string
}

// Classify buckets a user-agent string by case-insensitive substring match.
// Each dimension is checked in a fixed priority order, so identical inputs
// always produce identical results.
func Classify(userAgent string) Classification {
	ua := strings.ToLower(userAgent)
	return Classification{
		Device:  device(ua),
		Browser: browser(ua),
		OS:      operatingSystem(ua),
	}
}

func device(ua string) string {
	switch {
	case containsAny(ua, "mobile", "android", "iphone"):
		return DeviceMobile
	case containsAny(ua, "tablet", "ipad"):
		return DeviceTablet
	default:
		return DeviceDesktop
	}
}

// Chrome and Safari tokens appear in most Chromium-based and WebKit UAs, so
// they are disambiguated by the tokens that must be absent.
func browser(ua string) string {
	switch {
	case strings.Contains(ua, "chrome") && !strings.Contains(ua, "edge"):
		return "Chrome"
	case strings.Contains(ua, "firefox"):
		return "Firefox"
	case strings.Contains(ua, "safari") && !strings.Contains(ua, "chrome"):
		return "Safari"
	case strings.Contains(ua, "edge"):
		return "Edge"
	case strings.Contains(ua, "opera"):
		return "Opera"
	default:
		return Unknown
	}
}

func operatingSystem(ua string) string {
	switch {
	case strings.Contains(ua, "windows"):
		return "Windows"
	case strings.Contains(ua, "mac"):
		return "macOS"
	case strings.Contains(ua, "linux"):
		return "Linux"
	case strings.Contains(ua, "android"):
		return "Android"
	case containsAny(ua, "ios", "iphone", "ipad"):
		return "iOS"
	default:
		return Unknown
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
