package visit

import (
	"net/netip"
	"strings"
)

// LocalCountry is reported for loopback and private addresses.
const LocalCountry = "Local"

// Location is the geolocation attached to a click. Empty fields mean unknown.
type Location struct {
	Country string
	City    string
}

// Locator resolves an IP address to a location.
type Locator interface {
	Locate(ip string) Location
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ip string) Location

func (f LocatorFunc) Locate(ip string) Location { return f(ip) }

// StubLocator performs no external lookup: loopback, private and
// link-local addresses map to "Local"; everything else is unknown.
type StubLocator struct{}

// Locate implements Locator.
func (StubLocator) Locate(ip string) Location {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return Location{}
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		return Location{Country: LocalCountry}
	}
	return Location{}
}
