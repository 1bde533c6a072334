package visit

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_TableDriven(t *testing.T) {
	tests := []struct {
		name string
		ua   string
		want Classification
	}{
		{
			name: "iPhone Safari",
			ua:   "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
			want: Classification{Device: DeviceMobile, Browser: "Safari", OS: "iOS"},
		},
		{
			name: "Windows Chrome",
			ua:   "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			want: Classification{Device: DeviceDesktop, Browser: "Chrome", OS: "Windows"},
		},
		{
			name: "legacy Edge is not Chrome",
			ua:   "Mozilla/5.0 (Windows NT 10.0) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/70.0 Safari/537.36 Edge/18.19041",
			want: Classification{Device: DeviceDesktop, Browser: "Edge", OS: "Windows"},
		},
		{
			name: "Linux Firefox",
			ua:   "Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0",
			want: Classification{Device: DeviceDesktop, Browser: "Firefox", OS: "Linux"},
		},
		{
			name: "macOS Safari",
			ua:   "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_0) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
			want: Classification{Device: DeviceDesktop, Browser: "Safari", OS: "macOS"},
		},
		{
			name: "Android Chrome reports Linux first",
			ua:   "Mozilla/5.0 (Linux; Android 14; Pixel 8) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Mobile Safari/537.36",
			want: Classification{Device: DeviceMobile, Browser: "Chrome", OS: "Linux"},
		},
		{
			name: "Android without Linux token",
			ua:   "Dalvik/2.1.0 (Android 13)",
			want: Classification{Device: DeviceMobile, Browser: Unknown, OS: "Android"},
		},
		{
			name: "iPad",
			ua:   "Mozilla/5.0 (iPad; CPU OS 17_0) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/604.1",
			want: Classification{Device: DeviceTablet, Browser: "Safari", OS: "iOS"},
		},
		{
			name: "Opera Presto",
			ua:   "Opera/9.80 (X11; Linux i686) Presto/2.12.388 Version/12.16",
			want: Classification{Device: DeviceDesktop, Browser: "Opera", OS: "Linux"},
		},
		{
			name: "curl",
			ua:   "curl/8.4.0",
			want: Classification{Device: DeviceDesktop, Browser: Unknown, OS: Unknown},
		},
		{
			name: "empty",
			ua:   "",
			want: Classification{Device: DeviceDesktop, Browser: Unknown, OS: Unknown},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.ua))
		})
	}
}

func TestClassify_IsCaseInsensitive(t *testing.T) {
	assert.Equal(t, Classify("MOZILLA (IPHONE) SAFARI"), Classify("mozilla (iphone) safari"))
}

func TestClassify_IsPure(t *testing.T) {
	ua := "Mozilla/5.0 (iPhone; CPU iPhone OS) AppleWebKit Safari"
	first := Classify(ua)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, Classify(ua))
	}
	assert.Equal(t, Classification{Device: DeviceMobile, Browser: "Safari", OS: "iOS"}, first)
}

// "like Mac OS X" in real iOS user agents matches the macOS rule, which is
// checked before iOS.
func TestClassify_MacTokenTakesPriorityOverIOS(t *testing.T) {
	c := Classify("Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Safari/604.1")

	assert.Equal(t, DeviceMobile, c.Device)
	assert.Equal(t, "macOS", c.OS)
}
