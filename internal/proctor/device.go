package proctor

import "strings"

// MinDesktopWidth is the narrowest viewport accepted as a desktop or laptop.
const MinDesktopWidth = 1024

var mobileSignatures = []string{
	"android", "iphone", "ipad", "ipod", "mobile", "tablet", "kindle",
	"silk", "blackberry", "bb10", "opera mini", "iemobile", "webos",
}

// IsDesktopClass reports whether a client may proceed past the device check.
func IsDesktopClass(viewportWidth int, userAgent string) bool {
	if viewportWidth < MinDesktopWidth {
		return false
	}
	ua := strings.ToLower(userAgent)
	for _, sig := range mobileSignatures {
		if strings.Contains(ua, sig) {
			return false
		}
	}
	return true
}
