package probe

import (
	"strings"

	"github.com/CodeMonkeyCybersecurity/aasprobe/internal/core"
)

// Hard-rejection markers returned by the authorization endpoint. They are
// matched as exact, case-sensitive substrings of the response body.
const (
	MarkerUnregistered = "Error=UNREGISTERED_ON_API_CONSOLE"
	MarkerRestricted   = "Error=RESTRICTED_CLIENT"
)

// DiscoveryMarkers reject a package/signature pair during discovery. A
// restricted-client answer still proves the pair is registered, so only the
// unregistered marker counts here.
func DiscoveryMarkers() []string {
	return []string{MarkerUnregistered}
}

// ScopeMarkers reject an identity/scope pair during scope validation.
func ScopeMarkers() []string {
	return []string{MarkerRestricted, MarkerUnregistered}
}

// Classify maps a received response body to Approved or Rejected. Any body
// without a rejection marker is approved.
func Classify(body string, markers []string) core.Outcome {
	for _, marker := range markers {
		if strings.Contains(body, marker) {
			return core.Rejected
		}
	}
	return core.Approved
}
