package auth

import (
	"net/url"
	"strings"
)

// SanitizeReturnTo limits post-login and post-logout redirects to the
// frontend. A path starting with "/" is resolved against frontendOrigin, an
// absolute URL is kept only when its scheme and host match frontendOrigin, and
// anything else yields frontendOrigin itself.
func SanitizeReturnTo(returnTo, frontendOrigin string) string {
	if returnTo == "" {
		return frontendOrigin
	}
	origin, err := url.Parse(frontendOrigin)
	if err != nil {
		return frontendOrigin
	}
	target, err := url.Parse(returnTo)
	if err != nil {
		return frontendOrigin
	}

	// "//evil.example" parses as a host-relative URL; it is not a path.
	if target.Scheme == "" && target.Host == "" && strings.HasPrefix(returnTo, "/") && !strings.HasPrefix(returnTo, "//") {
		return origin.Scheme + "://" + origin.Host + returnTo
	}

	if target.Scheme != "" && target.Host != "" && target.Scheme == origin.Scheme && target.Host == origin.Host {
		path := target.EscapedPath()
		if path == "" {
			path = "/"
		}
		out := target.Scheme + "://" + target.Host + path
		if target.RawQuery != "" {
			out += "?" + target.RawQuery
		}
		if target.Fragment != "" {
			out += "#" + target.EscapedFragment()
		}
		return out
	}

	return frontendOrigin
}
