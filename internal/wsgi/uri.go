package wsgi

import (
	"strings"
)

const upperhex = "0123456789ABCDEF"

// ApplicationURI returns the base URI of the application: scheme, host and
// the quoted SCRIPT_NAME (or "/" when the application is mounted at the root).
func ApplicationURI(env Environ) (string, error) {
	scheme, err := env.Require(KeyURLScheme)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(scheme)
	b.WriteString("://")

	if host := env.Get(KeyHTTPHost); host != "" {
		b.WriteString(host)
	} else {
		name, err := env.Require(KeyServerName)
		if err != nil {
			return "", err
		}

		port, err := env.Require(KeyServerPort)
		if err != nil {
			return "", err
		}

		b.WriteString(name)
		if port != defaultPort(scheme) {
			b.WriteString(":")
			b.WriteString(port)
		}
	}

	scriptName := env.Get(KeyScriptName)
	if scriptName == "" {
		scriptName = "/"
	}
	b.WriteString(quote(scriptName, "/"))

	return b.String(), nil
}

// RequestURI reconstructs the full URI of the request described by env,
// including the query string when one is present.
func RequestURI(env Environ) (string, error) {
	uri, err := ApplicationURI(env)
	if err != nil {
		return "", err
	}

	pathInfo := quote(env.Get(KeyPathInfo), "/;=,")
	if env.Get(KeyScriptName) == "" && pathInfo != "" {
		// ApplicationURI already ends with "/"
		pathInfo = pathInfo[1:]
	}
	uri += pathInfo

	if query := env.Get(KeyQueryString); query != "" {
		uri += "?" + query
	}

	return uri, nil
}

func defaultPort(scheme string) string {
	if scheme == SchemeHTTPS {
		return "443"
	}

	return "80"
}

// quote percent-encodes every byte of s except unreserved characters and
// the bytes listed in safe.
func quote(s, safe string) string {
	n := 0
	for i := 0; i < len(s); i++ {
		if !shouldKeep(s[i], safe) {
			n++
		}
	}

	if n == 0 {
		return s
	}

	t := make([]byte, 0, len(s)+2*n)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if shouldKeep(c, safe) {
			t = append(t, c)
			continue
		}

		t = append(t, '%', upperhex[c>>4], upperhex[c&15])
	}

	return string(t)
}

func shouldKeep(c byte, safe string) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '_', c == '.', c == '-', c == '~':
		return true
	}

	return strings.IndexByte(safe, c) >= 0
}
