package wsgi

import (
	"net"
	"net/http"
	"strconv"
	"strings"
)

var headerNameReplacer = strings.NewReplacer(" ", "_", "-", "_")

// Scheme returns the scheme the client used to reach the server. Requests
// received over TLS are https, as are requests whose URL scheme was set to
// https by a trusted proxy middleware.
func Scheme(r *http.Request) string {
	if r.TLS != nil || r.URL.Scheme == SchemeHTTPS {
		return SchemeHTTPS
	}

	return SchemeHTTP
}

// FromRequest builds the request environment for r
func FromRequest(r *http.Request) Environ {
	scheme := Scheme(r)

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	serverName, serverPort := splitHostPort(r.Host, defaultPort(scheme))

	env := Environ{
		KeyURLScheme:      scheme,
		KeyRequestMethod:  method,
		KeyServerProtocol: r.Proto,
		KeyRequestURI:     r.URL.RequestURI(),
		KeyScriptName:     "",
		KeyPathInfo:       r.URL.Path,
		KeyQueryString:    r.URL.RawQuery,
		KeyServerName:     serverName,
		KeyServerPort:     serverPort,
		KeyRemoteAddr:     r.RemoteAddr,
	}

	if r.Host != "" {
		env[KeyHTTPHost] = r.Host
	}

	if scheme == SchemeHTTPS {
		env[KeyHTTPS] = "on"
	}

	if r.ContentLength > 0 {
		env[KeyContentLength] = strconv.FormatInt(r.ContentLength, 10)
	}

	for key, value := range r.Header {
		header := headerNameReplacer.Replace(strings.ToUpper(key))

		switch header {
		case "CONTENT_TYPE":
			env[KeyContentType] = strings.Join(value, ", ")
		case "CONTENT_LENGTH":
			// taken from r.ContentLength
		default:
			env["HTTP_"+header] = strings.Join(value, ", ")
		}
	}

	return env
}

func splitHostPort(hostport, port string) (string, string) {
	if hostport == "" {
		return "localhost", port
	}

	host, p, err := net.SplitHostPort(hostport)
	if err != nil {
		// no port in hostport
		return hostport, port
	}

	return host, p
}
