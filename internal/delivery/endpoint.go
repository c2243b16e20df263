package delivery

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// Endpoint is the collector address a push is sent to. It is derived from
// the configuration on every cycle.
type Endpoint struct {
	Host  string
	Port  uint16 // 0 leaves the port out of the URL
	Route string
	TLS   bool
}

func PushRoute(workerID string) string {
	return "/api/workers/" + url.PathEscape(workerID) + "/push"
}

// URL renders scheme://host[:port]/route.
func (e Endpoint) URL() string {
	scheme := "http://"
	if e.TLS {
		scheme = "https://"
	}

	route := strings.TrimSpace(e.Route)
	if !strings.HasPrefix(route, "/") {
		route = "/" + route
	}

	var b strings.Builder
	b.WriteString(scheme)
	host := strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(e.Host), "["), "]")
	switch {
	case e.Port != 0:
		b.WriteString(net.JoinHostPort(host, strconv.Itoa(int(e.Port))))
	case strings.Contains(host, ":"):
		// bare IPv6 literal
		b.WriteString("[" + host + "]")
	default:
		b.WriteString(host)
	}
	b.WriteString(route)
	return b.String()
}

func (e Endpoint) String() string { return e.URL() }
