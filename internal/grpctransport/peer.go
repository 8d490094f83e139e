package grpctransport

import (
	"net"
	"strconv"
	"strings"
)

// formatPeer renders addr as the URI-like peer string handlers see:
// "ipv4:1.2.3.4:port", "ipv6:[::1]:port", or "unix:/path".
func formatPeer(addr net.Addr) string {
	switch a := addr.(type) {
	case *net.TCPAddr:
		if ip4 := a.IP.To4(); ip4 != nil {
			return "ipv4:" + ip4.String() + ":" + strconv.Itoa(a.Port)
		}
		return "ipv6:[" + a.IP.String() + "]:" + strconv.Itoa(a.Port)
	case *net.UnixAddr:
		return "unix:" + a.Name
	default:
		host, port, err := net.SplitHostPort(addr.String())
		if err != nil {
			return "unix:" + addr.String()
		}
		if ip := net.ParseIP(host); ip != nil && ip.To4() == nil {
			return "ipv6:[" + host + "]:" + port
		}
		return "ipv4:" + host + ":" + port
	}
}

// UnescapePeer decodes only %5B ("[") and %5D ("]") in a peer string.
// Some upstream hops deliver peer strings with IPv6 brackets
// percent-escaped; this intentionally does not handle any other
// percent-escape, matching the documented, narrow decoding rule rather
// than a general URL-unescape.
func UnescapePeer(s string) string {
	s = strings.ReplaceAll(s, "%5B", "[")
	s = strings.ReplaceAll(s, "%5b", "[")
	s = strings.ReplaceAll(s, "%5D", "]")
	s = strings.ReplaceAll(s, "%5d", "]")
	return s
}

// IsLocalPeer reports whether peer (already in the "scheme:..." format
// formatPeer produces) refers to the local loopback interface or a unix
// domain socket — the predicate the illustrative Shutdown service uses to
// refuse remote shutdown requests.
func IsLocalPeer(peer string) bool {
	peer = UnescapePeer(peer)
	for _, prefix := range []string{"ipv4:127.0.0.1:", "ipv6:[::1]:", "ipv6:[::ffff:127.0.0.1]:", "unix:"} {
		if strings.HasPrefix(peer, prefix) {
			return true
		}
	}
	return false
}
