package boundary

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
)

// Address locates one of the boundary's subjects: the broker URL a peer
// connects to and the subject on it.
type Address struct {
	URL     string `json:"url"`
	Subject string `json:"subject"`
}

func (a Address) String() string {
	return fmt.Sprintf("%s/%s", a.URL, a.Subject)
}

// Name resolution hooks, replaced in tests.
var (
	osHostname  = os.Hostname
	lookupCNAME = net.LookupCNAME
	lookupHost  = net.LookupHost
)

// RequestAddress is where peers send requests
func (b *Boundary) RequestAddress() Address {
	return Address{URL: b.conn.ServerURL(), Subject: b.requestSubject}
}

// AnnounceAddress is where the boundary broadcasts announcements
func (b *Boundary) AnnounceAddress() Address {
	return Address{URL: b.conn.ServerURL(), Subject: b.announceSubject}
}

// NotifyAddress accepts wakeups and the external stop signal
func (b *Boundary) NotifyAddress() Address {
	return Address{URL: b.conn.ServerURL(), Subject: b.notifySubject}
}

// KeepaliveAddress is where heartbeats go. A loopback broker host is
// replaced by this machine's name so remote peers can reach it.
func (b *Boundary) KeepaliveAddress() Address {
	return Address{URL: externalURL(b.conn.ServerURL()), Subject: b.keepaliveSubject}
}

func externalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	host := u.Hostname()
	if !isLocal(host) {
		return raw
	}

	resolved := resolveLocalHost()
	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(resolved, port)
	} else {
		u.Host = resolved
	}
	return u.String()
}

func isLocal(host string) bool {
	if host == "" || strings.EqualFold(host, "localhost") {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && (ip.IsLoopback() || ip.IsUnspecified())
}

// resolveLocalHost returns the fully qualified name of this machine when it
// resolves, else the address its hostname resolves to, else 127.0.0.1.
func resolveLocalHost() string {
	name, err := osHostname()
	if err != nil || name == "" {
		return "127.0.0.1"
	}

	fqdn := name
	if cname, err := lookupCNAME(name); err == nil && cname != "" {
		fqdn = strings.TrimSuffix(cname, ".")
	}
	if _, err := lookupHost(fqdn); err == nil {
		return fqdn
	}
	if addrs, err := lookupHost(name); err == nil && len(addrs) > 0 {
		return addrs[0]
	}
	return "127.0.0.1"
}
