package util

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

func buildURL(scheme, host string, port int) string {
	u := &url.URL{Scheme: scheme, Host: fmt.Sprintf("%s:%d", host, port), Path: "/"}
	return u.String()
}

// DiscoverURLs returns a loopback URL followed by one URL per active LAN
// interface, best candidate first. Link-local 169.254 addresses are
// skipped; wireless interfaces outrank wired ones, which outrank
// virtual/bridge adapters, since the phone scanning the QR code is almost
// always on Wi-Fi.
func DiscoverURLs(bind string, port int, https bool) []string {
	scheme := "http"
	if https {
		scheme = "https"
	}

	if bind != "" && bind != "0.0.0.0" && bind != "::" {
		return []string{buildURL(scheme, bind, port), buildURL(scheme, "127.0.0.1", port)}
	}

	type candidate struct {
		url      string
		priority int
	}
	seen := map[string]struct{}{}
	cands := make([]candidate, 0, 8)

	ifaces, err := net.Interfaces()
	if err == nil {
		for _, iface := range ifaces {
			if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
				continue
			}
			addrs, err := iface.Addrs()
			if err != nil {
				continue
			}
			prio := interfacePriority(iface.Name)
			for _, a := range addrs {
				ip, _, err := net.ParseCIDR(a.String())
				if err != nil || ip == nil || ip.IsLoopback() || ip.IsLinkLocalUnicast() {
					continue
				}
				v4 := ip.To4()
				if v4 == nil {
					continue
				}
				u := buildURL(scheme, v4.String(), port)
				if _, ok := seen[u]; ok {
					continue
				}
				seen[u] = struct{}{}
				cands = append(cands, candidate{url: u, priority: prio})
			}
		}
	}

	urls := make([]string, 0, len(cands)+1)
	for want := 3; want >= 1; want-- {
		for _, c := range cands {
			if c.priority == want {
				urls = append(urls, c.url)
			}
		}
	}
	urls = append(urls, buildURL(scheme, "127.0.0.1", port))
	return urls
}

func interfacePriority(name string) int {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "virtual") || strings.Contains(n, "wsl") ||
		strings.Contains(n, "vethernet") || strings.Contains(n, "pseudo") ||
		strings.Contains(n, "docker") || strings.Contains(n, "br-"):
		return 1
	case strings.Contains(n, "wl") || strings.Contains(n, "wi-fi") || strings.Contains(n, "wireless"):
		return 3
	default:
		return 2
	}
}
