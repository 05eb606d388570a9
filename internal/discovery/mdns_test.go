// ABOUTME: Tests for mDNS discovery
// ABOUTME: Tests manager lifecycle and conversion of query answers
package discovery

import (
	"net"
	"testing"

	"github.com/hashicorp/mdns"
)

func TestNewManager(t *testing.T) {
	mgr := NewManager(Config{
		ServiceName: "Kitchen",
		Port:        8927,
	})
	if mgr == nil {
		t.Fatal("expected manager to be created")
	}

	mgr.Stop()
	select {
	case <-mgr.ctx.Done():
	default:
		t.Error("expected Stop to cancel the manager context")
	}
}

func TestTXTRecords(t *testing.T) {
	records := txtRecords()
	if len(records) != 1 || records[0] != "path=/control" {
		t.Errorf("unexpected TXT records %v", records)
	}
}

func TestEntryToPlayer(t *testing.T) {
	tests := []struct {
		name     string
		entry    *mdns.ServiceEntry
		wantHost string
		wantPath string
	}{
		{
			name: "ipv4 with path",
			entry: &mdns.ServiceEntry{
				Name:       "Kitchen._cadence._tcp.local.",
				AddrV4:     net.IPv4(192, 168, 1, 20),
				Port:       8927,
				InfoFields: []string{"path=/remote"},
			},
			wantHost: "192.168.1.20",
			wantPath: "/remote",
		},
		{
			name: "ipv6 default path",
			entry: &mdns.ServiceEntry{
				Name:   "Den._cadence._tcp.local.",
				AddrV6: net.ParseIP("fe80::1"),
				Port:   8927,
			},
			wantHost: "fe80::1",
			wantPath: "/control",
		},
		{
			name: "host fallback",
			entry: &mdns.ServiceEntry{
				Name: "Attic._cadence._tcp.local.",
				Host: "attic.local.",
				Port: 9000,
			},
			wantHost: "attic.local.",
			wantPath: "/control",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := entryToPlayer(tt.entry)
			if info.Host != tt.wantHost {
				t.Errorf("expected host %s, got %s", tt.wantHost, info.Host)
			}
			if info.Path != tt.wantPath {
				t.Errorf("expected path %s, got %s", tt.wantPath, info.Path)
			}
			if info.Port != tt.entry.Port {
				t.Errorf("expected port %d, got %d", tt.entry.Port, info.Port)
			}
		})
	}
}

func TestGetLocalIPsSkipsLoopback(t *testing.T) {
	ips, err := getLocalIPs()
	if err != nil {
		t.Fatalf("getLocalIPs failed: %v", err)
	}
	for _, ip := range ips {
		if ip.IsLoopback() {
			t.Errorf("unexpected loopback address %s", ip)
		}
		if ip.To4() == nil {
			t.Errorf("expected IPv4 only, got %s", ip)
		}
	}
}
