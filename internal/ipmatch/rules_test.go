package ipmatch

import (
	"net"
	"net/http"
	"testing"
)

func TestParseRules(t *testing.T) {
	tests := []struct {
		name    string
		rules   []string
		wantErr bool
		wantLen int
	}{
		{"empty", nil, false, 0},
		{"bare ipv4", []string{"10.0.0.1"}, false, 1},
		{"cidr", []string{"10.0.0.0/8", "192.168.0.0/16"}, false, 2},
		{"blank entries skipped", []string{"", "  ", "10.0.0.1"}, false, 1},
		{"malformed", []string{"not-an-ip"}, true, 0},
		{"malformed cidr", []string{"10.0.0.0/99"}, true, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := ParseRules(tt.rules)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if set.Len() != tt.wantLen {
				t.Errorf("Len() = %d, want %d", set.Len(), tt.wantLen)
			}
		})
	}
}

func TestRuleSetAllows(t *testing.T) {
	set, err := ParseRules([]string{"10.0.0.0/8", "203.0.113.5"})
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}

	tests := []struct {
		ip   string
		want bool
	}{
		{"10.1.2.3", true},
		{"203.0.113.5", true},
		{"203.0.113.6", false},
		{"8.8.8.8", false},
	}

	for _, tt := range tests {
		t.Run(tt.ip, func(t *testing.T) {
			if got := set.Allows(net.ParseIP(tt.ip)); got != tt.want {
				t.Errorf("Allows(%s) = %v, want %v", tt.ip, got, tt.want)
			}
		})
	}
}

func TestRuleSetAllowsNilSet(t *testing.T) {
	var set *RuleSet
	if set.Allows(net.ParseIP("1.2.3.4")) {
		t.Error("nil set should allow nothing")
	}
}

func TestClientIP(t *testing.T) {
	trusted, err := ParseRules([]string{"10.0.0.0/8"})
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}

	t.Run("untrusted peer ignores forwarded headers", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "1.2.3.4")
		got := ClientIP(r, net.ParseIP("203.0.113.1"), trusted)
		if !got.Equal(net.ParseIP("203.0.113.1")) {
			t.Errorf("got %s, want peer IP unchanged", got)
		}
	})

	t.Run("trusted peer consults X-Forwarded-For", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.5")
		got := ClientIP(r, net.ParseIP("10.0.0.1"), trusted)
		if !got.Equal(net.ParseIP("198.51.100.9")) {
			t.Errorf("got %s, want 198.51.100.9", got)
		}
	})

	t.Run("trusted peer skips trusted hops in chain", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("X-Forwarded-For", "198.51.100.9, 10.0.0.5, 10.0.0.6")
		got := ClientIP(r, net.ParseIP("10.0.0.1"), trusted)
		if !got.Equal(net.ParseIP("198.51.100.9")) {
			t.Errorf("got %s, want 198.51.100.9", got)
		}
	})

	t.Run("Forwarded header for= param", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Forwarded", `for=198.51.100.9;proto=https`)
		got := ClientIP(r, net.ParseIP("10.0.0.1"), trusted)
		if !got.Equal(net.ParseIP("198.51.100.9")) {
			t.Errorf("got %s, want 198.51.100.9", got)
		}
	})

	t.Run("no forwarded headers falls back to peer", func(t *testing.T) {
		r, _ := http.NewRequest(http.MethodGet, "/", nil)
		got := ClientIP(r, net.ParseIP("10.0.0.1"), trusted)
		if !got.Equal(net.ParseIP("10.0.0.1")) {
			t.Errorf("got %s, want 10.0.0.1", got)
		}
	})
}
