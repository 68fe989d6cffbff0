package features

import (
	"math"
	"testing"
	"time"

	"sentinel-agent/src/contracts"
)

func sampleAlert() contracts.RawAlert {
	return contracts.RawAlert{
		SourceIP:        "10.0.0.5",
		DestinationIP:   "192.168.1.1",
		SourcePort:      54321,
		DestinationPort: 22,
		Protocol:        "TCP",
		Message:         "ET SCAN Potential SSH Scan",
		RuleID:          2001219,
		Timestamp:       time.Now(),
	}
}

func TestExtractVectorSize(t *testing.T) {
	cases := map[string]contracts.RawAlert{
		"full alert":    sampleAlert(),
		"empty alert":   {},
		"malformed ips": {SourceIP: "not-an-ip", DestinationIP: "300.1.2"},
		"negative port": {SourcePort: -1, DestinationPort: 70000},
	}

	for name, alert := range cases {
		t.Run(name, func(t *testing.T) {
			v := Extract(alert)
			if len(v) != VectorSize {
				t.Errorf("len(Extract()) = %d, want %d", len(v), VectorSize)
			}
		})
	}
}

func TestExtractDeterministic(t *testing.T) {
	alert := sampleAlert()
	first := Extract(alert)
	second := Extract(alert)

	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("feature %d differs between runs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestIPFeatures(t *testing.T) {
	alert := contracts.RawAlert{SourceIP: "10.0.0.5", DestinationIP: "224.0.0.1"}
	v := Extract(alert)

	// 10.0.0.5 has octets {10, 0, 0, 5}: two distinct singletons and one
	// pair, entropy = 1.5 bits.
	if math.Abs(v[0]-1.5) > 1e-9 {
		t.Errorf("source entropy = %v, want 1.5", v[0])
	}
	if v[2] != 1 {
		t.Errorf("source private flag = %v, want 1", v[2])
	}
	if v[5] != 1 {
		t.Errorf("destination multicast flag = %v, want 1", v[5])
	}
}

func TestPortFeatures(t *testing.T) {
	alert := sampleAlert()
	v := Extract(alert)

	if v[6] != 54321 || v[7] != 22 {
		t.Errorf("raw ports = %v/%v, want 54321/22", v[6], v[7])
	}
	if v[8] != 0 {
		t.Errorf("source privileged flag = %v, want 0", v[8])
	}
	if v[9] != 1 {
		t.Errorf("destination privileged flag = %v, want 1", v[9])
	}
	// 54321 is unclassified (class 8), 22 is ssh (class 3).
	if v[10] != 8 || v[11] != 3 {
		t.Errorf("port classes = %v/%v, want 8/3", v[10], v[11])
	}
}

func TestPortlessAlertScoresPrivileged(t *testing.T) {
	// A portless alert (ICMP, port 0) satisfies the privileged threshold:
	// the flag is a plain port < 1024 comparison, not gated on presence.
	v := Extract(contracts.RawAlert{Protocol: "ICMP"})

	if v[8] != 1 {
		t.Errorf("source privileged flag = %v, want 1 for port 0", v[8])
	}
	if v[9] != 1 {
		t.Errorf("destination privileged flag = %v, want 1 for port 0", v[9])
	}
}

func TestProtocolOneHot(t *testing.T) {
	t.Run("known protocol, case-insensitive", func(t *testing.T) {
		v := Extract(contracts.RawAlert{Protocol: "udp"})
		if v[12] != 0 || v[13] != 1 || v[14] != 0 {
			t.Errorf("one-hot = %v, want UDP slot set", v[12:17])
		}
	})

	t.Run("unknown protocol degrades to all zeros", func(t *testing.T) {
		v := Extract(contracts.RawAlert{Protocol: "GRE"})
		for i := 12; i < 17; i++ {
			if v[i] != 0 {
				t.Errorf("one-hot slot %d = %v, want 0", i, v[i])
			}
		}
	})
}

func TestMessageFeatures(t *testing.T) {
	v := Extract(contracts.RawAlert{Message: "Possible attack: port scan!"})

	if v[17] != 27 {
		t.Errorf("message length = %v, want 27", v[17])
	}
	if v[18] != 4 {
		t.Errorf("word count = %v, want 4", v[18])
	}
	if v[19] != 2 {
		t.Errorf("special char count = %v, want 2", v[19])
	}
	if v[20] != 1 || v[21] != 1 || v[22] != 0 {
		t.Errorf("keyword flags = %v, want attack=1 scan=1 exploit=0", v[20:23])
	}
}

func TestRuleFeatures(t *testing.T) {
	v := Extract(contracts.RawAlert{RuleID: 2001219})

	if v[26] != 2001219 {
		t.Errorf("rule id feature = %v, want 2001219", v[26])
	}
	if v[27] != 1 {
		t.Errorf("high rule id flag = %v, want 1", v[27])
	}
}
