package tui

import (
	"fmt"

	"sentinel-agent/src/contracts"
)

// Item wraps an enriched alert for display in the watch list.
type Item struct {
	Alert contracts.EnrichedAlert
}

// IsAnomaly reports whether the classifier flagged the alert.
func (i Item) IsAnomaly() bool { return i.Alert.Label == 1 }

// LabelText returns the human-readable classification.
func (i Item) LabelText() string {
	if i.IsAnomaly() {
		return "ANOMALY"
	}
	return "normal"
}

// SourceEndpoint formats the origin as host:port, or just the host when
// the sensor reported no port.
func (i Item) SourceEndpoint() string {
	return endpoint(i.Alert.SourceIP, i.Alert.SourcePort)
}

// DestinationEndpoint formats the target as host:port.
func (i Item) DestinationEndpoint() string {
	return endpoint(i.Alert.DestinationIP, i.Alert.DestinationPort)
}

func endpoint(ip string, port int) string {
	if ip == "" {
		ip = "-"
	}
	if port == 0 {
		return ip
	}
	return fmt.Sprintf("%s:%d", ip, port)
}
