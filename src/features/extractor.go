// Package features maps a raw alert to the fixed-length numeric vector the
// scoring capability expects.
//
// Extraction is pure and total: it never fails, and the same alert always
// yields the same vector. A missing or malformed field contributes its
// documented default (zero entropy for an unparseable IP, an all-zero
// one-hot row for an unknown protocol) rather than an error.
package features

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"sentinel-agent/src/contracts"
)

// VectorSize is the length of every extracted vector. The scoring
// capability's input layer is sized to match, so it only changes together
// with a model revision.
const VectorSize = 28

// oneHotProtocols is the fixed one-hot encoding order for the protocol
// sub-extractor. Order is part of the extractor contract.
var oneHotProtocols = []string{"TCP", "UDP", "ICMP", "HTTP", "HTTPS"}

// portClasses maps well-known service ports to a class index, in a fixed
// order. A port outside every class gets index len(portClasses).
var portClasses = [][]int{
	{80, 443, 8080, 8443}, // web
	{25, 110, 143, 993, 995}, // email
	{20, 21},   // ftp
	{22},       // ssh
	{53},       // dns
	{67, 68},   // dhcp
	{23},       // telnet
	{161, 162}, // snmp
}

// highRuleIDThreshold separates local/custom sensor rules from the
// registered rule range.
const highRuleIDThreshold = 1000000

// Extract maps an alert to its feature vector. The vector concatenates, in
// order: IP characteristics (6), port characteristics (6), protocol one-hot
// (5), message lexical features (6), temporal placeholders (3), and rule-id
// features (2).
func Extract(alert contracts.RawAlert) []float64 {
	v := make([]float64, 0, VectorSize)
	v = append(v, ipFeatures(alert)...)
	v = append(v, portFeatures(alert)...)
	v = append(v, protocolFeatures(alert)...)
	v = append(v, messageFeatures(alert)...)
	v = append(v, temporalFeatures(alert)...)
	v = append(v, ruleFeatures(alert)...)
	return v
}

func ipFeatures(alert contracts.RawAlert) []float64 {
	return []float64{
		ipEntropy(alert.SourceIP),
		ipEntropy(alert.DestinationIP),
		boolFeature(isPrivateIP(alert.SourceIP)),
		boolFeature(isPrivateIP(alert.DestinationIP)),
		boolFeature(isMulticastIP(alert.SourceIP)),
		boolFeature(isMulticastIP(alert.DestinationIP)),
	}
}

func portFeatures(alert contracts.RawAlert) []float64 {
	// The privileged flag is a plain threshold: a portless alert (port 0,
	// e.g. ICMP) scores 1.0. The scoring model is trained on vectors with
	// exactly this encoding.
	return []float64{
		float64(alert.SourcePort),
		float64(alert.DestinationPort),
		boolFeature(alert.SourcePort < 1024),
		boolFeature(alert.DestinationPort < 1024),
		float64(portClass(alert.SourcePort)),
		float64(portClass(alert.DestinationPort)),
	}
}

func protocolFeatures(alert contracts.RawAlert) []float64 {
	protocol := strings.ToUpper(alert.Protocol)
	v := make([]float64, len(oneHotProtocols))
	for i, p := range oneHotProtocols {
		v[i] = boolFeature(protocol == p)
	}
	return v
}

func messageFeatures(alert contracts.RawAlert) []float64 {
	message := alert.Message
	lower := strings.ToLower(message)
	return []float64{
		float64(len(message)),
		float64(len(strings.Fields(message))),
		float64(countSpecialChars(message)),
		boolFeature(strings.Contains(lower, "attack")),
		boolFeature(strings.Contains(lower, "scan")),
		boolFeature(strings.Contains(lower, "exploit")),
	}
}

// temporalFeatures are placeholders kept at zero so the vector layout stays
// stable until time-of-day and inter-arrival features ship with the next
// model revision.
func temporalFeatures(contracts.RawAlert) []float64 {
	return []float64{0, 0, 0}
}

func ruleFeatures(alert contracts.RawAlert) []float64 {
	return []float64{
		float64(alert.RuleID),
		boolFeature(alert.RuleID > highRuleIDThreshold),
	}
}

// ipEntropy computes the Shannon entropy of the octet distribution of a
// dotted-quad address. Anything that is not four octets yields 0.
func ipEntropy(ip string) float64 {
	octets := strings.Split(ip, ".")
	if len(octets) != 4 {
		return 0
	}

	counts := make(map[string]int, 4)
	for _, o := range octets {
		counts[o]++
	}

	entropy := 0.0
	for _, count := range counts {
		p := float64(count) / 4
		entropy -= p * math.Log2(p)
	}
	return entropy
}

func isPrivateIP(ip string) bool {
	octets, ok := parseOctets(ip)
	if !ok {
		return false
	}
	switch {
	case octets[0] == 10:
		return true
	case octets[0] == 172 && octets[1] >= 16 && octets[1] <= 31:
		return true
	case octets[0] == 192 && octets[1] == 168:
		return true
	}
	return false
}

func isMulticastIP(ip string) bool {
	octets, ok := parseOctets(ip)
	if !ok {
		return false
	}
	return octets[0] >= 224 && octets[0] <= 239
}

func parseOctets(ip string) ([4]int, bool) {
	var octets [4]int
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return octets, false
	}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return octets, false
		}
		octets[i] = n
	}
	return octets, true
}

func portClass(port int) int {
	for class, ports := range portClasses {
		for _, p := range ports {
			if port == p {
				return class
			}
		}
	}
	return len(portClasses)
}

func countSpecialChars(text string) int {
	count := 0
	for _, r := range text {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			count++
		}
	}
	return count
}

func boolFeature(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
