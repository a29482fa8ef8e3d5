// Package fingerprint implements device identification over an interactive
// session: the vendor/OS signature cascade, the per-family field extractors,
// and the orchestrator service that sequences connect, prompt discovery,
// identification commands, and extraction into a device record.
package fingerprint

import (
	"regexp"
	"strings"

	"github.com/scottpeterman/sshwontdie/internal/devicetypes"
)

var (
	ciscoModelPattern = regexp.MustCompile(`\bws-c\d{4}\b|\bc\d{4}\b`)
	nexusModelPattern = regexp.MustCompile(`\bn\d{4}\b`)
)

// signatureRule is one entry of the classification cascade.
type signatureRule struct {
	deviceType devicetypes.DeviceType
	matches    func(lower string) bool
}

func containsAny(s string, terms ...string) bool {
	for _, term := range terms {
		if strings.Contains(s, term) {
			return true
		}
	}
	return false
}

// signatureCascade is an ordered list of independent signature tests; the
// first match wins. Order matters because signatures overlap: the Arista
// rule must exclude text that also mentions Cisco, the Nexus rule must fire
// before the generic Cisco model rule, and explicit vendor mentions beat the
// model-number heuristics at the tail.
var signatureCascade = []signatureRule{
	{devicetypes.CiscoIOS, func(s string) bool {
		return containsAny(s, "cisco ios", "cisco internetwork operating system", "ios-xe")
	}},
	{devicetypes.CiscoNXOS, func(s string) bool {
		return containsAny(s, "nx-os", "nexus")
	}},
	{devicetypes.CiscoASA, func(s string) bool {
		return containsAny(s, "adaptive security appliance", "asa")
	}},
	{devicetypes.AristaEOS, func(s string) bool {
		return strings.Contains(s, "arista") ||
			(strings.Contains(s, "eos") && !strings.Contains(s, "cisco"))
	}},
	{devicetypes.JuniperJunOS, func(s string) bool {
		return containsAny(s, "junos", "juniper")
	}},
	{devicetypes.HPProCurve, func(s string) bool {
		return containsAny(s, "hp", "hewlett-packard") && strings.Contains(s, "procurve")
	}},
	// Aruba switches share the ProCurve command set.
	{devicetypes.HPProCurve, func(s string) bool {
		return strings.Contains(s, "aruba")
	}},
	{devicetypes.FortiOS, func(s string) bool {
		return containsAny(s, "fortigate", "fortios")
	}},
	{devicetypes.PaloAltoOS, func(s string) bool {
		return containsAny(s, "pan-os", "palo alto")
	}},
	{devicetypes.Linux, func(s string) bool {
		return containsAny(s, "linux", "ubuntu", "centos", "debian", "redhat", "fedora")
	}},
	{devicetypes.FreeBSD, func(s string) bool {
		return strings.Contains(s, "freebsd")
	}},
	{devicetypes.Windows, func(s string) bool {
		return containsAny(s, "windows", "microsoft")
	}},
	// Model numbers that imply a vendor even without an explicit OS mention.
	{devicetypes.CiscoIOS, func(s string) bool {
		return ciscoModelPattern.MatchString(s)
	}},
	{devicetypes.CiscoNXOS, func(s string) bool {
		return nexusModelPattern.MatchString(s)
	}},
}

// Classify matches output text against the signature cascade and returns the
// first matching device family, or Unknown when nothing matches. Matching is
// case-insensitive; no scoring or multi-match resolution is attempted.
func Classify(output string) devicetypes.DeviceType {
	lower := strings.ToLower(output)
	for _, rule := range signatureCascade {
		if rule.matches(lower) {
			return rule.deviceType
		}
	}
	return devicetypes.Unknown
}
