// Package pingparse extracts metrics from ping command output captured over
// interactive sessions. Vendors format ping results differently, so parsing
// dispatches on a platform hint and falls back to generic patterns.
package pingparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/scottpeterman/sshwontdie/internal/models"
)

var (
	vrfPingCommand  = regexp.MustCompile(`ping\s+vrf\s+\S+\s+(\S+)`)
	stdPingCommand  = regexp.MustCompile(`ping\s+(\S+)`)
	pingHeader      = regexp.MustCompile(`PING\s+\S+\s+\((\S+)\)`)
	statsHeader     = regexp.MustCompile(`--- (\S+) ping statistics ---`)
	ciscoSuccess    = regexp.MustCompile(`Success rate is (\d+) percent \((\d+)/(\d+)\)`)
	ciscoSending    = regexp.MustCompile(`Sending (\d+),`)
	ciscoRTT        = regexp.MustCompile(`round-trip min/avg/max\s*=\s*([\d.]+)/([\d.]+)/([\d.]+)\s*ms`)
	unixStats       = regexp.MustCompile(`(\d+) packets transmitted, (\d+) received, (\d+)% packet loss`)
	unixRTT         = regexp.MustCompile(`rtt min/avg/max/mdev = ([\d.]+)/([\d.]+)/([\d.]+)/([\d.]+) ms`)
	hpStats         = regexp.MustCompile(`(\d+) packets transmitted, (\d+) packets received`)
	hpRTT           = regexp.MustCompile(`min\s*=\s*([\d.]+).*?avg\s*=\s*([\d.]+).*?max\s*=\s*([\d.]+)`)
	genericStats    = regexp.MustCompile(`(\d+) packets transmitted, (\d+) received`)
	genericRTT      = regexp.MustCompile(`min/avg/max(?:/mdev)?\s*=\s*([\d.]+)(?:ms)?\s*/\s*([\d.]+)(?:ms)?\s*/\s*([\d.]+)`)
	bytesFromMarker = regexp.MustCompile(`bytes from`)
)

// Parse extracts statistics from raw ping output. The platform hint selects
// the vendor's format ("cisco_ios", "arista_eos", "hp_aruba", ...); an empty
// or unrecognized hint uses generic patterns. Parse always returns a result;
// unparseable output yields Success=false with 100% loss.
func Parse(output, targetHost, platform string) models.PingResult {
	result := models.PingResult{
		TargetHost:        targetHost,
		PacketLossPercent: 100.0,
		Timestamp:         time.Now(),
	}

	if output == "" {
		if result.TargetHost == "" {
			result.TargetHost = "unknown"
		}
		return result
	}

	if result.TargetHost == "" || result.TargetHost == "unknown" {
		result.TargetHost = extractTargetHost(output)
	}

	hint := strings.ToLower(platform)
	switch {
	case strings.HasPrefix(hint, "cisco"):
		parseCisco(output, &result)
	case strings.HasPrefix(hint, "arista"):
		parseArista(output, &result)
	case strings.HasPrefix(hint, "hp"), strings.HasPrefix(hint, "aruba"):
		parseHP(output, &result)
	default:
		parseGeneric(output, &result)
	}

	return result
}

// extractTargetHost recovers the ping target from the echoed command or the
// output headers.
func extractTargetHost(output string) string {
	if m := vrfPingCommand.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	if m := stdPingCommand.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	if m := pingHeader.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	if m := statsHeader.FindStringSubmatch(output); m != nil {
		return m[1]
	}
	return "unknown"
}

func parseCisco(output string, result *models.PingResult) {
	if m := ciscoSuccess.FindStringSubmatch(output); m != nil {
		received := atoi(m[2])
		sent := atoi(m[3])
		result.PacketsSent = sent
		result.PacketsReceived = received
		result.Success = received > 0
		if sent > 0 {
			result.PacketLossPercent = float64(sent-received) / float64(sent) * 100
		}
	} else if marks := strings.Count(output, "!"); marks > 0 {
		// No stats line, count the echo markers directly.
		result.Success = true
		result.PacketsReceived = marks
		if m := ciscoSending.FindStringSubmatch(output); m != nil {
			result.PacketsSent = atoi(m[1])
			if result.PacketsSent > 0 {
				result.PacketLossPercent = float64(result.PacketsSent-result.PacketsReceived) /
					float64(result.PacketsSent) * 100
			}
		}
	}

	if m := ciscoRTT.FindStringSubmatch(output); m != nil {
		result.RTTMin = atof(m[1])
		result.RTTAvg = atof(m[2])
		result.RTTMax = atof(m[3])
	}
}

func parseArista(output string, result *models.PingResult) {
	if m := unixStats.FindStringSubmatch(output); m != nil {
		result.PacketsSent = atoi(m[1])
		result.PacketsReceived = atoi(m[2])
		result.PacketLossPercent = float64(atoi(m[3]))
		result.Success = result.PacketsReceived > 0
	}

	if m := unixRTT.FindStringSubmatch(output); m != nil {
		result.RTTMin = atof(m[1])
		result.RTTAvg = atof(m[2])
		result.RTTMax = atof(m[3])
	}
}

func parseHP(output string, result *models.PingResult) {
	if alive := strings.Count(output, "is alive"); alive > 0 {
		result.Success = true
		result.PacketsReceived = alive
	}

	if m := hpStats.FindStringSubmatch(output); m != nil {
		sent := atoi(m[1])
		received := atoi(m[2])
		result.PacketsSent = sent
		result.PacketsReceived = received
		result.Success = received > 0
		if sent > 0 {
			result.PacketLossPercent = float64(sent-received) / float64(sent) * 100
		}
	}

	if m := hpRTT.FindStringSubmatch(output); m != nil {
		result.RTTMin = atof(m[1])
		result.RTTAvg = atof(m[2])
		result.RTTMax = atof(m[3])
	}
}

func parseGeneric(output string, result *models.PingResult) {
	if m := genericStats.FindStringSubmatch(output); m != nil {
		sent := atoi(m[1])
		received := atoi(m[2])
		result.PacketsSent = sent
		result.PacketsReceived = received
		result.Success = received > 0
		if sent > 0 {
			result.PacketLossPercent = float64(sent-received) / float64(sent) * 100
		}
	}

	if m := genericRTT.FindStringSubmatch(output); m != nil {
		result.RTTMin = atof(m[1])
		result.RTTAvg = atof(m[2])
		result.RTTMax = atof(m[3])
	}

	if !result.Success {
		if marks := strings.Count(output, "!"); marks > 0 {
			result.Success = true
			result.PacketsReceived = marks
		}
		if hits := len(bytesFromMarker.FindAllStringIndex(output, -1)); hits > 0 {
			result.Success = true
			result.PacketsReceived = hits
		}
	}
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func atof(s string) float64 {
	f, _ := strconv.ParseFloat(s, 64)
	return f
}
