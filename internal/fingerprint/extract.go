package fingerprint

import (
	"regexp"
	"strings"

	"github.com/scottpeterman/sshwontdie/internal/devicetypes"
	"github.com/scottpeterman/sshwontdie/internal/models"
)

const (
	// defaultIPContextWindow is how many characters either side of an IP
	// token are searched for a context term. Empirical; configurable.
	defaultIPContextWindow = 50
	// defaultMaxIPAddresses caps how many addresses are attached to a
	// record. Empirical; configurable.
	defaultMaxIPAddresses = 5
)

// ipContextTerms qualify an address as likely a management or interface IP
// rather than an unrelated number in command output.
var ipContextTerms = []string{"ip address", "management", "vlan", "interface"}

var (
	ipPattern            = regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?:/\d{1,2})?\b`)
	serialNumberPattern  = regexp.MustCompile(`(?i)serial\s*number\s*:?\s*([A-Za-z0-9\-]+)`)
	promptHostnameFormat = regexp.MustCompile(`^([A-Za-z0-9\-._]+)(?:[>#]|$)`)
	interfaceStatusLine  = regexp.MustCompile(`([A-Za-z0-9/\-.]+)\s+is\s+(up|down|administratively down)`)
)

// fieldRuleSet holds the per-family extraction patterns. Version patterns
// are ordered; the first match wins. A nil pattern means the family does not
// expose that field.
type fieldRuleSet struct {
	version     []*regexp.Regexp
	model       *regexp.Regexp
	modelPrefix string
	uptime      *regexp.Regexp
	cpu         *regexp.Regexp
}

var fieldRules = map[devicetypes.DeviceType]fieldRuleSet{
	devicetypes.CiscoIOS: {
		version: []*regexp.Regexp{regexp.MustCompile(`(?i)(?:IOS|Software).+?Version\s+([^,\s\r\n]+)`)},
		model:   regexp.MustCompile(`(?s)[Cc]isco\s+([A-Za-z0-9\-]+)(?:\s+[^\n]*?)(?:processor|chassis|router|switch)`),
		uptime:  regexp.MustCompile(`(?i)uptime is\s+([^\r\n]+)`),
	},
	devicetypes.CiscoNXOS: {
		version:     []*regexp.Regexp{regexp.MustCompile(`(?i)NXOS:\s+version\s+([^,\s\r\n]+)`)},
		model:       regexp.MustCompile(`(?i)cisco\s+Nexus\s+([^\s]+)`),
		modelPrefix: "Nexus ",
		uptime:      regexp.MustCompile(`(?i)uptime is\s+([^\r\n]+)`),
	},
	devicetypes.CiscoASA: {
		version: []*regexp.Regexp{regexp.MustCompile(`(?i)Adaptive Security Appliance.*?Version\s+([^,\s\r\n]+)`)},
		model:   regexp.MustCompile(`(?i)Hardware:\s+([^,\r\n]+)`),
		uptime:  regexp.MustCompile(`(?i)up\s+([^\r\n]+?)\s*$`),
	},
	devicetypes.AristaEOS: {
		version: []*regexp.Regexp{regexp.MustCompile(`(?i)EOS\s+version\s+([^,\s\r\n]+)`)},
		model:   regexp.MustCompile(`(?i)Arista\s+([A-Za-z0-9\-]+)`),
		uptime:  regexp.MustCompile(`(?i)uptime is\s+([^\r\n]+)`),
	},
	devicetypes.JuniperJunOS: {
		version: []*regexp.Regexp{regexp.MustCompile(`(?i)JUNOS\s+([^,\s\r\n\]]+)`)},
		model:   regexp.MustCompile(`(?i)Model:\s*([^\r\n]+)`),
	},
	devicetypes.HPProCurve: {
		version: []*regexp.Regexp{regexp.MustCompile(`(?i)Software\s+revision\s*:?\s*([^\r\n]+)`)},
		model:   regexp.MustCompile(`[Ss]witch\s+([A-Za-z0-9\-]+)`),
	},
	devicetypes.FortiOS: {
		version:     []*regexp.Regexp{regexp.MustCompile(`(?i)Version:\s*([^\r\n]+)`)},
		model:       regexp.MustCompile(`(?i)FortiGate-([A-Za-z0-9\-]+)`),
		modelPrefix: "FortiGate-",
		uptime:      regexp.MustCompile(`(?i)Uptime:\s*([^\r\n]+)`),
	},
	devicetypes.PaloAltoOS: {
		version: []*regexp.Regexp{regexp.MustCompile(`(?i)sw-version:\s*([^\r\n]+)`)},
		model:   regexp.MustCompile(`(?i)model:\s*([^\r\n]+)`),
		uptime:  regexp.MustCompile(`(?i)uptime:\s*([^\r\n]+)`),
	},
	devicetypes.Linux: {
		version: []*regexp.Regexp{
			regexp.MustCompile(`(?i)PRETTY_NAME="([^"]+)"`),
			regexp.MustCompile(`Linux\s+\S+\s+([^\s]+)`),
		},
		cpu: regexp.MustCompile(`(?i)model name\s*:\s*([^\r\n]+)`),
	},
	devicetypes.FreeBSD: {
		version: []*regexp.Regexp{regexp.MustCompile(`FreeBSD\s+\S+\s+([^\s]+)`)},
	},
	devicetypes.Windows: {
		version: []*regexp.Regexp{regexp.MustCompile(`(?i)OS Name:\s*([^\r\n]+)`)},
		model:   regexp.MustCompile(`(?i)System Model:\s*([^\r\n]+)`),
		uptime:  regexp.MustCompile(`(?i)System Boot Time:\s*([^\r\n]+)`),
	},
}

// Extractor populates a device record from accumulated session output using
// the capability table and the per-family field rules. All extraction is
// best-effort: a pattern that does not match leaves its field unset.
type Extractor struct {
	table           *devicetypes.Table
	ipContextWindow int
	maxIPAddresses  int
}

// NewExtractor builds an extractor over the given capability table. Zero
// values for the window and cap select the defaults.
func NewExtractor(table *devicetypes.Table, ipContextWindow, maxIPAddresses int) *Extractor {
	if ipContextWindow <= 0 {
		ipContextWindow = defaultIPContextWindow
	}
	if maxIPAddresses <= 0 {
		maxIPAddresses = defaultMaxIPAddresses
	}
	return &Extractor{table: table, ipContextWindow: ipContextWindow, maxIPAddresses: maxIPAddresses}
}

// Extract runs every extractor over the full accumulated output and fills in
// whatever matches. Facts may appear across multiple command outputs, so the
// input should be the whole session transcript, not one command's slice.
func (e *Extractor) Extract(rec *models.DeviceRecord, output string) {
	e.extractHostname(rec, output)
	e.extractSerialNumber(rec, output)
	e.extractFields(rec, output)
	e.extractIPAddresses(rec, output)
	e.extractInterfaces(rec, output)
}

// extractHostname tries the family's hostname pattern, then falls back to
// the leading token of the discovered prompt.
func (e *Extractor) extractHostname(rec *models.DeviceRecord, output string) {
	if pattern := e.table.Lookup(rec.DeviceType).HostnamePattern; pattern != "" {
		re, err := regexp.Compile(`(?i)` + pattern)
		if err == nil {
			if m := re.FindStringSubmatch(output); m != nil && m[1] != "" {
				rec.Hostname = m[1]
				return
			}
		}
	}

	if rec.Hostname == "" && rec.DetectedPrompt != "" {
		if m := promptHostnameFormat.FindStringSubmatch(rec.DetectedPrompt); m != nil && m[1] != "" {
			rec.Hostname = m[1]
		}
	}
}

// extractSerialNumber applies the one cross-vendor serial pattern regardless
// of family.
func (e *Extractor) extractSerialNumber(rec *models.DeviceRecord, output string) {
	if m := serialNumberPattern.FindStringSubmatch(output); m != nil && m[1] != "" {
		rec.SerialNumber = strings.TrimSpace(m[1])
	}
}

// extractFields applies the family's version/model/uptime/CPU patterns.
func (e *Extractor) extractFields(rec *models.DeviceRecord, output string) {
	rules, ok := fieldRules[rec.DeviceType]
	if !ok {
		return
	}

	for _, re := range rules.version {
		if m := re.FindStringSubmatch(output); m != nil && m[1] != "" {
			rec.Version = strings.TrimSpace(m[1])
			break
		}
	}
	if rules.model != nil {
		if m := rules.model.FindStringSubmatch(output); m != nil && m[1] != "" {
			rec.Model = rules.modelPrefix + strings.TrimSpace(m[1])
		}
	}
	if rules.uptime != nil && rec.Uptime == "" {
		if m := rules.uptime.FindStringSubmatch(output); m != nil && m[1] != "" {
			rec.Uptime = strings.TrimSpace(m[1])
		}
	}
	if rules.cpu != nil {
		if m := rules.cpu.FindStringSubmatch(output); m != nil && m[1] != "" {
			rec.CPUInfo = strings.TrimSpace(m[1])
		}
	}
}

// extractIPAddresses scans for dotted-quad tokens (optionally CIDR-suffixed)
// and keeps one only when a fixed-size character window around it mentions a
// context term. This suppresses false positives from unrelated numeric
// output. Results are deduplicated and capped.
func (e *Extractor) extractIPAddresses(rec *models.DeviceRecord, output string) {
	lower := strings.ToLower(output)
	seen := make(map[string]bool, len(rec.IPAddresses))
	for _, ip := range rec.IPAddresses {
		seen[ip] = true
	}

	for _, loc := range ipPattern.FindAllStringIndex(output, -1) {
		if len(rec.IPAddresses) >= e.maxIPAddresses {
			break
		}
		ip := output[loc[0]:loc[1]]

		if strings.HasPrefix(ip, "0.") || strings.HasPrefix(ip, "255.") {
			continue
		}
		if seen[ip] {
			continue
		}

		start := loc[0] - e.ipContextWindow
		if start < 0 {
			start = 0
		}
		end := loc[1] + e.ipContextWindow
		if end > len(lower) {
			end = len(lower)
		}
		context := lower[start:end]

		for _, term := range ipContextTerms {
			if strings.Contains(context, term) {
				rec.IPAddresses = append(rec.IPAddresses, ip)
				seen[ip] = true
				break
			}
		}
	}
}

// extractInterfaces matches "<name> is <status>" lines for families that
// print them, then looks forward in the text for a nearby IP token to attach
// to the interface's status.
func (e *Extractor) extractInterfaces(rec *models.DeviceRecord, output string) {
	if !devicetypes.InterfaceFamilies[rec.DeviceType] {
		return
	}

	for _, m := range interfaceStatusLine.FindAllStringSubmatch(output, -1) {
		name, status := m[1], m[2]
		info := "Status: " + status

		ifaceIP := regexp.MustCompile(`(?s)` + regexp.QuoteMeta(name) + `.*?(` + ipPattern.String() + `)`)
		if ipm := ifaceIP.FindStringSubmatch(output); ipm != nil {
			info += ", IP: " + ipm[1]
		}

		rec.Interfaces[name] = info
	}
}
