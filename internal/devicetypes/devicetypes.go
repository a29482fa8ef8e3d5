// Package devicetypes defines the vendor/OS families the fingerprint engine
// can recognize and the per-family capability table that drives identification:
// which commands to run, how to disable output paging, and which pattern
// recovers the hostname from configuration text. The compiled-in table can be
// overlaid from an external YAML file so new vendors are a data change, not a
// code change.
package devicetypes

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DeviceType identifies a vendor/OS family.
type DeviceType int

// Known device types. The zero value is Unknown.
const (
	Unknown DeviceType = iota
	CiscoIOS
	CiscoNXOS
	CiscoASA
	AristaEOS
	JuniperJunOS
	HPProCurve
	FortiOS
	PaloAltoOS
	Linux
	FreeBSD
	Windows
	GenericUnix
)

var typeNames = map[DeviceType]string{
	Unknown:      "Unknown",
	CiscoIOS:     "CiscoIOS",
	CiscoNXOS:    "CiscoNXOS",
	CiscoASA:     "CiscoASA",
	AristaEOS:    "AristaEOS",
	JuniperJunOS: "JuniperJunOS",
	HPProCurve:   "HPProCurve",
	FortiOS:      "FortiOS",
	PaloAltoOS:   "PaloAltoOS",
	Linux:        "Linux",
	FreeBSD:      "FreeBSD",
	Windows:      "Windows",
	GenericUnix:  "GenericUnix",
}

// String returns the canonical name for the device type.
func (t DeviceType) String() string {
	if name, ok := typeNames[t]; ok {
		return name
	}
	return "Unknown"
}

// MarshalJSON encodes the type as its canonical name.
func (t DeviceType) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON decodes a canonical name back into a DeviceType.
func (t *DeviceType) UnmarshalJSON(data []byte) error {
	name := string(data)
	if len(name) >= 2 && name[0] == '"' {
		name = name[1 : len(name)-1]
	}
	for dt, n := range typeNames {
		if n == name {
			*t = dt
			return nil
		}
	}
	*t = Unknown
	return nil
}

// Capability describes how to interrogate one device family.
type Capability struct {
	// IdentificationCommands are issued in order once the family is known.
	IdentificationCommands []string `yaml:"identificationCommands"`
	// DisablePaging stops the CLI from pausing long output. Empty means the
	// family needs no paging command.
	DisablePaging string `yaml:"disablePaging"`
	// HostnamePattern is a regular expression whose first capture group is
	// the configured hostname.
	HostnamePattern string `yaml:"hostnamePattern"`
}

// Table maps device types to their capabilities.
type Table struct {
	caps map[DeviceType]Capability
}

// Defaults returns the compiled-in capability table.
func Defaults() *Table {
	return &Table{caps: map[DeviceType]Capability{
		CiscoIOS: {
			IdentificationCommands: []string{"show version", "show inventory", "show running-config | include hostname"},
			DisablePaging:          "terminal length 0",
			HostnamePattern:        `hostname\s+([^\s\r\n]+)`,
		},
		CiscoNXOS: {
			IdentificationCommands: []string{"show version", "show inventory", "show hostname"},
			DisablePaging:          "terminal length 0",
			HostnamePattern:        `hostname\s+([^\s\r\n]+)`,
		},
		CiscoASA: {
			IdentificationCommands: []string{"show version", "show inventory", "show running-config | include hostname"},
			DisablePaging:          "terminal pager 0",
			HostnamePattern:        `hostname\s+([^\s\r\n]+)`,
		},
		AristaEOS: {
			IdentificationCommands: []string{"show version", "show inventory", "show hostname"},
			DisablePaging:          "terminal length 0",
			HostnamePattern:        `hostname\s+([^\s\r\n]+)`,
		},
		JuniperJunOS: {
			IdentificationCommands: []string{"show version", "show chassis hardware", "show configuration system host-name"},
			DisablePaging:          "set cli screen-length 0",
			HostnamePattern:        `host-name\s+([^\s\r\n;]+)`,
		},
		HPProCurve: {
			IdentificationCommands: []string{"show system-information", "show system", "show version"},
			DisablePaging:          "no page",
		},
		FortiOS: {
			IdentificationCommands: []string{"get system status", "get hardware status", "get system interface physical"},
			DisablePaging:          "config system console\nset output standard\nend",
		},
		PaloAltoOS: {
			IdentificationCommands: []string{"show system info", "show chassis inventory"},
			DisablePaging:          "set cli pager off",
		},
		Linux: {
			IdentificationCommands: []string{"uname -a", "cat /etc/os-release", "hostname"},
			DisablePaging:          "export TERM=xterm; stty rows 1000",
			HostnamePattern:        `Hostname:[^\n]*(\S+)[\r\n]`,
		},
		FreeBSD: {
			IdentificationCommands: []string{"uname -a", "hostname"},
			DisablePaging:          "export TERM=xterm; stty rows 1000",
		},
		Windows: {
			IdentificationCommands: []string{"systeminfo", "hostname"},
		},
		GenericUnix: {
			IdentificationCommands: []string{"uname -a", "hostname"},
			DisablePaging:          "export TERM=xterm; stty rows 1000",
			HostnamePattern:        `([A-Za-z0-9\-]+)[@][^:]+:`,
		},
	}}
}

// GenericIdentificationCommands are tried when the family is still unknown.
// They are harmless on most CLIs and usually enough to classify the device.
var GenericIdentificationCommands = []string{"show version", "show system info"}

// Lookup returns the capability for a device type. Unknown families get an
// empty capability (generic commands are selected by the caller).
func (t *Table) Lookup(dt DeviceType) Capability {
	return t.caps[dt]
}

// IdentificationCommands returns the ordered command list for a device type,
// falling back to the generic list for Unknown or unlisted families.
func (t *Table) IdentificationCommands(dt DeviceType) []string {
	if c, ok := t.caps[dt]; ok && len(c.IdentificationCommands) > 0 {
		return c.IdentificationCommands
	}
	return GenericIdentificationCommands
}

// DisablePagingCommand returns the paging-disable command for a device type,
// or an empty string when the family has none.
func (t *Table) DisablePagingCommand(dt DeviceType) string {
	return t.caps[dt].DisablePaging
}

// LoadOverrides overlays entries from a YAML file keyed by canonical type
// name. Entries replace the compiled-in capability for that family; families
// not named keep their defaults.
func (t *Table) LoadOverrides(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read device type table: %w", err)
	}

	var raw map[string]Capability
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to parse device type table: %w", err)
	}

	for name, c := range raw {
		dt := byName(name)
		if dt == Unknown {
			return fmt.Errorf("unknown device type %q in table", name)
		}
		t.caps[dt] = c
	}
	return nil
}

func byName(name string) DeviceType {
	for dt, n := range typeNames {
		if n == name {
			return dt
		}
	}
	return Unknown
}

// InterfaceFamilies lists the families whose output carries per-interface
// status lines worth parsing.
var InterfaceFamilies = map[DeviceType]bool{
	CiscoIOS:     true,
	CiscoNXOS:    true,
	CiscoASA:     true,
	AristaEOS:    true,
	JuniperJunOS: true,
}
