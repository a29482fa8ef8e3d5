package fingerprint

import (
	"testing"

	"github.com/scottpeterman/sshwontdie/internal/devicetypes"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		name   string
		output string
		want   devicetypes.DeviceType
	}{
		{
			"cisco ios",
			"Cisco IOS Software, C2960 Software (C2960-LANBASEK9-M), Version 15.0(2)SE",
			devicetypes.CiscoIOS,
		},
		{
			"cisco internetwork os",
			"Cisco Internetwork Operating System Software",
			devicetypes.CiscoIOS,
		},
		{
			"ios-xe",
			"Cisco IOS-XE software, Copyright (c) 2005-2019",
			devicetypes.CiscoIOS,
		},
		{
			"nexus",
			"Cisco Nexus Operating System (NX-OS) Software",
			devicetypes.CiscoNXOS,
		},
		{
			"asa",
			"Cisco Adaptive Security Appliance Software Version 9.8(2)",
			devicetypes.CiscoASA,
		},
		{
			"arista",
			"Arista DCS-7050QX-32S\nSoftware image version: 4.20.1F",
			devicetypes.AristaEOS,
		},
		{
			"eos without cisco",
			"Software image version EOS-4.21",
			devicetypes.AristaEOS,
		},
		{
			"juniper",
			"Hostname: srx1\nModel: srx300\nJUNOS Software Release [15.1X49-D100]",
			devicetypes.JuniperJunOS,
		},
		{
			"procurve",
			"HP J9727A 2920-24G Switch, ProCurve revision WB.16.02",
			devicetypes.HPProCurve,
		},
		{
			"aruba",
			"Aruba JL255A 2930F-24G-PoE+-4SFP+ Switch",
			devicetypes.HPProCurve,
		},
		{
			"fortigate",
			"FortiGate-60E v6.0.4,build0231,190107 (GA)",
			devicetypes.FortiOS,
		},
		{
			"palo alto",
			"sw-version: 8.1.3\nmodel: PA-220\nPAN-OS",
			devicetypes.PaloAltoOS,
		},
		{
			"linux",
			"Linux server1 4.15.0-45-generic #48-Ubuntu SMP x86_64 GNU/Linux",
			devicetypes.Linux,
		},
		{
			"freebsd",
			"FreeBSD host1 12.0-RELEASE r341666 GENERIC amd64",
			devicetypes.FreeBSD,
		},
		{
			"windows",
			"Microsoft Windows [Version 10.0.17763.292]",
			devicetypes.Windows,
		},
		{
			"cisco model number only",
			"Hardware: WS-C3750 inventory listing",
			devicetypes.CiscoIOS,
		},
		{
			"nexus model number only",
			"Chassis n5548 inventory",
			devicetypes.CiscoNXOS,
		},
		{
			"unknown",
			"some completely unrelated command output",
			devicetypes.Unknown,
		},
		{
			"empty",
			"",
			devicetypes.Unknown,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Classify(tc.output); got != tc.want {
				t.Errorf("Classify(%q) = %v, want %v", tc.output, got, tc.want)
			}
		})
	}
}

// Ordering properties of the cascade: overlapping signatures must resolve
// by position, not by chance.
func TestClassifyOrdering(t *testing.T) {
	// Mentions both Cisco and EOS: the Arista rule excludes cisco, so the
	// Cisco IOS rule wins.
	out := "Cisco IOS Software mentioning eos somewhere"
	if got := Classify(out); got != devicetypes.CiscoIOS {
		t.Errorf("Cisco+eos text classified as %v, want CiscoIOS", got)
	}

	// NX-OS mentions beat the ASA substring check on position.
	out = "Cisco Nexus NX-OS with asa in the text"
	if got := Classify(out); got != devicetypes.CiscoNXOS {
		t.Errorf("Nexus text classified as %v, want CiscoNXOS", got)
	}

	// An explicit Linux mention beats the trailing model heuristics.
	out = "Linux box with a c2960 connected via serial"
	if got := Classify(out); got != devicetypes.Linux {
		t.Errorf("Linux text classified as %v, want Linux", got)
	}
}
