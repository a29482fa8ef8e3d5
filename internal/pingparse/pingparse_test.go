package pingparse

import "testing"

const ciscoPing = `router1#ping 10.1.1.2
Type escape sequence to abort.
Sending 5, 100-byte ICMP Echos to 10.1.1.2, timeout is 2 seconds:
!!!!!
Success rate is 100 percent (5/5), round-trip min/avg/max = 1/2/4 ms
router1#`

const ciscoPartialPing = `router1#ping 10.1.1.3
Sending 5, 100-byte ICMP Echos to 10.1.1.3, timeout is 2 seconds:
!!.!.
Success rate is 60 percent (3/5), round-trip min/avg/max = 1/1/2 ms
router1#`

const aristaPing = `PING 10.2.2.1 (10.2.2.1) 72(100) bytes of data.
80 bytes from 10.2.2.1: icmp_seq=1 ttl=64 time=0.162 ms
80 bytes from 10.2.2.1: icmp_seq=2 ttl=64 time=0.090 ms

--- 10.2.2.1 ping statistics ---
2 packets transmitted, 2 received, 0% packet loss, time 1ms
rtt min/avg/max/mdev = 0.090/0.126/0.162/0.036 ms`

const hpPing = `10.3.3.1 is alive, iteration 1, time = 5 ms
10.3.3.1 is alive, iteration 2, time = 4 ms`

const linuxPing = `PING 8.8.8.8 (8.8.8.8) 56(84) bytes of data.
64 bytes from 8.8.8.8: icmp_seq=1 ttl=117 time=12.1 ms
64 bytes from 8.8.8.8: icmp_seq=2 ttl=117 time=11.8 ms

--- 8.8.8.8 ping statistics ---
2 packets transmitted, 2 received, 0% packet loss, time 1001ms
rtt min/avg/max/mdev = 11.823/11.961/12.100/0.138 ms`

func TestParseCisco(t *testing.T) {
	result := Parse(ciscoPing, "", "cisco_ios")

	if !result.Success {
		t.Fatal("Expected success")
	}
	if result.PacketsSent != 5 || result.PacketsReceived != 5 {
		t.Errorf("Packets = %d/%d, want 5/5", result.PacketsReceived, result.PacketsSent)
	}
	if result.PacketLossPercent != 0 {
		t.Errorf("Loss = %v, want 0", result.PacketLossPercent)
	}
	if result.RTTMin != 1 || result.RTTAvg != 2 || result.RTTMax != 4 {
		t.Errorf("RTT = %v/%v/%v, want 1/2/4", result.RTTMin, result.RTTAvg, result.RTTMax)
	}
	if result.TargetHost != "10.1.1.2" {
		t.Errorf("TargetHost = %q, want 10.1.1.2", result.TargetHost)
	}
}

func TestParseCiscoPartialLoss(t *testing.T) {
	result := Parse(ciscoPartialPing, "10.1.1.3", "cisco_ios")

	if !result.Success {
		t.Fatal("Partial success is still success")
	}
	if result.PacketsSent != 5 || result.PacketsReceived != 3 {
		t.Errorf("Packets = %d/%d, want 3/5", result.PacketsReceived, result.PacketsSent)
	}
	if result.PacketLossPercent != 40 {
		t.Errorf("Loss = %v, want 40", result.PacketLossPercent)
	}
}

func TestParseArista(t *testing.T) {
	result := Parse(aristaPing, "", "arista_eos")

	if !result.Success || result.PacketsSent != 2 || result.PacketsReceived != 2 {
		t.Errorf("Packets = %d/%d, want 2/2", result.PacketsReceived, result.PacketsSent)
	}
	if result.RTTAvg != 0.126 {
		t.Errorf("RTTAvg = %v, want 0.126", result.RTTAvg)
	}
}

func TestParseHPAlive(t *testing.T) {
	result := Parse(hpPing, "10.3.3.1", "hp_aruba")

	if !result.Success {
		t.Fatal("Expected success via is-alive lines")
	}
	if result.PacketsReceived != 2 {
		t.Errorf("PacketsReceived = %d, want 2", result.PacketsReceived)
	}
}

func TestParseGeneric(t *testing.T) {
	result := Parse(linuxPing, "", "")

	if !result.Success || result.PacketsReceived != 2 {
		t.Errorf("Packets = %d, want 2", result.PacketsReceived)
	}
	if result.RTTMin != 11.823 {
		t.Errorf("RTTMin = %v, want 11.823", result.RTTMin)
	}
}

func TestParseEmptyOutput(t *testing.T) {
	result := Parse("", "", "cisco_ios")

	if result.Success {
		t.Error("Empty output must not be a success")
	}
	if result.PacketLossPercent != 100 {
		t.Errorf("Loss = %v, want 100", result.PacketLossPercent)
	}
	if result.TargetHost != "unknown" {
		t.Errorf("TargetHost = %q, want unknown", result.TargetHost)
	}
}

func TestParseUnreachable(t *testing.T) {
	output := `router1#ping 10.9.9.9
Sending 5, 100-byte ICMP Echos to 10.9.9.9, timeout is 2 seconds:
.....
Success rate is 0 percent (0/5)
router1#`

	result := Parse(output, "", "cisco_ios")
	if result.Success {
		t.Error("Zero received packets must not be a success")
	}
	if result.PacketLossPercent != 100 {
		t.Errorf("Loss = %v, want 100", result.PacketLossPercent)
	}
}
