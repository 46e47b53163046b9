package hwinfo

import (
	"os"
	"path/filepath"
	"testing"
)

const piCPUInfo = `processor	: 0
BogoMIPS	: 108.00
Features	: fp asimd evtstrm crc32 cpuid
CPU implementer	: 0x41

Hardware	: BCM2835
Revision	: c03114
Serial		: 10000000abcdef01
Model		: Raspberry Pi 4 Model B Rev 1.4
`

func writeFile(t *testing.T, root, rel string, data string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll() error = %v", err)
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
}

func TestProbeFiles(t *testing.T) {
	tests := []struct {
		name  string
		files map[string]string
		iface string
		want  Info
	}{
		{
			name: "raspberry pi",
			files: map[string]string{
				"proc/cpuinfo":               piCPUInfo,
				"sys/class/net/eth0/address": "dc:a6:32:01:02:03\n",
			},
			want: Info{
				Model:      "Raspberry Pi 4 Model B Rev 1.4",
				Revision:   "c03114",
				MACAddress: "dc:a6:32:01:02:03",
			},
		},
		{
			name: "device tree model fallback",
			files: map[string]string{
				"proc/cpuinfo":                "processor\t: 0\nRevision\t: a02082\n",
				"proc/device-tree/model":      "Raspberry Pi 3 Model B Rev 1.2\x00",
				"sys/class/net/wlan0/address": "b8:27:eb:00:00:01\n",
			},
			iface: "wlan0",
			want: Info{
				Model:      "Raspberry Pi 3 Model B Rev 1.2",
				Revision:   "a02082",
				MACAddress: "b8:27:eb:00:00:01",
			},
		},
		{
			name:  "nothing readable",
			files: map[string]string{},
			want:  Info{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			for rel, data := range tt.files {
				writeFile(t, root, rel, data)
			}

			if got := probeFiles(root, tt.iface); got != tt.want {
				t.Errorf("probeFiles() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseCPUInfo_NoColon(t *testing.T) {
	model, revision := parseCPUInfo([]byte("garbage\n\nModel\n"))
	if model != "" || revision != "" {
		t.Errorf("parseCPUInfo() = (%q, %q), want empty", model, revision)
	}
}

func TestProbe_DoesNotPanic(t *testing.T) {
	info := Probe("definitely-not-an-interface")
	if info.MACAddress != "" {
		t.Errorf("MACAddress = %q for a missing interface, want empty", info.MACAddress)
	}
}
