// Package hwinfo reads the host identity announced in the controller
// record: board model and revision, primary IP address and MAC address.
//
// Every field is best-effort. A missing file or a host without a network
// route leaves the field empty; the caller keeps its configured value.
package hwinfo

import (
	"bufio"
	"bytes"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// DefaultInterface is probed for the MAC address when none is configured.
const DefaultInterface = "eth0"

// routeProbeAddr is only used to select the outbound interface; no packet
// is sent for a UDP dial.
const routeProbeAddr = "8.8.8.8:80"

// Info is the probed host identity.
type Info struct {
	// Model is the board model, e.g. "Raspberry Pi 4 Model B Rev 1.4".
	Model string

	// Revision is the board revision code from /proc/cpuinfo.
	Revision string

	IPAddress  string
	MACAddress string
}

// Probe reads the host identity. iface names the interface whose MAC
// address is reported.
func Probe(iface string) Info {
	info := probeFiles("/", iface)
	if info.Model == "" {
		info.Model = unameMachine()
	}
	info.IPAddress = outboundIP()
	return info
}

// probeFiles reads the file-backed fields relative to root.
func probeFiles(root, iface string) Info {
	if iface == "" {
		iface = DefaultInterface
	}

	var info Info
	model, revision := parseCPUInfo(readFile(filepath.Join(root, "proc", "cpuinfo")))
	info.Model = model
	info.Revision = revision

	// The device tree model is NUL-terminated and present on kernels that
	// omit "Model" from cpuinfo.
	if info.Model == "" {
		dt := readFile(filepath.Join(root, "proc", "device-tree", "model"))
		info.Model = strings.TrimSpace(string(bytes.TrimRight(dt, "\x00")))
	}

	info.MACAddress = strings.TrimSpace(string(readFile(filepath.Join(root, "sys", "class", "net", iface, "address"))))
	return info
}

// parseCPUInfo extracts the Model and Revision lines.
func parseCPUInfo(data []byte) (model, revision string) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		switch strings.TrimSpace(key) {
		case "Model":
			model = strings.TrimSpace(value)
		case "Revision":
			revision = strings.TrimSpace(value)
		}
	}
	return model, revision
}

func readFile(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return data
}

// outboundIP returns the local address of the default route.
func outboundIP() string {
	conn, err := net.Dial("udp", routeProbeAddr)
	if err != nil {
		return ""
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return ""
	}
	return addr.IP.String()
}

// unameMachine returns the kernel's machine name (e.g. "aarch64").
func unameMachine() string {
	var uts unix.Utsname
	if err := unix.Uname(&uts); err != nil {
		return ""
	}
	return unix.ByteSliceToString(uts.Machine[:])
}
