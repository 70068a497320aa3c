package serialport

import (
	"path/filepath"
	"sort"
	"strings"

	"go.bug.st/serial/enumerator"
)

// FallbackPort is used when detection finds nothing.
const FallbackPort = "/dev/ttyUSB0"

// PortInfo describes a serial device found on the host.
type PortInfo struct {
	Path         string `json:"path"`
	FriendlyName string `json:"friendly_name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// listDetailed is replaced in tests.
var listDetailed = enumerator.GetDetailedPortsList

// ListPorts enumerates the serial devices present on the host, sorted by path.
func ListPorts() ([]PortInfo, error) {
	details, err := listDetailed()
	if err != nil {
		return nil, err
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		if d == nil {
			continue
		}
		ports = append(ports, PortInfo{
			Path:         d.Name,
			FriendlyName: friendlyName(d.Name),
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i].Path < ports[j].Path })
	return ports, nil
}

// DetectPort returns the first device that looks like a USB serial adapter
// (USB metadata, or "usb"/"acm" in its name), falling back to FallbackPort.
func DetectPort() string {
	ports, err := ListPorts()
	if err != nil {
		return FallbackPort
	}
	for _, p := range ports {
		name := strings.ToLower(p.Path)
		if p.IsUSB || strings.Contains(name, "usb") || strings.Contains(name, "acm") {
			return p.Path
		}
	}
	return FallbackPort
}

func friendlyName(path string) string {
	base := filepath.Base(path)
	switch {
	case strings.HasPrefix(base, "ttyUSB"):
		return "USB Serial (" + base + ")"
	case strings.HasPrefix(base, "ttyACM"):
		return "USB ACM (" + base + ")"
	case strings.HasPrefix(base, "cu.usbmodem"), strings.HasPrefix(base, "tty.usbmodem"):
		return "USB Modem (" + base + ")"
	case strings.HasPrefix(base, "ttyAMA"), strings.HasPrefix(base, "serial"):
		return "UART (" + base + ")"
	case strings.HasPrefix(strings.ToUpper(base), "COM"):
		return "Serial (" + base + ")"
	}
	return base
}
