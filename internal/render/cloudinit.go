package render

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
)

// RenderMetaData produces the cloud-init meta-data document. If the spec's
// cloud-init meta-data already declares an instance-id, it is left as-is;
// otherwise one is derived from the CR's resourceVersion and local-hostname
// defaults to the VM name (spec.md §6).
func RenderMetaData(def Definition) string {
	existing := def.Spec.CloudInit.MetaData
	if strings.Contains(existing, "instance-id") {
		return existing
	}

	var b strings.Builder
	fmt.Fprintf(&b, "instance-id: %s\n", def.InstanceID())
	fmt.Fprintf(&b, "local-hostname: %s\n", def.Name)
	if existing != "" {
		b.WriteString(existing)
		if !strings.HasSuffix(existing, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}

// VirtViewerConfig describes the parameters of a SPICE remote-display
// session, used to produce the base64-encoded virt-viewer connection file
// handed to GUI clients (spec.md §6).
type VirtViewerConfig struct {
	Host           string
	Port           int
	Password       string
	ProxyURL       string
	DeleteThisFile bool
}

// RenderVirtViewer renders the INI-format virt-viewer file and base64-encodes
// it, matching the [virt-viewer] stanza described in spec.md §6.
func RenderVirtViewer(cfg VirtViewerConfig) string {
	var b strings.Builder
	b.WriteString("[virt-viewer]\n")
	b.WriteString("type=spice\n")
	fmt.Fprintf(&b, "host=%s\n", cfg.Host)
	fmt.Fprintf(&b, "port=%d\n", cfg.Port)
	if cfg.Password != "" {
		fmt.Fprintf(&b, "password=%s\n", cfg.Password)
	}
	if cfg.ProxyURL != "" {
		fmt.Fprintf(&b, "proxy=%s\n", cfg.ProxyURL)
	}
	if cfg.DeleteThisFile {
		b.WriteString("delete-this-file=1\n")
	}
	return base64.StdEncoding.EncodeToString([]byte(b.String()))
}

// FormatRAMBytes renders a resource.Quantity-derived byte count the way
// status.ram is reported: a plain decimal string (spec.md §3, example
// status.ram="4294967296").
func FormatRAMBytes(bytes int64) string {
	return strconv.FormatInt(bytes, 10)
}
