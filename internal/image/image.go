// Package image loads boot images: the list of processes a kernel starts
// with, their privileges and the demo workload role each one plays.
package image

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/pelletier/go-toml/v2"

	"github.com/GriffinCanCode/AgentOS/microkernel/internal/dispatch"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/kernel"
	"github.com/GriffinCanCode/AgentOS/microkernel/internal/priv"
)

// Format is a boot image encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// Role is the workload a boot process runs.
type Role string

const (
	// RoleEcho answers every request with the payload doubled.
	RoleEcho Role = "echo"
	// RoleClient issues sendrec requests to its target.
	RoleClient Role = "client"
	// RoleIdle only receives.
	RoleIdle Role = "idle"
)

// AllTargets in send_to grants every slot.
const AllTargets = "*"

// Image is a parsed boot image.
type Image struct {
	Processes []Process `yaml:"processes" toml:"processes"`
}

// Process is one boot process.
type Process struct {
	Name    string   `yaml:"name" toml:"name"`
	Slot    int      `yaml:"slot" toml:"slot"`
	Role    Role     `yaml:"role" toml:"role"`
	Target  string   `yaml:"target,omitempty" toml:"target,omitempty"`
	Traps   []string `yaml:"traps" toml:"traps"`
	SendTo  []string `yaml:"send_to" toml:"send_to"`
	Segment Segment  `yaml:"segment" toml:"segment"`
}

// Segment is a process's data segment.
type Segment struct {
	Base uint64 `yaml:"base" toml:"base"`
	Size uint64 `yaml:"size" toml:"size"`
}

// DefaultYAML is the image booted when none is configured: one echo
// server, one client and an idle process that nobody may talk to.
const DefaultYAML = `processes:
  - name: echo
    slot: 1
    role: echo
    traps: [receive, reply, notify]
    send_to: ["*"]
    segment: {base: 65536, size: 4096}
  - name: client
    slot: 2
    role: client
    target: echo
    traps: [sendrec, sendnb, notify]
    send_to: [echo]
    segment: {base: 131072, size: 4096}
  - name: idle
    slot: 3
    role: idle
    traps: [receive]
    send_to: []
    segment: {base: 196608, size: 4096}
`

// Default returns the parsed default image.
func Default() *Image {
	img, err := Parse([]byte(DefaultYAML), FormatYAML)
	if err != nil {
		panic(fmt.Sprintf("default boot image: %v", err))
	}
	return img
}

// Load reads a boot image, choosing the format by file extension.
func Load(path string) (*Image, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".toml":
		format = FormatTOML
	default:
		return nil, fmt.Errorf("boot image %s: unsupported extension", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read boot image: %w", err)
	}
	img, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("boot image %s: %w", path, err)
	}
	return img, nil
}

// Parse decodes a boot image. It does not validate it against a table
// size; see Validate.
func Parse(data []byte, format Format) (*Image, error) {
	var img Image
	switch format {
	case FormatYAML:
		if err := yaml.UnmarshalWithOptions(data, &img, yaml.DisallowUnknownField()); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case FormatTOML:
		if err := toml.Unmarshal(data, &img); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown boot image format %q", format)
	}
	return &img, nil
}

// Validate checks the image against a table of n slots.
func (img *Image) Validate(n int) error {
	if len(img.Processes) == 0 {
		return fmt.Errorf("boot image has no processes")
	}

	byName := make(map[string]Process, len(img.Processes))
	bySlot := make(map[int]string, len(img.Processes))
	for _, p := range img.Processes {
		if p.Name == "" || p.Name == AllTargets {
			return fmt.Errorf("process in slot %d: invalid name %q", p.Slot, p.Name)
		}
		if p.Slot < 0 || p.Slot >= n {
			return fmt.Errorf("process %s: slot %d out of range [0, %d)", p.Name, p.Slot, n)
		}
		if _, dup := byName[p.Name]; dup {
			return fmt.Errorf("process %s: duplicate name", p.Name)
		}
		if other, dup := bySlot[p.Slot]; dup {
			return fmt.Errorf("process %s: slot %d already used by %s", p.Name, p.Slot, other)
		}
		byName[p.Name] = p
		bySlot[p.Slot] = p.Name
	}

	for _, p := range img.Processes {
		switch p.Role {
		case RoleEcho, RoleIdle:
		case RoleClient:
			target, ok := byName[p.Target]
			if !ok {
				return fmt.Errorf("process %s: unknown target %q", p.Name, p.Target)
			}
			if target.Role != RoleEcho {
				return fmt.Errorf("process %s: target %s is not an echo server", p.Name, p.Target)
			}
		default:
			return fmt.Errorf("process %s: unknown role %q", p.Name, p.Role)
		}
		if _, err := img.Grant(p); err != nil {
			return err
		}
	}
	return nil
}

// Lookup returns the process named name.
func (img *Image) Lookup(name string) (Process, bool) {
	for _, p := range img.Processes {
		if p.Name == name {
			return p, true
		}
	}
	return Process{}, false
}

// Grant converts p's traps and send_to names into a privilege grant.
func (img *Image) Grant(p Process) (priv.Grant, error) {
	var g priv.Grant
	for _, name := range p.Traps {
		op, err := dispatch.ParseOp(name)
		if err != nil {
			return priv.Grant{}, fmt.Errorf("process %s: %w", p.Name, err)
		}
		g.Traps = append(g.Traps, op)
	}
	for _, name := range p.SendTo {
		if name == AllTargets {
			g.SendToAll = true
			continue
		}
		dst, ok := img.Lookup(name)
		if !ok {
			return priv.Grant{}, fmt.Errorf("process %s: unknown send_to %q", p.Name, name)
		}
		g.SendTo = append(g.SendTo, kernel.Slot(dst.Slot))
	}
	return g, nil
}

// DispatchSegment returns p's segment in the dispatcher's form.
func (p Process) DispatchSegment() dispatch.Segment {
	return dispatch.Segment{Base: p.Segment.Base, Size: p.Segment.Size}
}
