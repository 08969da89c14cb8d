// Package seed loads the demo device set and registers it at start-up.
package seed

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v2"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
)

//go:embed seed.yaml
var embeddedSeed []byte

// File is the on-disk seed layout.
type File struct {
	Devices []Device `yaml:"devices"`
}

// Device is one seed entry.
type Device struct {
	ID       string                 `yaml:"id"`
	Name     string                 `yaml:"name"`
	Type     string                 `yaml:"type"`
	Status   string                 `yaml:"status"`
	Location string                 `yaml:"location"`
	Metadata map[string]interface{} `yaml:"metadata"`
}

// Creator registers devices. devicedomain.Service satisfies it.
type Creator interface {
	CreateDevice(ctx context.Context, in devicedomain.CreateInput) (devicedomain.Device, error)
}

func LoadEmbedded() (*File, error) {
	return Load(embeddedSeed)
}

func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return Load(data)
}

// Load parses and validates a seed document.
func Load(data []byte) (*File, error) {
	file := &File{}
	if err := yaml.Unmarshal(data, file); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	seen := make(map[string]struct{}, len(file.Devices))
	for i, d := range file.Devices {
		if strings.TrimSpace(d.Name) == "" {
			return nil, fmt.Errorf("seed device %d: name is required", i)
		}
		if !model.DeviceType(d.Type).Valid() {
			return nil, fmt.Errorf("seed device %q: unknown type %q", d.Name, d.Type)
		}
		if d.Status != "" && !model.DeviceStatus(d.Status).Valid() {
			return nil, fmt.Errorf("seed device %q: unknown status %q", d.Name, d.Status)
		}
		if d.ID == "" {
			continue
		}
		if _, ok := seen[d.ID]; ok {
			return nil, fmt.Errorf("seed device %q: duplicate id", d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return file, nil
}

// Apply creates every seed device. Devices that already exist are skipped.
// It returns the number of devices created.
func (f *File) Apply(ctx context.Context, devices Creator, logger *slog.Logger) (int, error) {
	if f == nil {
		return 0, nil
	}
	created := 0
	for _, d := range f.Devices {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		_, err := devices.CreateDevice(ctx, d.input())
		switch {
		case err == nil:
			created++
		case errors.Is(err, devicedomain.ErrDeviceConflict):
			logger.Info("seed device already registered", "device_id", d.ID)
		default:
			return created, fmt.Errorf("seed device %q: %w", d.Name, err)
		}
	}
	logger.Info("seed applied", "created", created, "total", len(f.Devices))
	return created, nil
}

func (d Device) input() devicedomain.CreateInput {
	in := devicedomain.CreateInput{
		ID:       strings.TrimSpace(d.ID),
		Name:     strings.TrimSpace(d.Name),
		Type:     model.DeviceType(d.Type),
		Status:   model.DeviceStatus(d.Status),
		Metadata: normalize(d.Metadata),
	}
	if loc := strings.TrimSpace(d.Location); loc != "" {
		in.Location = &loc
	}
	return in
}

// normalize converts yaml.v2 nested maps (map[interface{}]interface{}) into
// string-keyed maps so metadata stays JSON encodable.
func normalize(in map[string]interface{}) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) any {
	switch value := v.(type) {
	case map[interface{}]interface{}:
		out := make(map[string]any, len(value))
		for k, item := range value {
			out[fmt.Sprint(k)] = normalizeValue(item)
		}
		return out
	case []interface{}:
		out := make([]any, len(value))
		for i, item := range value {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return value
	}
}
