package simulator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/nexus-iot/server/internal/model"
	"github.com/nexus-iot/server/internal/pkg/utils"
)

const (
	DefaultBaseTemperature = 25.0
	DefaultBaseHumidity    = 50.0

	motionProbability = 0.3
)

// Generator synthesizes telemetry data for a device based on its type and metadata.
// It is safe for concurrent use.
type Generator struct {
	mu              sync.Mutex
	rnd             *rand.Rand
	baseTemperature float64
	baseHumidity    float64
}

// NewGenerator returns a generator drawing from src. A nil src seeds from the clock.
func NewGenerator(src rand.Source) *Generator {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Generator{
		rnd:             rand.New(src),
		baseTemperature: DefaultBaseTemperature,
		baseHumidity:    DefaultBaseHumidity,
	}
}

// SetEnvironment changes the base temperature and humidity used by sensors.
func (g *Generator) SetEnvironment(temperature, humidity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.baseTemperature = temperature
	g.baseHumidity = humidity
}

func (g *Generator) Environment() (temperature, humidity float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.baseTemperature, g.baseHumidity
}

// Generate returns the data map of one reading for device taken at instant at.
func (g *Generator) Generate(device model.Device, at time.Time) map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()

	data := map[string]any{}
	on := device.IsOn()
	state := "off"
	if on {
		state = "on"
	}

	switch device.Type {
	case model.DeviceTypeTemperatureSensor:
		data["temperature"] = g.temperature(at)
		data["unit"] = "celsius"

	case model.DeviceTypeHumiditySensor:
		data["humidity"] = utils.Round(g.baseHumidity+g.uniform(-5, 5), 1)
		data["unit"] = "percent"

	case model.DeviceTypeSmartPlug, model.DeviceTypePowerMonitor:
		data["powerConsumption"] = 0.0
		data["current"] = 0.0
		if on {
			data["powerConsumption"] = utils.Round(g.uniform(50, 200), 1)
			data["current"] = utils.Round(g.uniform(0.2, 1.0), 2)
		}
		data["voltage"] = utils.Round(g.uniform(220, 240), 1)
		data["unit"] = "watts"
		data["state"] = state

	case model.DeviceTypeFan:
		speed := device.Metadata.Number("speed", 1)
		data["state"] = state
		data["speed"] = 0.0
		data["powerConsumption"] = 0.0
		data["rpm"] = 0.0
		if on {
			data["speed"] = speed
			data["powerConsumption"] = speed * 30
			data["rpm"] = speed * 800
		}

	case model.DeviceTypeAC:
		data["state"] = state
		data["targetTemperature"] = device.Metadata.Number("temperature", 24)
		data["currentTemperature"] = g.temperature(at)
		data["powerConsumption"] = 0.0
		if on {
			data["powerConsumption"] = utils.Round(g.uniform(800, 1500), 1)
		}
		data["mode"] = device.Metadata.String("mode", "cool")

	case model.DeviceTypeLight:
		brightness := device.Metadata.Number("brightness", 100)
		data["state"] = state
		data["brightness"] = 0.0
		data["powerConsumption"] = 0.0
		if on {
			data["brightness"] = brightness
			data["powerConsumption"] = brightness / 100 * 15
		}

	case model.DeviceTypeMotionSensor:
		data["motion"] = g.rnd.Float64() < motionProbability
		data["lastMotion"] = at.UTC().Format(time.RFC3339Nano)

	default:
		data["status"] = "active"
	}
	return data
}

// temperature follows a daily sine curve peaking at noon plus up to one degree of noise.
func (g *Generator) temperature(at time.Time) float64 {
	hour := float64(at.Hour())
	daily := math.Sin((hour-6)*math.Pi/12) * 5
	return utils.Round(g.baseTemperature+daily+g.uniform(-1, 1), 1)
}

func (g *Generator) uniform(lo, hi float64) float64 {
	return lo + g.rnd.Float64()*(hi-lo)
}
