package types

// LinkCatalog is the comm link configuration file.
type LinkCatalog struct {
	Links []LinkConfig `json:"links" yaml:"links"`
}

type LinkConfig struct {
	Name        string             `json:"name" yaml:"name"`
	Protocol    string             `json:"protocol" yaml:"protocol"`
	URI         string             `json:"uri" yaml:"uri"`
	Poll        string             `json:"poll,omitempty" yaml:"poll,omitempty"`
	TimeoutMs   int                `json:"timeout_ms,omitempty" yaml:"timeout_ms,omitempty"`
	Active      *bool              `json:"active,omitempty" yaml:"active,omitempty"`
	Profile     string             `json:"profile,omitempty" yaml:"profile,omitempty"`
	Controllers []ControllerConfig `json:"controllers" yaml:"controllers"`
}

type ControllerConfig struct {
	Name     string         `json:"name" yaml:"name"`
	Drop     int            `json:"drop" yaml:"drop"`
	Password string         `json:"password,omitempty" yaml:"password,omitempty"`
	Active   *bool          `json:"active,omitempty" yaml:"active,omitempty"`
	Devices  []DeviceConfig `json:"devices,omitempty" yaml:"devices,omitempty"`
}

// DeviceKind names the device object bound to a controller pin.
type DeviceKind string

const (
	KindSign     DeviceKind = "sign"
	KindCamera   DeviceKind = "camera"
	KindMonitor  DeviceKind = "monitor"
	KindDetector DeviceKind = "detector"
	KindMeter    DeviceKind = "meter"
	KindSensor   DeviceKind = "sensor"
)

type DeviceConfig struct {
	Name   string        `json:"name" yaml:"name"`
	Kind   DeviceKind    `json:"kind" yaml:"kind"`
	Pin    int           `json:"pin" yaml:"pin"`
	Number int           `json:"number,omitempty" yaml:"number,omitempty"`
	Active *bool         `json:"active,omitempty" yaml:"active,omitempty"`
	Style  *MonitorStyle `json:"style,omitempty" yaml:"style,omitempty"`
}

type MonitorStyle struct {
	Accent      string `json:"accent" yaml:"accent"`
	ForceAspect bool   `json:"force_aspect" yaml:"force_aspect"`
	FontSz      int    `json:"font_sz" yaml:"font_sz"`
}

// IsActive reads an optional active flag, defaulting to true.
func IsActive(flag *bool) bool {
	return flag == nil || *flag
}
