package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/banshee-data/l508/internal/protocol"
	"github.com/banshee-data/l508/internal/units"
)

// DefaultConfigPath is where the client looks for its config when no path
// is given on the command line.
const DefaultConfigPath = "config/l508.json"

// ClientConfig holds the client's tunables. Every field is optional; the
// Get* methods return the documented default for unset fields, so partial
// files are safe.
type ClientConfig struct {
	// Identity check
	ExpectedManufacturer *string `json:"expected_manufacturer,omitempty"`
	ExpectedModel        *string `json:"expected_model,omitempty"`

	// Discovery and GATT timing, duration strings like "500ms"
	SettleDelay *string `json:"settle_delay,omitempty"`
	ScanTimeout *string `json:"scan_timeout,omitempty"`
	OpTimeout   *string `json:"op_timeout,omitempty"`

	// DeviceAddress pins discovery to one peripheral.
	DeviceAddress *string `json:"device_address,omitempty"`

	// RoutePageB routes 57 09 00 31 frames to the radar decoder.
	RoutePageB *bool `json:"route_page_b,omitempty"`

	// Frame capture
	CapturePath   *string `json:"capture_path,omitempty"`
	CaptureBuffer *int    `json:"capture_buffer,omitempty"`

	// UnknownLogRate caps unrecognized-frame log lines per second.
	UnknownLogRate *float64 `json:"unknown_log_rate,omitempty"`

	// SpeedUnits selects how target speeds are logged.
	SpeedUnits *string `json:"speed_units,omitempty"`
}

func ptrString(v string) *string    { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrInt(v int) *int             { return &v }
func ptrFloat64(v float64) *float64 { return &v }

// EmptyClientConfig returns a ClientConfig with all fields unset.
func EmptyClientConfig() *ClientConfig {
	return &ClientConfig{}
}

// DefaultClientConfig returns a ClientConfig with every field populated
// with its default.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ExpectedManufacturer: ptrString(protocol.ExpectedManufacturer),
		ExpectedModel:        ptrString(protocol.ExpectedModel),
		SettleDelay:          ptrString("500ms"),
		ScanTimeout:          ptrString("30s"),
		OpTimeout:            ptrString("10s"),
		DeviceAddress:        ptrString(""),
		RoutePageB:           ptrBool(false),
		CapturePath:          ptrString(""),
		CaptureBuffer:        ptrInt(1024),
		UnknownLogRate:       ptrFloat64(1),
		SpeedUnits:           ptrString(units.MPS),
	}
}

// LoadClientConfig loads a ClientConfig from a JSON file.
func LoadClientConfig(path string) (*ClientConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 64 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyClientConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ClientConfig) Validate() error {
	for name, v := range map[string]*string{
		"settle_delay": c.SettleDelay,
		"scan_timeout": c.ScanTimeout,
		"op_timeout":   c.OpTimeout,
	} {
		if v == nil || *v == "" {
			continue
		}
		d, err := time.ParseDuration(*v)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", name, *v, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must be non-negative, got %s", name, d)
		}
	}

	if c.ExpectedModel != nil && strings.TrimSpace(*c.ExpectedModel) == "" {
		return fmt.Errorf("expected_model must not be empty")
	}
	if c.ExpectedManufacturer != nil && *c.ExpectedManufacturer == "" {
		return fmt.Errorf("expected_manufacturer must not be empty")
	}

	if c.CaptureBuffer != nil && *c.CaptureBuffer < 1 {
		return fmt.Errorf("capture_buffer must be positive, got %d", *c.CaptureBuffer)
	}
	if c.UnknownLogRate != nil && *c.UnknownLogRate < 0 {
		return fmt.Errorf("unknown_log_rate must be non-negative, got %f", *c.UnknownLogRate)
	}
	if c.SpeedUnits != nil && !units.IsValid(*c.SpeedUnits) {
		return fmt.Errorf("invalid speed_units '%s', must be one of: %s", *c.SpeedUnits, units.GetValidUnitsString())
	}

	return nil
}

func duration(v *string, def time.Duration) time.Duration {
	if v == nil || *v == "" {
		return def
	}
	d, err := time.ParseDuration(*v)
	if err != nil {
		return def
	}
	return d
}

// GetSettleDelay returns the pause between the two arm writes.
func (c *ClientConfig) GetSettleDelay() time.Duration {
	return duration(c.SettleDelay, 500*time.Millisecond)
}

// GetScanTimeout returns the discovery bound.
func (c *ClientConfig) GetScanTimeout() time.Duration {
	return duration(c.ScanTimeout, 30*time.Second)
}

// GetOpTimeout returns the bound on each GATT call. Zero disables it.
func (c *ClientConfig) GetOpTimeout() time.Duration {
	return duration(c.OpTimeout, 10*time.Second)
}

// GetExpectedManufacturer returns the manufacturer the device must report.
func (c *ClientConfig) GetExpectedManufacturer() string {
	if c.ExpectedManufacturer == nil {
		return protocol.ExpectedManufacturer
	}
	return *c.ExpectedManufacturer
}

// GetExpectedModel returns the model the device must report.
func (c *ClientConfig) GetExpectedModel() string {
	if c.ExpectedModel == nil {
		return protocol.ExpectedModel
	}
	return strings.TrimSpace(*c.ExpectedModel)
}

func (c *ClientConfig) GetDeviceAddress() string {
	if c.DeviceAddress == nil {
		return ""
	}
	return *c.DeviceAddress
}

func (c *ClientConfig) GetRoutePageB() bool {
	return c.RoutePageB != nil && *c.RoutePageB
}

// GetCapturePath returns the sqlite capture file, empty when capture is off.
func (c *ClientConfig) GetCapturePath() string {
	if c.CapturePath == nil {
		return ""
	}
	return *c.CapturePath
}

func (c *ClientConfig) GetCaptureBuffer() int {
	if c.CaptureBuffer == nil {
		return 1024
	}
	return *c.CaptureBuffer
}

func (c *ClientConfig) GetUnknownLogRate() float64 {
	if c.UnknownLogRate == nil {
		return 1
	}
	return *c.UnknownLogRate
}

func (c *ClientConfig) GetSpeedUnits() string {
	if c.SpeedUnits == nil {
		return units.MPS
	}
	return *c.SpeedUnits
}
