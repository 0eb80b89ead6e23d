package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/joho/godotenv"

	"github.com/relabs-tech/metal_detector/internal/detector"
)

// Config holds all application configuration values.
type Config struct {
	// MQTT
	MQTTBroker           string
	MQTTClientIDDetector string
	MQTTClientIDMag      string
	MQTTClientIDGPS      string
	MQTTClientIDWeb      string
	MQTTClientIDDisplay  string
	MQTTClientIDConsole  string

	// Topics
	TopicMagRaw    string
	TopicDetection string
	TopicFinds     string
	TopicControl   string
	TopicFeedback  string
	TopicGPS       string

	// Sensor
	SensorSource     string // "hmc5883", "serial", "mqtt" or "mock"
	HMCI2CBus        string
	HMCI2CAddr       uint16
	HMCGainCode      uint8
	HMCAvgSamples    int
	SensorSerialPort string
	SensorBaudRate   uint
	SampleInterval   int // milliseconds

	// Detector
	DetectorMode        detector.Mode
	DetectorSensitivity float64
	SoundEnabled        bool
	VibrationEnabled    bool

	// Feedback
	FeedbackDevice string // "gpio", "mqtt" or "log"
	BuzzerPin      string
	VibrationPin   string

	// GPS
	GPSSerialPort string
	GPSBaudRate   uint

	// Web Server
	WebServerPort int
	MetricsAddr   string

	// History (InfluxDB); empty URL disables
	InfluxURL    string
	InfluxToken  string
	InfluxOrg    string
	InfluxBucket string

	// Display
	DisplayI2CBus         string
	DisplayUpdateInterval int // milliseconds

	LogLevel string
}

// Default returns a configuration that runs the detector against the mock
// source with a local broker.
func Default() *Config {
	return &Config{
		MQTTBroker:            "tcp://localhost:1883",
		MQTTClientIDDetector:  "metal-detector",
		MQTTClientIDMag:       "metal-detector-mag",
		MQTTClientIDGPS:       "metal-detector-gps",
		MQTTClientIDWeb:       "metal-detector-web",
		MQTTClientIDDisplay:   "metal-detector-display",
		MQTTClientIDConsole:   "metal-detector-console",
		TopicMagRaw:           "detector/mag/raw",
		TopicDetection:        "detector/detection",
		TopicFinds:            "detector/finds",
		TopicControl:          "detector/control",
		TopicFeedback:         "detector/feedback",
		TopicGPS:              "detector/gps",
		SensorSource:          "mock",
		HMCI2CBus:             "1",
		HMCI2CAddr:            0x1E,
		HMCGainCode:           1,
		HMCAvgSamples:         1,
		SensorBaudRate:        115200,
		SampleInterval:        16,
		DetectorMode:          detector.MetalDetector,
		DetectorSensitivity:   50,
		SoundEnabled:          true,
		VibrationEnabled:      true,
		FeedbackDevice:        "log",
		GPSBaudRate:           9600,
		WebServerPort:         8080,
		MetricsAddr:           ":9100",
		InfluxOrg:             "relabs",
		InfluxBucket:          "metal_detector",
		DisplayI2CBus:         "1",
		DisplayUpdateInterval: 100,
		LogLevel:              "info",
	}
}

// Package-level singleton; external code uses InitGlobal to set and Get to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the KEY=VALUE configuration file on top of Default. A variable
// in the process environment wins over the file value for the same key.
func Load(configPath string) (*Config, error) {
	values, err := godotenv.Read(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	cfg := Default()
	for _, key := range keys {
		value := values[key]
		if env, ok := os.LookupEnv(key); ok {
			value = env
		}
		if err := cfg.setValue(key, strings.TrimSpace(value)); err != nil {
			return nil, fmt.Errorf("config %s: %w", configPath, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// setValue sets a config field based on key name.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_DETECTOR":
		c.MQTTClientIDDetector = value
	case "MQTT_CLIENT_ID_MAG":
		c.MQTTClientIDMag = value
	case "MQTT_CLIENT_ID_GPS":
		c.MQTTClientIDGPS = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_MAG_RAW":
		c.TopicMagRaw = value
	case "TOPIC_DETECTION":
		c.TopicDetection = value
	case "TOPIC_FINDS":
		c.TopicFinds = value
	case "TOPIC_CONTROL":
		c.TopicControl = value
	case "TOPIC_FEEDBACK":
		c.TopicFeedback = value
	case "TOPIC_GPS":
		c.TopicGPS = value

	// Sensor
	case "SENSOR_SOURCE":
		c.SensorSource = strings.ToLower(value)
	case "HMC_I2C_BUS":
		c.HMCI2CBus = value
	case "HMC_I2C_ADDR":
		c.HMCI2CAddr, err = parseAddr(key, value)
	case "HMC_GAIN_CODE":
		var v uint64
		v, err = strconv.ParseUint(value, 0, 8)
		if err != nil || v > 7 {
			return fmt.Errorf("invalid HMC_GAIN_CODE %q: must be 0-7", value)
		}
		c.HMCGainCode = uint8(v)
	case "HMC_AVG_SAMPLES":
		c.HMCAvgSamples, err = parseInt(key, value)
	case "SENSOR_SERIAL_PORT":
		c.SensorSerialPort = value
	case "SENSOR_BAUD_RATE":
		c.SensorBaudRate, err = parseUint(key, value)
	case "SAMPLE_INTERVAL_MS":
		c.SampleInterval, err = parseInt(key, value)

	// Detector
	case "DETECTOR_MODE":
		c.DetectorMode, err = detector.ParseMode(value)
		if err != nil {
			return fmt.Errorf("invalid DETECTOR_MODE %q: %w", value, err)
		}
	case "DETECTOR_SENSITIVITY":
		var v float64
		v, err = strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid DETECTOR_SENSITIVITY %q: %w", value, err)
		}
		c.DetectorSensitivity = detector.ClampSensitivity(v)
	case "SOUND_ENABLED":
		c.SoundEnabled, err = parseBool(key, value)
	case "VIBRATION_ENABLED":
		c.VibrationEnabled, err = parseBool(key, value)

	// Feedback
	case "FEEDBACK_DEVICE":
		c.FeedbackDevice = strings.ToLower(value)
	case "BUZZER_PIN":
		c.BuzzerPin = value
	case "VIBRATION_PIN":
		c.VibrationPin = value

	// GPS
	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		c.GPSBaudRate, err = parseUint(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value)
	case "METRICS_ADDR":
		c.MetricsAddr = value

	// History
	case "INFLUX_URL":
		c.InfluxURL = value
	case "INFLUX_TOKEN":
		c.InfluxToken = value
	case "INFLUX_ORG":
		c.InfluxOrg = value
	case "INFLUX_BUCKET":
		c.InfluxBucket = value

	// Display
	case "DISPLAY_I2C_BUS":
		c.DisplayI2CBus = value
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value)

	case "LOG_LEVEL":
		c.LogLevel = value

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return err
}

func parseInt(key, value string) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

func parseUint(key, value string) (uint, error) {
	v, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return uint(v), nil
}

func parseAddr(key, value string) (uint16, error) {
	v, err := strconv.ParseUint(value, 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return uint16(v), nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// validate checks that the combination of values is usable.
func (c *Config) validate() error {
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	switch c.SensorSource {
	case "hmc5883", "mqtt", "mock":
	case "serial":
		if c.SensorSerialPort == "" {
			return fmt.Errorf("SENSOR_SERIAL_PORT is required when SENSOR_SOURCE=serial")
		}
	default:
		return fmt.Errorf("unknown SENSOR_SOURCE %q", c.SensorSource)
	}
	switch c.FeedbackDevice {
	case "gpio", "mqtt", "log":
	default:
		return fmt.Errorf("unknown FEEDBACK_DEVICE %q", c.FeedbackDevice)
	}
	if c.SampleInterval <= 0 {
		return fmt.Errorf("SAMPLE_INTERVAL_MS must be positive")
	}
	if c.InfluxURL != "" && c.InfluxBucket == "" {
		return fmt.Errorf("INFLUX_BUCKET is required when INFLUX_URL is set")
	}
	if c.DisplayUpdateInterval <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive")
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Only the first
// call has any effect.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
