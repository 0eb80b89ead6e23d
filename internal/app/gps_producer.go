package app

import (
	"bufio"
	"fmt"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/metal_detector/internal/config"
	"github.com/relabs-tech/metal_detector/internal/gps"
	"github.com/relabs-tech/metal_detector/internal/log"
)

// RunGPSProducer opens the GPS serial port, parses NMEA sentences, and
// publishes combined GPS fixes as retained JSON on the GPS topic. The
// detector tags its finds with the latest one.
func RunGPSProducer(cfg *config.Config) error {
	logger := log.With("component", "gps_producer")

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDGPS, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	// NOTE: adjust GPS_SERIAL_PORT to match your setup: /dev/serial0, /dev/ttyAMA0, /dev/ttyUSB0, etc.
	serialOpts := serial.OpenOptions{
		PortName:              cfg.GPSSerialPort,
		BaudRate:              cfg.GPSBaudRate,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}
	if serialOpts.PortName == "" {
		return fmt.Errorf("GPS_SERIAL_PORT is not set")
	}

	port, err := serial.Open(serialOpts)
	if err != nil {
		return err
	}
	defer port.Close()
	logger.Info("serial port opened", "port", serialOpts.PortName, "baud", serialOpts.BaudRate)

	reader := bufio.NewReader(port)
	var current gps.Fix

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			return fmt.Errorf("gps read: %w", err)
		}

		if !applySentence(&current, line) {
			continue
		}
		if err := publishJSON(client, cfg.TopicGPS, true, current); err != nil {
			logger.Warn("publish failed", "err", err)
			continue
		}
		logger.Debug("published fix", "lat", current.Latitude, "lon", current.Longitude, "validity", current.Validity)
	}
}

// applySentence folds one NMEA line into fix. It reports true when the fix
// is complete enough to publish, which is after every RMC sentence; GGA only
// contributes altitude and satellite count.
func applySentence(fix *gps.Fix, line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return false
	}

	sentence, err := nmea.Parse(line)
	if err != nil {
		// noisy GPS or partial sentences
		return false
	}

	switch m := sentence.(type) {
	case nmea.RMC:
		fix.Time = m.Time.String()
		fix.Date = m.Date.String()
		fix.Latitude = m.Latitude
		fix.Longitude = m.Longitude
		fix.SpeedKnots = m.Speed
		fix.CourseDeg = m.Course
		fix.Validity = m.Validity
		return true
	case nmea.GGA:
		fix.Altitude = m.Altitude
		fix.Satellites = m.NumSatellites
	}
	return false
}
