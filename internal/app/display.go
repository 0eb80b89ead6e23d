package app

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/metal_detector/internal/config"
	"github.com/relabs-tech/metal_detector/internal/detector"
	"github.com/relabs-tech/metal_detector/internal/log"
)

const (
	oledW = 128
	oledH = 64

	barTop    = 31
	barBottom = 44
)

// displayData holds the latest reading for the OLED loop.
type displayData struct {
	mu      sync.RWMutex
	reading detector.Reading
	have    bool
}

func (d *displayData) set(r detector.Reading) {
	d.mu.Lock()
	d.reading = r
	d.have = true
	d.mu.Unlock()
}

func (d *displayData) get() (detector.Reading, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.reading, d.have
}

// RunDisplay draws the detection meter on an SSD1306 at 0x3C.
func RunDisplay(cfg *config.Config) error {
	logger := log.With("component", "display")

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	bus, err := i2creg.Open(cfg.DisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus %q: %w", cfg.DisplayI2CBus, err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	defer dev.Halt()
	logger.Info("display initialized", "bus", cfg.DisplayI2CBus)

	if err := dev.Draw(dev.Bounds(), renderSplash(), image.Point{}); err != nil {
		logger.Warn("error showing splash", "err", err)
	}

	client, err := connectMQTT(cfg.MQTTBroker, cfg.MQTTClientIDDisplay, logger)
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	data := &displayData{}
	if err := subscribeJSON(client, cfg.TopicDetection, logger, data.set); err != nil {
		return err
	}

	ticker := time.NewTicker(time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond)
	defer ticker.Stop()

	logger.Info("starting update loop")
	for range ticker.C {
		r, have := data.get()
		if err := dev.Draw(dev.Bounds(), renderDetection(r, have), image.Point{}); err != nil {
			logger.Warn("error updating display", "err", err)
		}
	}
	return nil
}

func newCanvas() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, oledW, oledH))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

func drawText(d *font.Drawer, x, y int, s string) {
	d.Dot = fixed.P(x, y)
	d.DrawString(s)
}

func renderSplash() *image1bit.VerticalLSB {
	img, d := newCanvas()
	drawText(d, 14, 26, "Metal Detector")
	drawText(d, 20, 43, "Waiting for")
	drawText(d, 36, 56, "sensor")
	return img
}

// renderDetection draws mode, field, a level bar and the detection banner.
func renderDetection(r detector.Reading, have bool) *image1bit.VerticalLSB {
	img, d := newCanvas()
	if !have {
		drawText(d, 0, 26, "Detector")
		drawText(d, 0, 39, "Waiting...")
		return img
	}

	drawText(d, 0, 12, fmt.Sprintf("%-8s S%3.0f", strings.ToUpper(r.Mode.String()), r.Sensitivity))
	drawText(d, 0, 27, fmt.Sprintf("%5.1f/%5.1fuT", r.Field, r.Baseline))

	// Bar outline
	for x := 0; x < oledW; x++ {
		img.SetBit(x, barTop, image1bit.On)
		img.SetBit(x, barBottom, image1bit.On)
	}
	for y := barTop; y <= barBottom; y++ {
		img.SetBit(0, y, image1bit.On)
		img.SetBit(oledW-1, y, image1bit.On)
	}
	fill := int(r.Level / 100 * float64(oledW-4))
	for x := 2; x < 2+fill; x++ {
		for y := barTop + 2; y <= barBottom-2; y++ {
			img.SetBit(x, y, image1bit.On)
		}
	}

	switch {
	case !r.Calibrated:
		drawText(d, 0, 60, "Calibrating...")
	case r.Detected:
		drawText(d, 40, 60, "METAL!")
	default:
		drawText(d, 0, 60, fmt.Sprintf("Level %3.0f", r.Level))
	}
	return img
}
