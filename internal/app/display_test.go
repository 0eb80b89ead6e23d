package app

import (
	"testing"

	"periph.io/x/devices/v3/ssd1306/image1bit"

	"github.com/relabs-tech/metal_detector/internal/detector"
)

func TestRenderDetection_LevelBar(t *testing.T) {
	midBar := (barTop + barBottom) / 2

	full := renderDetection(detector.Reading{Level: 100, Calibrated: true, Detected: true}, true)
	if full.BitAt(oledW-4, midBar) != image1bit.On {
		t.Error("Expected full bar at level 100")
	}

	half := renderDetection(detector.Reading{Level: 50, Calibrated: true}, true)
	if half.BitAt(30, midBar) != image1bit.On {
		t.Error("Expected left part of the bar lit at level 50")
	}
	if half.BitAt(100, midBar) != image1bit.Off {
		t.Error("Expected right part of the bar dark at level 50")
	}

	empty := renderDetection(detector.Reading{Calibrated: true}, true)
	if empty.BitAt(10, midBar) != image1bit.Off {
		t.Error("Expected empty bar at level 0")
	}
	if empty.BitAt(0, midBar) != image1bit.On {
		t.Error("Expected bar outline")
	}
}

func TestRenderDetection_Waiting(t *testing.T) {
	img := renderDetection(detector.Reading{}, false)
	if img.BitAt(oledW-1, barTop) != image1bit.Off {
		t.Error("Expected no bar outline before the first reading")
	}
	if img.BitAt(oledW-1, (barTop+barBottom)/2) != image1bit.Off {
		t.Error("Expected no bar border before the first reading")
	}
}
