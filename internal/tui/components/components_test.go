package components

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rendis/geodrill/internal/model"
)

func TestSparkline(t *testing.T) {
	assert.Equal(t, "▁█ ▄", Sparkline([]*float64{model.Float(0), model.Float(10), nil, model.Float(5)}))
	assert.Equal(t, "▅▅", Sparkline([]*float64{model.Float(3), model.Float(3)}))
	assert.Empty(t, Sparkline(nil))
}

func square(code string, x, y float64, class int) Shape {
	return Shape{Code: code, Class: class, Rings: [][]Point{{
		{Lng: x, Lat: y}, {Lng: x + 1, Lat: y}, {Lng: x + 1, Lat: y + 1}, {Lng: x, Lat: y + 1}, {Lng: x, Lat: y},
	}}}
}

func TestMapViewDimensions(t *testing.T) {
	mv := NewMapView(0, 0)
	assert.Empty(t, mv.View())

	mv.SetSize(20, 6)
	blank := mv.View()
	assert.Len(t, strings.Split(blank, "\n"), 6)
	assert.Equal(t, "", strings.TrimSpace(blank))

	mv.SetShapes([]Shape{square("11", 126, 37, 0), square("26", 128, 35, 2)}, 3)
	mv.SetSelected("11")
	out := mv.View()
	assert.Len(t, strings.Split(out, "\n"), 6)
	assert.NotEqual(t, "", strings.TrimSpace(out))

	mv.SetClasses(func(string) int { return -1 }, 3)
	mv.ZoomIn()
	mv.Pan(1, 0)
	mv.ZoomReset()
	assert.Len(t, strings.Split(mv.View(), "\n"), 6)
}
