package components

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/rendis/geodrill/internal/tui/styles"
)

// Point is a lon/lat pair in degrees.
type Point struct {
	Lat float64
	Lng float64
}

// Shape is one region outline. Class is its classification index, -1 when
// the region has no value.
type Shape struct {
	Code  string
	Rings [][]Point
	Class int
}

// MapView renders region outlines with Braille characters, each outline
// colored by its class.
type MapView struct {
	width    int
	height   int
	shapes   []Shape
	classes  int
	selected string
	hovered  string
	// Viewport bounds
	minLat, maxLat float64
	minLng, maxLng float64
	// Base bounds (for zoom reference)
	basMinLat, basMaxLat float64
	basMinLng, basMaxLng float64
	zoomLevel            float64
	panLat, panLng       float64
}

func NewMapView(width, height int) MapView {
	return MapView{
		width:     width,
		height:    height,
		zoomLevel: 1.0,
	}
}

func (m *MapView) SetSize(width, height int) {
	m.width = width
	m.height = height
}

// SetShapes replaces the drawn regions and refits the viewport to them.
func (m *MapView) SetShapes(shapes []Shape, classes int) {
	m.shapes = shapes
	m.classes = classes
	m.zoomLevel = 1.0
	m.panLat, m.panLng = 0, 0
	m.fitBounds()
}

// SetClasses recolors the current shapes without moving the viewport.
func (m *MapView) SetClasses(class func(code string) int, classes int) {
	m.classes = classes
	for i := range m.shapes {
		m.shapes[i].Class = class(m.shapes[i].Code)
	}
}

func (m *MapView) SetSelected(code string) { m.selected = code }
func (m *MapView) SetHovered(code string)  { m.hovered = code }

func (m *MapView) ZoomIn() {
	m.zoomLevel *= 1.5
	if m.zoomLevel > 20 {
		m.zoomLevel = 20
	}
	m.applyZoom()
}

func (m *MapView) ZoomOut() {
	m.zoomLevel /= 1.5
	if m.zoomLevel < 0.5 {
		m.zoomLevel = 0.5
	}
	m.applyZoom()
}

func (m *MapView) ZoomReset() {
	m.zoomLevel = 1.0
	m.panLat = 0
	m.panLng = 0
	m.applyZoom()
}

func (m *MapView) Pan(dLat, dLng float64) {
	latRange := m.basMaxLat - m.basMinLat
	lngRange := m.basMaxLng - m.basMinLng
	m.panLat += dLat * latRange * 0.1 / m.zoomLevel
	m.panLng += dLng * lngRange * 0.1 / m.zoomLevel
	m.applyZoom()
}

func (m *MapView) applyZoom() {
	centerLat := (m.basMinLat+m.basMaxLat)/2 + m.panLat
	centerLng := (m.basMinLng+m.basMaxLng)/2 + m.panLng
	halfLat := (m.basMaxLat - m.basMinLat) / 2 / m.zoomLevel
	halfLng := (m.basMaxLng - m.basMinLng) / 2 / m.zoomLevel
	m.minLat = centerLat - halfLat
	m.maxLat = centerLat + halfLat
	m.minLng = centerLng - halfLng
	m.maxLng = centerLng + halfLng
}

func (m *MapView) fitBounds() {
	first := true
	for _, s := range m.shapes {
		for _, ring := range s.Rings {
			for _, p := range ring {
				if first {
					m.basMinLat, m.basMaxLat = p.Lat, p.Lat
					m.basMinLng, m.basMaxLng = p.Lng, p.Lng
					first = false
					continue
				}
				m.basMinLat = math.Min(m.basMinLat, p.Lat)
				m.basMaxLat = math.Max(m.basMaxLat, p.Lat)
				m.basMinLng = math.Min(m.basMinLng, p.Lng)
				m.basMaxLng = math.Max(m.basMaxLng, p.Lng)
			}
		}
	}
	if first {
		m.basMinLat, m.basMaxLat, m.basMinLng, m.basMaxLng = 0, 0, 0, 0
	}
	latPad := (m.basMaxLat - m.basMinLat) * 0.05
	lngPad := (m.basMaxLng - m.basMinLng) * 0.05
	if latPad == 0 {
		latPad = 0.01
	}
	if lngPad == 0 {
		lngPad = 0.01
	}
	m.basMinLat -= latPad
	m.basMaxLat += latPad
	m.basMinLng -= lngPad
	m.basMaxLng += lngPad
	m.applyZoom()
}

// Braille character encoding:
// Each braille char is a 2x4 dot grid.
// Dot positions:  0 3
//
//	1 4
//	2 5
//	6 7
//
// Unicode: 0x2800 + sum of raised dot bits
var brailleDots = [8]rune{0x01, 0x02, 0x04, 0x08, 0x10, 0x20, 0x40, 0x80}

var dotPositions = [8][2]int{
	{0, 0}, {1, 0}, {2, 0}, {0, 1},
	{1, 1}, {2, 1}, {3, 0}, {3, 1},
}

func (m MapView) shapeStyle(s Shape) lipgloss.Style {
	switch s.Code {
	case m.selected:
		return lipgloss.NewStyle().Foreground(styles.Primary).Bold(true)
	case m.hovered:
		return lipgloss.NewStyle().Foreground(styles.Text).Bold(true)
	}
	return lipgloss.NewStyle().Foreground(styles.ClassColor(s.Class, m.classes))
}

func (m MapView) View() string {
	if m.width <= 0 || m.height <= 0 {
		return ""
	}

	cols := m.width
	rows := m.height
	dotW := cols * 2
	dotH := rows * 4

	latRange := m.maxLat - m.minLat
	lngRange := m.maxLng - m.minLng
	if latRange == 0 || lngRange == 0 || len(m.shapes) == 0 {
		return strings.TrimSuffix(strings.Repeat(strings.Repeat(" ", cols)+"\n", rows), "\n")
	}

	// Braille dots are roughly square on screen, so correct for the
	// longitude shrink at this latitude.
	avgLat := (m.minLat + m.maxLat) / 2
	cosLat := math.Cos(avgLat * math.Pi / 180)
	geoAspect := lngRange * cosLat / latRange
	dotAspect := float64(dotW) / float64(dotH)

	effectiveW, effectiveH := dotW, dotH
	offsetX, offsetY := 0, 0
	if geoAspect < dotAspect {
		effectiveW = max(int(float64(dotH)*geoAspect), 4)
		offsetX = (dotW - effectiveW) / 2
	} else {
		effectiveH = max(int(float64(dotW)/geoAspect), 4)
		offsetY = (dotH - effectiveH) / 2
	}

	toDot := func(p Point) (int, int) {
		x := offsetX + int((p.Lng-m.minLng)/lngRange*float64(effectiveW-1))
		y := offsetY + int((m.maxLat-p.Lat)/latRange*float64(effectiveH-1))
		return x, y
	}

	// owner holds 1+shape index per dot; later shapes overwrite earlier
	// ones and the selected and hovered shapes are drawn last.
	owner := make([][]int, dotH)
	for i := range owner {
		owner[i] = make([]int, dotW)
	}
	order := make([]int, 0, len(m.shapes))
	var top []int
	for i, s := range m.shapes {
		if s.Code != "" && (s.Code == m.selected || s.Code == m.hovered) {
			top = append(top, i)
			continue
		}
		order = append(order, i)
	}
	for _, i := range append(order, top...) {
		for _, ring := range m.shapes[i].Rings {
			for j := 0; j+1 < len(ring); j++ {
				x0, y0 := toDot(ring[j])
				x1, y1 := toDot(ring[j+1])
				drawLine(owner, i+1, x0, y0, x1, y1, dotW, dotH)
			}
		}
	}

	shapeStyles := make([]lipgloss.Style, len(m.shapes))
	for i, s := range m.shapes {
		shapeStyles[i] = m.shapeStyle(s)
	}

	var sb strings.Builder
	for row := 0; row < rows; row++ {
		for col := 0; col < cols; col++ {
			var val rune = 0x2800
			cellOwner := 0
			for dot := 0; dot < 8; dot++ {
				dy := row*4 + dotPositions[dot][0]
				dx := col*2 + dotPositions[dot][1]
				if o := owner[dy][dx]; o != 0 {
					val |= brailleDots[dot]
					if cellOwner == 0 {
						cellOwner = o
					}
				}
			}
			if cellOwner == 0 {
				sb.WriteRune(' ')
				continue
			}
			sb.WriteString(shapeStyles[cellOwner-1].Render(string(val)))
		}
		if row < rows-1 {
			sb.WriteRune('\n')
		}
	}

	return sb.String()
}

// drawLine marks the dots between two points with id (Bresenham).
func drawLine(grid [][]int, id, x0, y0, x1, y1, maxW, maxH int) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx := 1
	if x0 >= x1 {
		sx = -1
	}
	sy := 1
	if y0 >= y1 {
		sy = -1
	}
	err := dx + dy

	for {
		if x0 >= 0 && x0 < maxW && y0 >= 0 && y0 < maxH {
			grid[y0][x0] = id
		}
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
