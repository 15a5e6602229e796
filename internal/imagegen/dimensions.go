package imagegen

import "strings"

// AspectRatio names a preset output shape.
type AspectRatio string

const (
	AspectSquare    AspectRatio = "1:1"
	AspectLandscape AspectRatio = "16:9"
	AspectPortrait  AspectRatio = "9:16"
	AspectPhoto     AspectRatio = "4:3"
	AspectWide      AspectRatio = "21:9"
	AspectCustom    AspectRatio = "custom"
)

const (
	dimensionStep    = 64
	fallbackFreeSize = 1024
)

var presetDimensions = map[AspectRatio][2]int{
	AspectSquare:    {2048, 2048},
	AspectLandscape: {3840, 2160},
	AspectPortrait:  {2160, 3840},
	AspectPhoto:     {2560, 1920},
	AspectWide:      {3840, 1600},
}

// AspectRatios lists accepted values in display order.
func AspectRatios() []AspectRatio {
	return []AspectRatio{AspectSquare, AspectLandscape, AspectPortrait, AspectPhoto, AspectWide, AspectCustom}
}

// ParseAspectRatio reports whether s names a known ratio.
func ParseAspectRatio(s string) (AspectRatio, bool) {
	a := AspectRatio(strings.ToLower(strings.TrimSpace(s)))
	if a == AspectCustom {
		return a, true
	}
	_, ok := presetDimensions[a]
	return a, ok
}

// ResolveDimensions maps an aspect ratio to pixel dimensions. Custom requests
// use the explicit width and height, or the configured defaults. The result is
// always a positive multiple of 64.
func ResolveDimensions(aspect AspectRatio, width, height *int, defaultWidth, defaultHeight int) (int, int) {
	if dims, ok := presetDimensions[aspect]; ok {
		return roundDown(dims[0]), roundDown(dims[1])
	}
	if defaultWidth <= 0 {
		defaultWidth = fallbackFreeSize
	}
	if defaultHeight <= 0 {
		defaultHeight = fallbackFreeSize
	}
	w, h := defaultWidth, defaultHeight
	if width != nil {
		w = *width
	}
	if height != nil {
		h = *height
	}
	return roundDown(w), roundDown(h)
}

func roundDown(v int) int {
	v = v / dimensionStep * dimensionStep
	if v < dimensionStep {
		return dimensionStep
	}
	return v
}
