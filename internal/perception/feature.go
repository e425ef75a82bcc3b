package perception

import (
	"errors"
	"fmt"
	"image"
	"math"

	"go.uber.org/zap"
	"golang.org/x/image/draw"

	"github.com/xkilldash9x/vzpilot/api/schemas"
)

// gridSize is the side length of the luminance grid every image is scaled to.
const gridSize = 16

// DefaultMatchThreshold is the distance below which two prints are considered equal.
const DefaultMatchThreshold = 0.5

// ErrUnableToFeaturePrint is returned when a reference image yields no descriptor.
var ErrUnableToFeaturePrint = errors.New("perception: unable to feature print image")

// Descriptor is a mean-centred, unit-length luminance grid.
type Descriptor []float64

// Distance is the Euclidean distance between two descriptors, in 0..2.
func (d Descriptor) Distance(other Descriptor) float64 {
	n := len(d)
	if len(other) < n {
		n = len(other)
	}
	var sum float64
	for i := 0; i < n; i++ {
		diff := d[i] - other[i]
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// FeaturePrint computes the descriptor of img. Empty or uniform images have none.
func FeaturePrint(img image.Image) (Descriptor, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrUnableToFeaturePrint
	}

	grid := image.NewGray(image.Rect(0, 0, gridSize, gridSize))
	draw.ApproxBiLinear.Scale(grid, grid.Bounds(), img, img.Bounds(), draw.Src, nil)

	desc := make(Descriptor, len(grid.Pix))
	var mean float64
	for i, p := range grid.Pix {
		desc[i] = float64(p)
		mean += desc[i]
	}
	mean /= float64(len(desc))

	var norm float64
	for i := range desc {
		desc[i] -= mean
		norm += desc[i] * desc[i]
	}
	norm = math.Sqrt(norm)
	if norm < 1e-9 {
		return nil, ErrUnableToFeaturePrint
	}
	for i := range desc {
		desc[i] /= norm
	}
	return desc, nil
}

// ImageMatcher compares reference images against regions of a frame.
type ImageMatcher struct {
	logger *zap.Logger
}

// NewImageMatcher creates a matcher.
func NewImageMatcher(logger *zap.Logger) *ImageMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImageMatcher{logger: logger.Named("image_matcher")}
}

// Compare prints the reference and the frame region and reports their distance.
// A region that is not entirely inside the frame, or has no descriptor, yields a
// non-matching result with an infinite distance.
func (m *ImageMatcher) Compare(frame *schemas.Frame, region image.Rectangle, ref image.Image, threshold float64) (schemas.MatchResult, error) {
	refPrint, err := FeaturePrint(ref)
	if err != nil {
		return schemas.MatchResult{}, fmt.Errorf("reference image: %w", err)
	}

	noMatch := schemas.MatchResult{Matched: false, Distance: math.Inf(1)}
	if frame == nil {
		return noMatch, nil
	}
	if region.Empty() || !region.In(frame.Bounds()) {
		return noMatch, nil
	}
	live, ok := frame.Crop(region)
	if !ok {
		return noMatch, nil
	}
	livePrint, err := FeaturePrint(live)
	if err != nil {
		m.logger.Debug("Frame region has no feature print", zap.Stringer("region", region))
		return noMatch, nil
	}

	d := refPrint.Distance(livePrint)
	return schemas.MatchResult{Matched: d < threshold, Distance: d}, nil
}

// Matches reports whether ref is visible inside region.
func (m *ImageMatcher) Matches(frame *schemas.Frame, region image.Rectangle, ref image.Image, threshold float64) (bool, error) {
	res, err := m.Compare(frame, region, ref, threshold)
	return res.Matched, err
}

// MatchAt reports whether ref is visible with its top-left corner at point.
// The region takes the reference image's own size.
func (m *ImageMatcher) MatchAt(frame *schemas.Frame, point image.Point, ref image.Image, threshold float64) (bool, error) {
	if ref == nil {
		return false, fmt.Errorf("reference image: %w", ErrUnableToFeaturePrint)
	}
	return m.Matches(frame, RegionAt(point, ref), ref, threshold)
}

// RegionAt is the rectangle ref would occupy with its top-left corner at point.
func RegionAt(point image.Point, ref image.Image) image.Rectangle {
	size := ref.Bounds().Size()
	return image.Rectangle{Min: point, Max: point.Add(size)}
}
