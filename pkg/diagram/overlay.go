package diagram

import (
	"bytes"
	"context"
	"image"
	stddraw "image/draw"
	_ "image/jpeg"
	"image/png"
	"os"

	xdraw "golang.org/x/image/draw"

	"github.com/voicio/voicepipe/pkg/logging"
)

const (
	overlayWidthFraction = 10
	overlayMargin        = 16
)

// OverlayLogo stamps a logo into the bottom-right corner of a rendered
// diagram, scaled to a tenth of the image width. Branding is best effort:
// any failure is logged and the original image comes back unchanged.
func OverlayLogo(ctx context.Context, imageBytes []byte, logoPath string) []byte {
	log := logging.NewLogger(ctx)

	logoFile, err := os.Open(logoPath)
	if err != nil {
		log.Warnf("failed to open logo %s: %v", logoPath, err)
		return imageBytes
	}
	defer logoFile.Close()

	logo, _, err := image.Decode(logoFile)
	if err != nil {
		log.Warnf("failed to decode logo %s: %v", logoPath, err)
		return imageBytes
	}

	base, err := png.Decode(bytes.NewReader(imageBytes))
	if err != nil {
		log.Warnf("failed to decode rendered diagram: %v", err)
		return imageBytes
	}

	baseBounds := base.Bounds()
	logoWidth := baseBounds.Dx() / overlayWidthFraction
	if logoWidth <= 0 || logo.Bounds().Dx() <= 0 {
		return imageBytes
	}
	logoHeight := logoWidth * logo.Bounds().Dy() / logo.Bounds().Dx()
	if logoHeight <= 0 {
		return imageBytes
	}

	scaled := image.NewRGBA(image.Rect(0, 0, logoWidth, logoHeight))
	xdraw.ApproxBiLinear.Scale(scaled, scaled.Bounds(), logo, logo.Bounds(), xdraw.Over, nil)

	composed := image.NewRGBA(baseBounds)
	stddraw.Draw(composed, baseBounds, base, baseBounds.Min, stddraw.Src)
	target := image.Rect(
		baseBounds.Max.X-logoWidth-overlayMargin,
		baseBounds.Max.Y-logoHeight-overlayMargin,
		baseBounds.Max.X-overlayMargin,
		baseBounds.Max.Y-overlayMargin,
	)
	stddraw.Draw(composed, target, scaled, image.Point{}, stddraw.Over)

	var buf bytes.Buffer
	if err := png.Encode(&buf, composed); err != nil {
		log.Warnf("failed to encode branded diagram: %v", err)
		return imageBytes
	}
	return buf.Bytes()
}
