package diagram

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/voicio/voicepipe/pkg/logging"
	"github.com/voicio/voicepipe/pkg/model"
	"github.com/voicio/voicepipe/pkg/prompts"
)

const (
	fallbackWidth  = 900
	fallbackHeight = 1600

	fallbackMarginX   = 40
	fallbackMarginY   = 60
	fallbackLineStep  = 18
	fallbackWrapWidth = 110
)

// Fallback synthesizes a placeholder image for a diagram that could not be
// rendered: localized header and failure text, the intended title, the
// captured failure detail, and the body that failed, so the result is
// self-describing. It never fails; the caller always gets image bytes back.
func Fallback(ctx context.Context, language model.Language, title string, detail string, body string) []byte {
	img := image.NewRGBA(image.Rect(0, 0, fallbackWidth, fallbackHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	lines := []string{prompts.DiagramHeader(language)}
	if title != "" {
		lines = append(lines, title)
	}
	lines = append(lines, "")
	lines = append(lines, strings.Split(prompts.DiagramFailureText(language), "\n")...)
	lines = append(lines, "")
	if detail != "" {
		for _, detailLine := range strings.Split(detail, "\n") {
			lines = append(lines, wrapLine(detailLine, fallbackWrapWidth)...)
		}
		lines = append(lines, "")
	}
	for _, bodyLine := range strings.Split(body, "\n") {
		lines = append(lines, wrapLine(bodyLine, fallbackWrapWidth)...)
	}

	drawer := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
	}

	y := fallbackMarginY
	for _, line := range lines {
		if y > fallbackHeight-fallbackMarginY {
			break
		}
		drawer.Dot = fixed.P(fallbackMarginX, y)
		drawer.DrawString(line)
		y += fallbackLineStep
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		logging.NewLogger(ctx).Errorf("error: %v", err)
	}
	return buf.Bytes()
}

func wrapLine(line string, width int) []string {
	runes := []rune(line)
	if len(runes) <= width {
		return []string{line}
	}

	var wrapped []string
	for len(runes) > width {
		wrapped = append(wrapped, string(runes[:width]))
		runes = runes[width:]
	}
	if len(runes) > 0 {
		wrapped = append(wrapped, string(runes))
	}
	return wrapped
}
