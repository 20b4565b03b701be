package report

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"

	_ "image/png" // drivers deliver PNG or JPEG captures
)

// maxArtifactWidth caps stored screenshots; anything wider is downscaled.
const maxArtifactWidth = 1024

// SaveScreenshot stores the raw screenshot under dir/assets as a JPEG and
// records its relative path on the report. Wide captures are downscaled to
// keep artifacts small enough to attach anywhere.
func (r *Report) SaveScreenshot(dir string, raw []byte) error {
	if len(raw) == 0 {
		return fmt.Errorf("save screenshot: empty capture")
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("decode screenshot: %w", err)
	}
	if img.Bounds().Dx() > maxArtifactWidth {
		img = imaging.Resize(img, maxArtifactWidth, 0, imaging.Lanczos)
	}

	assets := filepath.Join(dir, "assets")
	if err := os.MkdirAll(assets, 0o755); err != nil {
		return fmt.Errorf("create assets dir: %w", err)
	}
	rel := filepath.Join("assets", r.SessionID+".jpg")

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return fmt.Errorf("encode screenshot: %w", err)
	}
	if err := atomicWrite(filepath.Join(dir, rel), buf.Bytes()); err != nil {
		return err
	}
	r.Screenshot = rel
	return nil
}
