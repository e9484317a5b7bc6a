package tesseract

import (
	"fmt"
	"image"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// Sigmas equivalent to a 5x5 Gaussian kernel and an 11px adaptive threshold block.
	blurSigma      = 1.1
	thresholdSigma = 2.0
	thresholdC     = 2
)

// preparedPath names the preprocessed copy so it never matches the pdftoppm page glob.
func preparedPath(src string) string {
	base := filepath.Base(src)
	return filepath.Join(filepath.Dir(src), "prep-"+strings.TrimSuffix(base, filepath.Ext(base))+".png")
}

// preprocessFile writes a binarised copy of the image at src to dst.
func preprocessFile(src, dst string) error {
	img, err := imaging.Open(src)
	if err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	if err := imaging.Save(binarize(img), dst); err != nil {
		return fmt.Errorf("write preprocessed image: %w", err)
	}
	return nil
}

// binarize converts to grayscale, blurs, applies an adaptive Gaussian threshold and
// removes isolated speckles with a 3x3 majority filter.
func binarize(img image.Image) *image.Gray {
	blurred := imaging.Blur(imaging.Grayscale(img), blurSigma)
	local := imaging.Blur(blurred, thresholdSigma)

	bounds := blurred.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	thresh := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*blurred.Stride + x*4
			if int(blurred.Pix[i]) > int(local.Pix[i])-thresholdC {
				thresh.Pix[y*thresh.Stride+x] = 255
			}
		}
	}
	return majority3(thresh)
}

func majority3(src *image.Gray) *image.Gray {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	out := image.NewGray(src.Rect)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			white, total := 0, 0
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= w || ny >= h {
						continue
					}
					total++
					if src.Pix[ny*src.Stride+nx] == 255 {
						white++
					}
				}
			}
			if white*2 > total {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}
