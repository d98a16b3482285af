package util

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"os"

	"github.com/corona10/goimagehash"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var ErrUndecodableImage = errors.New("undecodable image")

// Comparator scores how different two images are, from 0 (same) to 100.
// A Reference is prepared once for the image being looked up and then
// compared against every archived image.
type Comparator interface {
	Reference(a image.Image) (Reference, error)
}

type Reference interface {
	// Mismatch may stop as soon as the score exceeds returnEarly (when > 0)
	// and return the partial score, which is then already above it.
	Mismatch(b image.Image, returnEarly float64) (float64, error)
}

func Compare(c Comparator, a, b image.Image, returnEarly float64) (float64, error) {
	ref, err := c.Reference(a)
	if err != nil {
		return 0, err
	}
	return ref.Mismatch(b, returnEarly)
}

// PixelComparator compares luminance only, after scaling both images to the
// size of the first (longest side capped at MaxSide). A pixel mismatches when
// the brightness delta reaches Tolerance.
type PixelComparator struct {
	MaxSide   int
	Tolerance uint8
}

type pixelReference struct {
	gray      *image.Gray
	tolerance int
}

func (c PixelComparator) Reference(a image.Image) (Reference, error) {
	b := a.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("%w: empty bounds", ErrUndecodableImage)
	}
	w, h := fitWithin(b.Dx(), b.Dy(), c.MaxSide)
	tolerance := int(c.Tolerance)
	if tolerance == 0 {
		tolerance = 1
	}
	return &pixelReference{gray: toGray(a, w, h), tolerance: tolerance}, nil
}

func (r *pixelReference) Mismatch(b image.Image, returnEarly float64) (float64, error) {
	if b.Bounds().Empty() {
		return 0, fmt.Errorf("%w: empty bounds", ErrUndecodableImage)
	}
	bounds := r.gray.Bounds()
	other := toGray(b, bounds.Dx(), bounds.Dy())
	total := float64(bounds.Dx() * bounds.Dy())
	mismatched := 0
	for y := 0; y < bounds.Dy(); y++ {
		rowA := r.gray.Pix[y*r.gray.Stride : y*r.gray.Stride+bounds.Dx()]
		rowB := other.Pix[y*other.Stride : y*other.Stride+bounds.Dx()]
		for x := range rowA {
			delta := int(rowA[x]) - int(rowB[x])
			if delta < 0 {
				delta = -delta
			}
			if delta >= r.tolerance {
				mismatched++
			}
		}
		if returnEarly > 0 {
			if score := float64(mismatched) * 100 / total; score > returnEarly {
				return score, nil
			}
		}
	}
	return float64(mismatched) * 100 / total, nil
}

// HashComparator scores by perception hash: the Hamming distance between
// the 64-bit hashes as a percentage.
type HashComparator struct{}

type hashReference struct {
	hash *goimagehash.ImageHash
}

func (HashComparator) Reference(a image.Image) (Reference, error) {
	hash, err := goimagehash.PerceptionHash(a)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	return &hashReference{hash: hash}, nil
}

func (r *hashReference) Mismatch(b image.Image, _ float64) (float64, error) {
	hash, err := goimagehash.PerceptionHash(b)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUndecodableImage, err)
	}
	distance, err := r.hash.Distance(hash)
	if err != nil {
		return 0, err
	}
	return float64(distance) * 100 / 64, nil
}

func fitWithin(w, h, maxSide int) (int, int) {
	if maxSide <= 0 || (w <= maxSide && h <= maxSide) {
		return w, h
	}
	if w >= h {
		return maxSide, max(1, h*maxSide/w)
	}
	return max(1, w*maxSide/h), maxSide
}

func toGray(src image.Image, w, h int) *image.Gray {
	dst := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)
	return dst
}

// DecodeFile decodes a jpeg, png, gif or webp file.
func DecodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUndecodableImage, path, err)
	}
	return img, nil
}

// DecodeFileConfig reads only the dimensions of an image file.
func DecodeFileConfig(path string) (width, height int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", ErrUndecodableImage, path, err)
	}
	return cfg.Width, cfg.Height, nil
}
