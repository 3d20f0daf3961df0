package inference

import (
	"fmt"
	"image"

	"github.com/nfnt/resize"
)

// PrepareImage converts an image into a CHW float32 buffer scaled to [0, 1].
//
// Arguments:
//   - img: The image to prepare.
//   - width: Target width in pixels.
//   - height: Target height in pixels.
//   - dst: The destination buffer, at least 3*width*height floats.
//
// Returns:
//   - error: An error if the destination is too small.
func PrepareImage(img image.Image, width, height int, dst []float32) error {
	channelSize := width * height
	if len(dst) < channelSize*3 {
		return fmt.Errorf("destination only holds %d floats, needs %d", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	img = resize.Resize(uint(width), uint(height), img, resize.Lanczos3)
	bounds := img.Bounds()

	i := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
