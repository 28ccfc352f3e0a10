package document

import (
	"bytes"
	"fmt"
	"image"
	"io"
	"strings"

	"socratic_backend/pkg/llm"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
)

// PrepareImage 解码上传的图片，等比缩放到 maxSide 以内并统一转为 JPEG
func PrepareImage(r io.Reader, contentType string, maxSide int) (llm.Image, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return llm.Image{}, fmt.Errorf("%w: read image: %v", ErrExtraction, err)
	}

	var img image.Image
	if strings.EqualFold(contentType, "image/webp") {
		img, err = webp.Decode(bytes.NewReader(data))
	} else {
		img, err = imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	}
	if err != nil {
		return llm.Image{}, fmt.Errorf("%w: decode image: %v", ErrExtraction, err)
	}

	if maxSide > 0 {
		b := img.Bounds()
		if b.Dx() > maxSide || b.Dy() > maxSide {
			img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(85)); err != nil {
		return llm.Image{}, fmt.Errorf("%w: encode image: %v", ErrExtraction, err)
	}
	return llm.Image{MimeType: "image/jpeg", Data: buf.Bytes()}, nil
}
