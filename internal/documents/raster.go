package documents

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// NormalizeRaster converts any decodable raster to PNG. Bytes that cannot be
// decoded are passed through unchanged with a sniffed MIME type.
func NormalizeRaster(data []byte) ([]byte, string) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return data, SniffMIME(data)
	}
	if format == "png" {
		return data, "image/png"
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return data, SniffMIME(data)
	}
	return buf.Bytes(), "image/png"
}

// SniffMIME returns the content type of raw bytes, recognizing PDFs
func SniffMIME(data []byte) string {
	if IsPDF(data) {
		return "application/pdf"
	}
	return http.DetectContentType(data)
}

// ImageConfig returns the pixel dimensions and format name of an encoded image
func ImageConfig(data []byte) (width, height int, format string, err error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, "", err
	}
	return cfg.Width, cfg.Height, format, nil
}
