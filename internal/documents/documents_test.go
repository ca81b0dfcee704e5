package documents

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"testing"

	"github.com/Epistemic-Technology/exam-mcp/models"
)

func TestDetectDocumentType(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		filename string
		expected string
	}{
		{
			name:     "PDF document",
			data:     []byte("%PDF-1.4\nsome pdf content"),
			filename: "exam.pdf",
			expected: TypePDF,
		},
		{
			name:     "PDF with misleading extension",
			data:     []byte("%PDF-1.7\n"),
			filename: "scan.png",
			expected: TypePDF,
		},
		{
			name:     "PNG by extension",
			data:     []byte{0x89, 'P', 'N', 'G'},
			filename: "page1.PNG",
			expected: TypeImage,
		},
		{
			name:     "JPEG by extension",
			data:     []byte{0xFF, 0xD8, 0xFF},
			filename: "photo.jpeg",
			expected: TypeImage,
		},
		{
			name:     "WebP by extension",
			data:     []byte("RIFF"),
			filename: "page.webp",
			expected: TypeImage,
		},
		{
			name:     "Unknown",
			data:     []byte("hello"),
			filename: "notes.txt",
			expected: TypeUnknown,
		},
		{
			name:     "Empty data",
			data:     []byte{},
			filename: "",
			expected: TypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := DetectDocumentType(tt.data, tt.filename)
			if result != tt.expected {
				t.Errorf("DetectDocumentType() = %v, want %v", result, tt.expected)
			}
		})
	}
}

func testImage() image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 30, 20))
	for x := 0; x < 30; x++ {
		img.Set(x, 10, color.Black)
	}
	return img
}

func TestNormalizeRaster_GIFToPNG(t *testing.T) {
	var buf bytes.Buffer
	if err := gif.Encode(&buf, testImage(), nil); err != nil {
		t.Fatalf("failed to encode gif: %v", err)
	}

	data, mimeType := NormalizeRaster(buf.Bytes())
	if mimeType != "image/png" {
		t.Errorf("mimeType = %q, want image/png", mimeType)
	}
	if _, err := png.Decode(bytes.NewReader(data)); err != nil {
		t.Errorf("normalized data is not PNG: %v", err)
	}
}

func TestNormalizeRaster_PNGPassThrough(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}

	data, mimeType := NormalizeRaster(buf.Bytes())
	if mimeType != "image/png" {
		t.Errorf("mimeType = %q, want image/png", mimeType)
	}
	if !bytes.Equal(data, buf.Bytes()) {
		t.Error("PNG input should be returned unchanged")
	}
}

func TestNormalizeRaster_Undecodable(t *testing.T) {
	raw := []byte("definitely not an image")
	data, mimeType := NormalizeRaster(raw)
	if !bytes.Equal(data, raw) {
		t.Error("undecodable input should pass through")
	}
	if mimeType != "text/plain; charset=utf-8" {
		t.Errorf("mimeType = %q", mimeType)
	}
}

func TestImageConfig(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	w, h, format, err := ImageConfig(buf.Bytes())
	if err != nil {
		t.Fatalf("ImageConfig failed: %v", err)
	}
	if w != 30 || h != 20 || format != "png" {
		t.Errorf("ImageConfig = %dx%d %s, want 30x20 png", w, h, format)
	}
}

func TestPageImages_RastersNumberedInOrder(t *testing.T) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage()); err != nil {
		t.Fatalf("failed to encode png: %v", err)
	}
	docs := []models.DocumentData{
		{Data: buf.Bytes(), Type: TypeImage, Filename: "p1.png"},
		{Data: buf.Bytes(), Type: TypeUnknown, Filename: "p2"},
	}

	pages, err := PageImages(docs)
	if err != nil {
		t.Fatalf("PageImages failed: %v", err)
	}
	if len(pages) != 2 {
		t.Fatalf("Expected 2 pages, got %d", len(pages))
	}
	for i, p := range pages {
		if p.Number != i+1 {
			t.Errorf("page %d has Number %d", i, p.Number)
		}
		if p.MIMEType != "image/png" {
			t.Errorf("page %d MIME = %q", i, p.MIMEType)
		}
	}
}

func TestPageImages_BrokenPDF(t *testing.T) {
	docs := []models.DocumentData{{Data: []byte("%PDF-1.4 garbage"), Type: TypePDF, Filename: "bad.pdf"}}
	_, err := PageImages(docs)
	if err == nil {
		t.Fatal("Expected error for malformed PDF")
	}
	var docErr *models.DocumentError
	if !errors.As(err, &docErr) {
		t.Errorf("Expected DocumentError, got %T", err)
	}
}

func TestApplyExamInfo(t *testing.T) {
	result := &models.PipelineResult{Title: "From oracle", Description: "oracle desc"}
	ApplyExamInfo(result, &ExamInfo{Title: "JEE Main 2024 Paper 1"})
	if result.Title != "JEE Main 2024 Paper 1" {
		t.Errorf("Title = %q", result.Title)
	}
	if result.Description != "oracle desc" {
		t.Errorf("Description should be kept when library has none, got %q", result.Description)
	}
}
