// Package intake checks raw user input before it reaches the generation
// pipeline: image count, size and format, and text length ceilings.
package intake

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ongoingai/testbook/internal/prompt"
)

const (
	DefaultMaxImages            = 5
	DefaultMaxImageBytes        = 10 * 1024 * 1024
	DefaultMaxUserStoryChars    = 50000
	DefaultMaxGlossaryChars     = 20000
	DefaultMaxInstructionsChars = 5000
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

var (
	pngSignature  = []byte("\x89PNG\r\n\x1a\n")
	jpegSignature = []byte{0xff, 0xd8, 0xff}
)

// ValidationError reports rejected input. File is set for image failures.
type ValidationError struct {
	Field   string
	File    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("image %q %s", e.File, e.Message)
	}
	if e.Field != "" {
		return fmt.Sprintf("%s %s", e.Field, e.Message)
	}
	return e.Message
}

// Limits are the ceilings applied to one request. Zero values mean no limit.
type Limits struct {
	MaxImages            int
	MaxImageBytes        int64
	MaxUserStoryChars    int
	MaxGlossaryChars     int
	MaxInstructionsChars int
}

func DefaultLimits() Limits {
	return Limits{
		MaxImages:            DefaultMaxImages,
		MaxImageBytes:        DefaultMaxImageBytes,
		MaxUserStoryChars:    DefaultMaxUserStoryChars,
		MaxGlossaryChars:     DefaultMaxGlossaryChars,
		MaxInstructionsChars: DefaultMaxInstructionsChars,
	}
}

// CheckText rejects an empty user story and any text over its ceiling.
// Lengths are counted in characters, not bytes.
func (l Limits) CheckText(userStory, glossary, instructions string) error {
	if strings.TrimSpace(userStory) == "" {
		return &ValidationError{Field: "user story", Message: "is required"}
	}
	fields := []struct {
		name  string
		value string
		max   int
	}{
		{name: "user story", value: userStory, max: l.MaxUserStoryChars},
		{name: "glossary", value: glossary, max: l.MaxGlossaryChars},
		{name: "instructions", value: instructions, max: l.MaxInstructionsChars},
	}
	for _, field := range fields {
		if field.max <= 0 {
			continue
		}
		if n := utf8.RuneCountInString(field.value); n > field.max {
			return &ValidationError{
				Field:   field.name,
				Message: fmt.Sprintf("is %d characters, limit is %d", n, field.max),
			}
		}
	}
	return nil
}

// CheckImages validates every image and returns copies with Format set to the
// detected format and Size set to the payload length.
func (l Limits) CheckImages(images []prompt.Image) ([]prompt.Image, error) {
	if l.MaxImages > 0 && len(images) > l.MaxImages {
		return nil, &ValidationError{
			Field:   "images",
			Message: fmt.Sprintf("has %d files, maximum is %d", len(images), l.MaxImages),
		}
	}

	out := make([]prompt.Image, 0, len(images))
	for _, img := range images {
		checked, err := l.CheckImage(img)
		if err != nil {
			return nil, err
		}
		out = append(out, checked)
	}
	return out, nil
}

// CheckImage enforces the size ceiling and the PNG/JPEG allow-list. A
// declared format must agree with the detected one.
func (l Limits) CheckImage(img prompt.Image) (prompt.Image, error) {
	size := max(img.Size, int64(len(img.Data)))
	if l.MaxImageBytes > 0 && size > l.MaxImageBytes {
		return prompt.Image{}, &ValidationError{
			File:    img.Name,
			Message: fmt.Sprintf("exceeds %s limit", formatBytes(l.MaxImageBytes)),
		}
	}

	detected, ok := DetectFormat(img.Data)
	if !ok {
		return prompt.Image{}, &ValidationError{File: img.Name, Message: "is not a valid PNG or JPEG file"}
	}
	if declared := NormalizeFormat(img.Format); declared != "" && declared != detected {
		return prompt.Image{}, &ValidationError{
			File:    img.Name,
			Message: fmt.Sprintf("is declared as %s but contains %s data", declared, detected),
		}
	}

	img.Format = detected
	img.Size = int64(len(img.Data))
	return img, nil
}

// LoadImage reads an image file, refusing oversized files before reading them.
func (l Limits) LoadImage(path string) (prompt.Image, error) {
	name := filepath.Base(path)
	file, err := os.Open(path)
	if err != nil {
		return prompt.Image{}, &ValidationError{File: name, Message: "could not be read"}
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return prompt.Image{}, &ValidationError{File: name, Message: "could not be read"}
	}
	if l.MaxImageBytes > 0 && info.Size() > l.MaxImageBytes {
		return prompt.Image{}, &ValidationError{
			File:    name,
			Message: fmt.Sprintf("exceeds %s limit", formatBytes(l.MaxImageBytes)),
		}
	}

	reader := io.Reader(file)
	if l.MaxImageBytes > 0 {
		reader = io.LimitReader(file, l.MaxImageBytes+1)
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return prompt.Image{}, &ValidationError{File: name, Message: "could not be read"}
	}

	return l.CheckImage(prompt.Image{
		Name:   name,
		Format: NormalizeFormat(strings.TrimPrefix(filepath.Ext(name), ".")),
		Size:   int64(len(data)),
		Data:   data,
	})
}

// DetectFormat sniffs PNG and JPEG magic bytes.
func DetectFormat(data []byte) (string, bool) {
	switch {
	case bytes.HasPrefix(data, pngSignature):
		return FormatPNG, true
	case bytes.HasPrefix(data, jpegSignature):
		return FormatJPEG, true
	default:
		return "", false
	}
}

// NormalizeFormat maps a declared format or content type to png or jpeg.
// Unknown values are returned lower-cased.
func NormalizeFormat(format string) string {
	format = strings.ToLower(strings.TrimSpace(format))
	format = strings.TrimPrefix(format, "image/")
	switch format {
	case "jpg", "jpeg":
		return FormatJPEG
	default:
		return format
	}
}

// IsValidationError reports whether err is a *ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func formatBytes(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%d byte", n)
}
