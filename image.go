package openagent

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// ImageDetail controls how much resolution the model spends on an image.
type ImageDetail string

const (
	ImageDetailLow  ImageDetail = "low"
	ImageDetailHigh ImageDetail = "high"
	ImageDetailAuto ImageDetail = "auto"
)

// ImageBlock references an image by http(s) URL or inline data URI.
type ImageBlock struct {
	URL    string      `json:"url"`
	Detail ImageDetail `json:"detail,omitempty"`
}

// NewImageBlock validates url and returns an image block with automatic detail.
func NewImageBlock(url string) (ImageBlock, error) {
	return NewImageBlockWithDetail(url, ImageDetailAuto)
}

// NewImageBlockWithDetail validates url and detail.
func NewImageBlockWithDetail(url string, detail ImageDetail) (ImageBlock, error) {
	if err := validateImageURL(url); err != nil {
		return ImageBlock{}, &ImageError{URL: url, Err: err}
	}
	switch detail {
	case "":
		detail = ImageDetailAuto
	case ImageDetailLow, ImageDetailHigh, ImageDetailAuto:
	default:
		return ImageBlock{}, &ImageError{URL: url, Err: fmt.Errorf("unknown detail level %q", detail)}
	}
	return ImageBlock{URL: url, Detail: detail}, nil
}

// NewImageBlockFromBase64 builds a data URI image block from raw base64 data.
func NewImageBlockFromBase64(data, mimeType string) (ImageBlock, error) {
	if mimeType == "" {
		mimeType = "image/png"
	}
	return NewImageBlock(fmt.Sprintf("data:%s;base64,%s", mimeType, data))
}

func validateImageURL(url string) error {
	switch {
	case url == "":
		return errors.New("empty url")
	case strings.HasPrefix(url, "http://"), strings.HasPrefix(url, "https://"):
		return nil
	case strings.HasPrefix(url, "data:"):
		header, payload, ok := strings.Cut(strings.TrimPrefix(url, "data:"), ",")
		if !ok {
			return errors.New("data uri has no payload")
		}
		mime, enc, _ := strings.Cut(header, ";")
		if !strings.HasPrefix(mime, "image/") {
			return fmt.Errorf("data uri mime type %q is not an image", mime)
		}
		if enc != "base64" {
			return errors.New("data uri must be base64 encoded")
		}
		if payload == "" {
			return errors.New("data uri has empty payload")
		}
		if _, err := base64.StdEncoding.DecodeString(payload); err != nil {
			return fmt.Errorf("data uri payload: %w", err)
		}
		return nil
	default:
		return errors.New("url must use http, https or a data uri")
	}
}
