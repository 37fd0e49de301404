// Package uploads stores user profile images
package uploads

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/memtensor/memchat/pkg/config"
	"github.com/memtensor/memchat/pkg/errors"
	"github.com/memtensor/memchat/pkg/interfaces"
)

// ImageStore uploads an image and returns its public URL
type ImageStore interface {
	Upload(ctx context.Context, filename string, r io.Reader) (string, error)
}

// NoopStore discards uploads and returns an empty URL
type NoopStore struct{}

// Upload returns an empty URL
func (NoopStore) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	return "", nil
}

// CloudinaryStore uploads images through the Cloudinary upload API
type CloudinaryStore struct {
	client  *resty.Client
	config  config.UploadsConfig
	logger  interfaces.Logger
	nowFunc func() time.Time
}

// CloudinaryUploadResponse is the subset of the upload response memchat reads
type CloudinaryUploadResponse struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
	Bytes     int64  `json:"bytes"`
}

type cloudinaryErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewCloudinaryStore creates a Cloudinary-backed image store
func NewCloudinaryStore(cfg config.UploadsConfig, logger interfaces.Logger) *CloudinaryStore {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	client.SetBaseURL(strings.TrimSuffix(cfg.BaseURL, "/"))

	return &CloudinaryStore{
		client:  client,
		config:  cfg,
		logger:  logger,
		nowFunc: time.Now,
	}
}

// Upload sends the image and returns its secure URL
func (s *CloudinaryStore) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, s.config.MaxSizeBytes+1))
	if err != nil {
		return "", errors.NewValidationError("Failed to read uploaded file")
	}
	if int64(len(data)) > s.config.MaxSizeBytes {
		return "", errors.NewValidationError("File too large").
			WithDetail("max_size_bytes", s.config.MaxSizeBytes)
	}
	if len(data) == 0 {
		return "", errors.NewValidationError("Uploaded file is empty")
	}

	params := s.uploadParams()
	params["signature"] = Sign(params, s.config.APISecret)
	params["api_key"] = s.config.APIKey

	resp, err := s.client.R().
		SetContext(ctx).
		SetFormData(params).
		SetFileReader("file", filename, bytes.NewReader(data)).
		SetResult(&CloudinaryUploadResponse{}).
		SetError(&cloudinaryErrorResponse{}).
		Post(fmt.Sprintf("/v1_1/%s/image/upload", s.config.CloudName))
	if err != nil {
		return "", errors.NewExternalErrorWithCause("Image upload failed", err)
	}

	if resp.StatusCode() != http.StatusOK {
		message := resp.String()
		if apiErr, ok := resp.Error().(*cloudinaryErrorResponse); ok && apiErr.Error.Message != "" {
			message = apiErr.Error.Message
		}
		return "", errors.NewExternalErrorWithCause("Image upload failed",
			fmt.Errorf("upload request failed with status %d: %s", resp.StatusCode(), message))
	}

	result := resp.Result().(*CloudinaryUploadResponse)
	url := result.SecureURL
	if url == "" {
		url = result.URL
	}

	s.logger.Debug("Profile image uploaded", map[string]interface{}{
		"public_id": result.PublicID,
		"bytes":     len(data),
	})

	return url, nil
}

func (s *CloudinaryStore) uploadParams() map[string]string {
	params := map[string]string{
		"timestamp": strconv.FormatInt(s.nowFunc().Unix(), 10),
	}
	if s.config.Folder != "" {
		params["folder"] = s.config.Folder
	}
	if s.config.Format != "" {
		params["format"] = s.config.Format
	}
	if s.config.Transformation != "" {
		params["transformation"] = s.config.Transformation
	}
	return params
}

// Sign computes the Cloudinary request signature: the SHA-1 of the sorted
// key=value pairs joined by & followed by the API secret
func Sign(params map[string]string, secret string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		switch k {
		case "file", "api_key", "signature", "resource_type", "cloud_name":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, k+"="+params[k])
	}

	sum := sha1.Sum([]byte(strings.Join(pairs, "&") + secret))
	return hex.EncodeToString(sum[:])
}

// NewImageStore selects the store configured by cfg.Provider
func NewImageStore(cfg config.UploadsConfig, logger interfaces.Logger) ImageStore {
	switch cfg.Provider {
	case "cloudinary":
		return NewCloudinaryStore(cfg, logger)
	default:
		return NoopStore{}
	}
}

var _ ImageStore = NoopStore{}
var _ ImageStore = (*CloudinaryStore)(nil)
