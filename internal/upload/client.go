package upload

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/net/http2"

	"snapword/internal/ports"
)

// ErrUploadRejected matches any non-2xx upload response.
var ErrUploadRejected = errors.New("upload rejected")

// maxResponseBody bounds how much of a response is read.
const maxResponseBody = 1 << 20

// StatusError reports a non-2xx response from the upload endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload rejected with status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload rejected with status %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrUploadRejected
}

// Config controls the upload endpoint.
type Config struct {
	Endpoint string
	APIKey   string
	HTTP2    bool
	Timeout  time.Duration
}

// Client posts captured photos and their prompt to the image endpoint.
type Client struct {
	cfg  Config
	fs   afero.Fs
	http *http.Client
}

func NewClient(fs afero.Fs, cfg Config) (*Client, error) {
	cfg.Endpoint = strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if cfg.Endpoint == "" {
		return nil, errors.New("upload endpoint is not configured")
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if cfg.HTTP2 {
		if err := http2.ConfigureTransport(transport); err != nil {
			return nil, fmt.Errorf("configure http2 transport: %w", err)
		}
	}
	return &Client{
		cfg:  cfg,
		fs:   fs,
		http: &http.Client{Transport: transport, Timeout: cfg.Timeout},
	}, nil
}

type response struct {
	Message string `json:"message"`
	Prompt  string `json:"prompt"`
	Items   []struct {
		StoredPath string `json:"stored_path"`
	} `json:"items"`
}

func (c *Client) Upload(ctx context.Context, req ports.UploadRequest) (ports.UploadResult, error) {
	body, contentType, err := c.buildBody(req)
	if err != nil {
		return ports.UploadResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint+"/images", body)
	if err != nil {
		return ports.UploadResult{}, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", contentType)
	httpReq.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		httpReq.Header.Set("X-API-Key", c.cfg.APIKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return ports.UploadResult{}, fmt.Errorf("post image: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return ports.UploadResult{StatusCode: resp.StatusCode}, fmt.Errorf("read upload response: %w", err)
	}
	result := ports.UploadResult{StatusCode: resp.StatusCode}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return result, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(payload))}
	}

	var decoded response
	if err := json.Unmarshal(payload, &decoded); err == nil && decoded.Message != "" {
		result.Message = decoded.Message
	} else {
		result.Message = strings.TrimSpace(string(payload))
	}
	return result, nil
}

func (c *Client) buildBody(req ports.UploadRequest) (*bytes.Buffer, string, error) {
	image, err := afero.ReadFile(c.fs, req.ImageURI)
	if err != nil {
		return nil, "", fmt.Errorf("read image %s: %w", req.ImageURI, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="files"; filename="photo.jpg"`)
	header.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, "", fmt.Errorf("create image part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write image part: %w", err)
	}

	if err := writer.WriteField("user_prompt", WrapPrompt(req.Prompt)); err != nil {
		return nil, "", fmt.Errorf("write prompt field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart body: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}

// WrapPrompt marks the spoken prompt as a user instruction. Empty prompts
// stay empty.
func WrapPrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return ""
	}
	return "<user-instruction>" + prompt + "</user-instruction>"
}
