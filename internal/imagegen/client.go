package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ghibli-bot/internal/config"
)

// Result is a transformed image and the time the model spent on it.
type Result struct {
	Image   []byte
	Elapsed time.Duration
}

type Client struct {
	BaseURL        string
	APIKey         string
	Prompt         string
	NegativePrompt string
	HTTPClient     *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL:        cfg.Image.URL,
		APIKey:         cfg.Image.APIKey,
		Prompt:         cfg.Image.Prompt,
		NegativePrompt: cfg.Image.NegativePrompt,
		HTTPClient: &http.Client{
			Timeout: cfg.Image.Timeout,
		},
	}
}

func (c *Client) doRequest(ctx context.Context, method, endpoint string, body interface{}) ([]byte, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	url := fmt.Sprintf("%s%s", c.BaseURL, endpoint)
	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if c.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("api error: %s (status: %d)", string(respBody), resp.StatusCode)
	}

	return respBody, nil
}

// Transform sends image to the image-to-image model with the given strength.
func (c *Client) Transform(ctx context.Context, image []byte, strength float64) (*Result, error) {
	reqBody := TransformRequest{
		Image:          base64.StdEncoding.EncodeToString(image),
		Strength:       strength,
		Prompt:         c.Prompt,
		NegativePrompt: c.NegativePrompt,
	}

	start := time.Now()
	resp, err := c.doRequest(ctx, http.MethodPost, "/transform", reqBody)
	if err != nil {
		return nil, err
	}

	var out TransformResponse
	if err := json.Unmarshal(resp, &out); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	img, err := base64.StdEncoding.DecodeString(out.Image)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if len(img) == 0 {
		return nil, fmt.Errorf("api returned an empty image")
	}

	elapsed := time.Duration(out.ElapsedSeconds * float64(time.Second))
	if elapsed == 0 {
		elapsed = time.Since(start)
	}
	return &Result{Image: img, Elapsed: elapsed}, nil
}
