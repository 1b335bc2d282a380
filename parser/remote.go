package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// RemoteConfig points at a LlamaParse-compatible conversion service used
// for legacy binary formats.
type RemoteConfig struct {
	APIKey       string        `json:"api_key" yaml:"api_key"`
	BaseURL      string        `json:"base_url" yaml:"base_url"`
	PollInterval time.Duration `json:"poll_interval" yaml:"poll_interval"`
	MaxPolls     int           `json:"max_polls" yaml:"max_polls"`
}

// RemoteParser uploads a file, polls until the conversion job finishes and
// returns the text result.
type RemoteParser struct {
	cfg    RemoteConfig
	client *http.Client
}

func NewRemoteParser(cfg RemoteConfig) *RemoteParser {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.cloud.llamaindex.ai/api/parsing"
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 60
	}
	return &RemoteParser{cfg: cfg, client: &http.Client{Timeout: 60 * time.Second}}
}

func (p *RemoteParser) SupportedFormats() []string { return []string{"doc", "xls", "ppt", "rtf", "odt"} }

func (p *RemoteParser) Parse(ctx context.Context, path string) (*ParseResult, error) {
	if p.cfg.APIKey == "" {
		return nil, errors.New("remote parser API key not configured")
	}
	jobID, err := p.upload(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("uploading to remote parser: %w", err)
	}
	text, err := p.poll(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("remote parse job %s: %w", jobID, err)
	}
	return &ParseResult{
		Pages:    []Page{{Number: 1, Text: text, Method: MethodRemote}},
		Method:   MethodRemote,
		Metadata: map[string]string{"job_id": jobID},
	}, nil
}

func (p *RemoteParser) upload(ctx context.Context, path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, file); err != nil {
		return "", err
	}
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.cfg.BaseURL+"/upload", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("upload failed %d: %s", resp.StatusCode, b)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ID, nil
}

func (p *RemoteParser) poll(ctx context.Context, jobID string) (string, error) {
	url := fmt.Sprintf("%s/job/%s/result/text", p.cfg.BaseURL, jobID)
	for i := 0; i < p.cfg.MaxPolls; i++ {
		t := time.NewTimer(p.cfg.PollInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return "", ctx.Err()
		case <-t.C:
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return "", err
		}
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)

		resp, err := p.client.Do(req)
		if err != nil {
			continue
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		switch resp.StatusCode {
		case http.StatusOK:
			var out struct {
				Text string `json:"text"`
			}
			if err := json.Unmarshal(body, &out); err != nil {
				return string(body), nil
			}
			return out.Text, nil
		case http.StatusAccepted:
		default:
			return "", fmt.Errorf("status %d: %s", resp.StatusCode, body)
		}
	}
	return "", errors.New("timed out waiting for result")
}
