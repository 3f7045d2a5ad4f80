/*
 * This file is part of Loqa (https://github.com/loqalabs/loqa).
 * Copyright (C) 2025 Loqa Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

package translation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/loqalabs/loqa-captions/internal/config"
	"github.com/loqalabs/loqa-captions/internal/logging"
	"go.uber.org/zap"
)

// ErrTranslation is wrapped by every Fallback cause
var ErrTranslation = errors.New("translation failed")

const maxResponseBytes = 1 << 20

// Result is the outcome of one translation attempt. A Fallback result
// carries the original text so callers have one display path.
type Result struct {
	Text     string
	Fallback bool
	Err      error
}

// Ok wraps a successful translation
func Ok(text string) Result {
	return Result{Text: text}
}

// Fallback wraps the original text with the reason translation was skipped
func Fallback(original string, cause error) Result {
	return Result{Text: original, Fallback: true, Err: cause}
}

// memoryResponse is the MyMemory "get" payload. responseStatus is a number
// on success and occasionally a quoted string on quota errors.
type memoryResponse struct {
	ResponseData struct {
		TranslatedText string `json:"translatedText"`
	} `json:"responseData"`
	ResponseStatus  json.RawMessage `json:"responseStatus"`
	ResponseDetails string          `json:"responseDetails"`
}

// Client translates finalized phrases through a MyMemory-compatible service
type Client struct {
	baseURL      string
	contactEmail string
	httpClient   *http.Client
}

// NewClient creates a translation client
func NewClient(cfg config.TranslationConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("translation URL cannot be empty")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("invalid translation URL: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL:      strings.TrimSuffix(cfg.URL, "/"),
		contactEmail: cfg.ContactEmail,
		httpClient:   &http.Client{Timeout: timeout},
	}, nil
}

// Translate issues a single request. It never returns an error: every
// failure produces a Fallback result holding the original text.
func (c *Client) Translate(ctx context.Context, text, targetLang string) Result {
	if strings.TrimSpace(text) == "" {
		return Fallback(text, fmt.Errorf("%w: empty text", ErrTranslation))
	}

	startTime := time.Now()
	translated, err := c.request(ctx, text, targetLang)
	if err != nil {
		if ctx.Err() != nil {
			// Superseded or deactivated; nobody is waiting for this result.
			return Fallback(text, fmt.Errorf("%w: %v", ErrTranslation, ctx.Err()))
		}
		logging.LogTranslation("fallback",
			zap.String("target_lang", targetLang),
			zap.Int("text_length", len(text)),
			zap.Error(err),
		)
		return Fallback(text, err)
	}

	logging.LogTranslation("complete",
		zap.String("target_lang", targetLang),
		zap.Int("text_length", len(text)),
		zap.Duration("processing_time", time.Since(startTime)),
	)
	return Ok(translated)
}

func (c *Client) request(ctx context.Context, text, targetLang string) (string, error) {
	query := url.Values{}
	query.Set("q", text)
	query.Set("langpair", "auto|"+targetLang)
	if c.contactEmail != "" {
		query.Set("de", c.contactEmail)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/get?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %v", ErrTranslation, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: service unavailable: %v", ErrTranslation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return "", fmt.Errorf("%w: service returned status %d", ErrTranslation, resp.StatusCode)
	}

	var payload memoryResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&payload); err != nil {
		return "", fmt.Errorf("%w: malformed response: %v", ErrTranslation, err)
	}

	status, err := parseStatus(payload.ResponseStatus)
	if err != nil {
		return "", fmt.Errorf("%w: malformed response status: %v", ErrTranslation, err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("%w: response status %d: %s", ErrTranslation, status, payload.ResponseDetails)
	}

	translated := strings.TrimSpace(payload.ResponseData.TranslatedText)
	if translated == "" {
		return "", fmt.Errorf("%w: empty translated text", ErrTranslation)
	}
	return translated, nil
}

func parseStatus(raw json.RawMessage) (int, error) {
	value := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if value == "" {
		return 0, fmt.Errorf("missing")
	}
	return strconv.Atoi(value)
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
