package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"
)

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}
	return c.do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	}, out)
}

func (c *Client) postMultipart(
	ctx context.Context,
	path string,
	fields map[string]string,
	fileField, filename string,
	data []byte,
	out any,
	operation string,
) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("write %s field %s: %w", operation, k, err)
		}
	}
	part, err := mw.CreateFormFile(fileField, filename)
	if err != nil {
		return fmt.Errorf("create %s form file: %w", operation, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("write %s form file: %w", operation, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("close %s form: %w", operation, err)
	}
	body := buf.Bytes()
	contentType := mw.FormDataContentType()

	return c.do(ctx, operation, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}, out)
}

// do sends the request built by newReq through the resilience executor when one is configured.
func (c *Client) do(
	ctx context.Context,
	operation string,
	newReq func(context.Context) (*http.Request, error),
	out any,
) error {
	call := func(ctx context.Context) error {
		req, err := newReq(ctx)
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		if c.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("openai %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return formatHTTPError(operation, resp)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}

	var err error
	if c.executor != nil {
		err = c.executor.Execute(ctx, "openai."+operation, call, classifyOpenAIError)
	} else {
		err = call(ctx)
	}
	return wrapTemporaryIfNeeded("openai "+operation, err)
}

func formatHTTPError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	return &HTTPStatusError{
		Operation:  operation,
		StatusCode: resp.StatusCode,
		Status:     resp.Status,
		Body:       strings.TrimSpace(string(body)),
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// parseRetryAfter understands the delta-seconds form only.
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}
