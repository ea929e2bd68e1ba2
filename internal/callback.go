package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"pangalink/entity"
	"pangalink/internal/codec"
	"pangalink/services"
)

const (
	callbackTimeout   = 10 * time.Second
	callbackBodyLimit = 100 * 1024
	callbackUserAgent = "pangalink-callback"
)

// CallbackClient performs bank to merchant confirmations. Redirects are
// never followed, the first response is what gets recorded.
type CallbackClient struct {
	httpClient *http.Client
	metrics    *Metrics
	logger     services.LogHandler
}

func NewCallbackClient() *CallbackClient {
	return &CallbackClient{
		httpClient: &http.Client{
			Timeout: callbackTimeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *CallbackClient) SetMetrics(metrics *Metrics) {
	c.metrics = metrics
}

func (c *CallbackClient) SetLogger(logger services.LogHandler) {
	c.logger = logger
}

func (c *CallbackClient) Send(ctx context.Context, req *services.CallbackRequest) *entity.AutoResponse {
	start := time.Now()
	response := &entity.AutoResponse{
		Method: req.Method,
		Url:    req.Url,
		Fields: req.Fields,
		Time:   start,
	}
	defer func() {
		response.Duration = time.Since(start).Seconds()
		c.metrics.Callback(response.Status, time.Since(start))
		if c.logger != nil && !response.Status {
			c.logger.Warn(fmt.Sprintf("callback %s %s: %s", req.Method, req.Url, response.Error))
		}
	}()

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = callbackTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	request, err := c.newRequest(ctx, req)
	if err != nil {
		response.Error = err.Error()
		return response
	}
	resp, err := c.httpClient.Do(request)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			response.Error = fmt.Sprintf("no response in %s", timeout)
		} else {
			response.Error = err.Error()
		}
		return response
	}
	defer resp.Body.Close()

	response.StatusCode = resp.StatusCode
	response.Headers = headerFields(resp.Header)
	body, err := io.ReadAll(io.LimitReader(resp.Body, callbackBodyLimit+1))
	if err != nil {
		response.Error = fmt.Sprintf("read response: %v", err)
		return response
	}
	if len(body) > callbackBodyLimit {
		body = append(body[:callbackBodyLimit], " ..."...)
	}
	response.Body = string(body)
	if resp.StatusCode >= http.StatusBadRequest {
		response.Error = fmt.Sprintf("merchant responded with %s", resp.Status)
		return response
	}
	response.Status = true
	return response
}

func (c *CallbackClient) newRequest(ctx context.Context, req *services.CallbackRequest) (*http.Request, error) {
	body, err := codec.EncodeQuery(req.Fields, req.Charset)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	if strings.EqualFold(req.Method, http.MethodGet) {
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, codec.AppendQuery(req.Url, body), nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		request.Header.Set("User-Agent", callbackUserAgent)
		return request, nil
	}
	request, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Url, strings.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	request.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset="+req.Charset)
	request.Header.Set("User-Agent", callbackUserAgent)
	return request, nil
}

func headerFields(header http.Header) entity.Fields {
	keys := make([]string, 0, len(header))
	for key := range header {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	fields := make(entity.Fields, 0, len(keys))
	for _, key := range keys {
		fields = append(fields, entity.Field{Key: key, Value: strings.Join(header[key], ", ")})
	}
	return fields
}
