package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"helix/internal/logger"
)

// Client 访问 OpenRouter 兼容的聊天补全接口（/v1/chat/completions）。
type Client struct {
	BaseURL string
	APIKey  string
	Referer string
	Title   string
	Timeout time.Duration
	// 简易重试（仅用于 429/5xx）：若为 0 则默认重试 2 次
	MaxRetries int

	httpc *http.Client
}

func (c *Client) endpoint() string {
	url := c.BaseURL
	if url == "" {
		url = "https://openrouter.ai/api/v1"
	}
	// 规范化 BaseURL，避免配置里带上了完整的 /chat/completions 导致重复路径
	url = strings.TrimRight(url, "/")
	url = strings.TrimSuffix(url, "/chat/completions")
	return url + "/chat/completions"
}

func (c *Client) client() *http.Client {
	if c.httpc == nil {
		timeout := c.Timeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		c.httpc = &http.Client{Timeout: timeout}
	}
	return c.httpc
}

func (c *Client) maskedHeaders() map[string]string {
	hlog := map[string]string{"Content-Type": "application/json"}
	if c.APIKey != "" {
		tail := c.APIKey
		if len(tail) > 4 {
			tail = tail[len(tail)-4:]
		}
		hlog["Authorization"] = fmt.Sprintf("Bearer ****%s", tail)
	}
	if c.Referer != "" {
		hlog["HTTP-Referer"] = c.Referer
	}
	if c.Title != "" {
		hlog["X-Title"] = c.Title
	}
	return hlog
}

// CreateChatCompletion 发送一次补全请求。
// 非 2xx 一律返回 *HTTPError，上层据此判断是否触发能力降级；
// 仅对 429/5xx 做有限重试（支持 Retry-After）。
func (c *Client) CreateChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	maxRetries := c.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 2
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding chat request failed: %w", err)
	}
	url := c.endpoint()
	logger.Debugf("[AI] 请求: POST %s, model=%s, tools=%d, headers=%v",
		url, req.Model, len(req.Tools), c.maskedHeaders())

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		hreq.Header.Set("Content-Type", "application/json")
		if c.APIKey != "" {
			hreq.Header.Set("Authorization", "Bearer "+c.APIKey)
		}
		if c.Referer != "" {
			hreq.Header.Set("HTTP-Referer", c.Referer)
		}
		if c.Title != "" {
			hreq.Header.Set("X-Title", c.Title)
		}

		resp, err := c.client().Do(hreq)
		if err != nil {
			return nil, err
		}
		raw, rerr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if rerr != nil {
			return nil, rerr
		}
		if resp.StatusCode/100 == 2 {
			var out ChatResponse
			if err := json.Unmarshal(raw, &out); err != nil {
				return nil, fmt.Errorf("decoding chat response failed: %w", err)
			}
			if len(out.Choices) == 0 {
				return nil, fmt.Errorf("empty choices")
			}
			return &out, nil
		}
		herr := &HTTPError{Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
		if retryableStatus(resp.StatusCode) && attempt < maxRetries {
			wait := retryAfter(resp.Header.Get("Retry-After"))
			if wait == 0 {
				// 基本指数退避：0.8s, 1.6s, 3.2s ...
				wait = (800 * time.Millisecond) << attempt
				if wait > 8*time.Second {
					wait = 8 * time.Second
				}
			}
			logger.Warnf("[AI] status=%d，%s 后重试", resp.StatusCode, wait)
			time.Sleep(wait)
			lastErr = herr
			continue
		}
		return nil, herr
	}
	return nil, lastErr
}

func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
