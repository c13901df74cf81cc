// Package market 对接外部市场行情服务的客户端。
// 引擎通过 pricing service 间接使用，单项查询失败由上层容忍降级。
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

const defaultTimeout = 15 * time.Second

// Client 市场行情客户端
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient 创建市场行情客户端实例
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// PriceQuote 单个类型的行情估价
type PriceQuote struct {
	TypeID    int64   `json:"type_id"`
	Region    string  `json:"region"`
	Location  string  `json:"location,omitempty"`
	Kind      string  `json:"kind"`
	UnitPrice float64 `json:"unit_price"`
}

// EstimatePrice 查询单个类型在指定区域/地点的单价估计。
// quantity 用于服务端按挂单深度加权，行情服务可忽略。
func (c *Client) EstimatePrice(ctx context.Context, typeID int64, region, location, kind string, quantity float64) (*PriceQuote, error) {
	params := url.Values{}
	params.Set("type_id", strconv.FormatInt(typeID, 10))
	params.Set("region", region)
	if location != "" {
		params.Set("location", location)
	}
	params.Set("kind", kind)
	if quantity > 0 {
		params.Set("quantity", strconv.FormatFloat(quantity, 'f', -1, 64))
	}

	reqURL := fmt.Sprintf("%s/v1/prices?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("创建行情请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("请求行情服务失败: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("行情服务错误[%d]: %s (type_id=%d)", resp.StatusCode, string(body), typeID)
	}

	var quote PriceQuote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("解析行情响应失败: %w", err)
	}

	return &quote, nil
}
