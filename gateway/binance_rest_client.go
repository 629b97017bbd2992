package gateway

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

	"github.com/shopspring/decimal"
)

// BinanceRESTClient 币安 U 本位合约 REST 客户端（HMAC 签名），HTTPClient 可注入 httptest。
type BinanceRESTClient struct {
	BaseURL      string
	APIKey       string
	Secret       string
	HTTPClient   *http.Client
	RecvWindowMs int64
	Limiter      RateLimiter
}

// PositionRisk /fapi/v2/positionRisk 的单条记录。
type PositionRisk struct {
	Symbol           string
	PositionSide     string
	PositionAmt      float64
	EntryPrice       float64
	UnrealizedProfit float64
}

// OpenOrder /fapi/v1/openOrders 的单条记录。
type OpenOrder struct {
	OrderID       int64
	ClientOrderID string
	Symbol        string
	Side          string
	Price         float64
	OrigQty       float64
	ExecutedQty   float64
	Status        string
}

// SymbolInfo exchangeInfo 中单个交易对的精度与过滤器。
type SymbolInfo struct {
	Symbol            string
	Status            string
	PricePrecision    int
	QuantityPrecision int
	TickSize          float64
	MinPrice          float64
	MaxPrice          float64
	StepSize          float64
	MinQty            float64
	MaxQty            float64
	MinNotional       float64
}

// LimitOrder 批量下单中的一笔限价单。
type LimitOrder struct {
	Symbol        string
	Side          string
	Price         float64
	Quantity      float64
	TimeInForce   string
	ClientOrderID string
}

// 币安 batchOrders 单次最多 5 笔
const maxBatchOrders = 5

// NewDefaultHTTPClient 提供一个带超时的 http.Client。
func NewDefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// PositionRisk 查询持仓。
func (c *BinanceRESTClient) PositionRisk(ctx context.Context, symbol string) ([]PositionRisk, error) {
	params := url.Values{}
	if symbol != "" {
		params.Set("symbol", symbol)
	}
	var raw []struct {
		Symbol           string `json:"symbol"`
		PositionSide     string `json:"positionSide"`
		PositionAmt      string `json:"positionAmt"`
		EntryPrice       string `json:"entryPrice"`
		UnrealizedProfit string `json:"unRealizedProfit"`
	}
	if err := c.do(ctx, http.MethodGet, "/fapi/v2/positionRisk", params, true, &raw); err != nil {
		return nil, err
	}
	out := make([]PositionRisk, 0, len(raw))
	for _, r := range raw {
		out = append(out, PositionRisk{
			Symbol:           r.Symbol,
			PositionSide:     r.PositionSide,
			PositionAmt:      parseFloat(r.PositionAmt),
			EntryPrice:       parseFloat(r.EntryPrice),
			UnrealizedProfit: parseFloat(r.UnrealizedProfit),
		})
	}
	return out, nil
}

// OpenOrders 查询当前挂单。
func (c *BinanceRESTClient) OpenOrders(ctx context.Context, symbol string) ([]OpenOrder, error) {
	params := url.Values{}
	params.Set("symbol", symbol)
	var raw []struct {
		OrderID       int64  `json:"orderId"`
		ClientOrderID string `json:"clientOrderId"`
		Symbol        string `json:"symbol"`
		Side          string `json:"side"`
		Price         string `json:"price"`
		OrigQty       string `json:"origQty"`
		ExecutedQty   string `json:"executedQty"`
		Status        string `json:"status"`
	}
	if err := c.do(ctx, http.MethodGet, "/fapi/v1/openOrders", params, true, &raw); err != nil {
		return nil, err
	}
	out := make([]OpenOrder, 0, len(raw))
	for _, r := range raw {
		out = append(out, OpenOrder{
			OrderID:       r.OrderID,
			ClientOrderID: r.ClientOrderID,
			Symbol:        r.Symbol,
			Side:          r.Side,
			Price:         parseFloat(r.Price),
			OrigQty:       parseFloat(r.OrigQty),
			ExecutedQty:   parseFloat(r.ExecutedQty),
			Status:        r.Status,
		})
	}
	return out, nil
}

// CancelAll 调用 DELETE /fapi/v1/allOpenOrders 撤销全部挂单。
func (c *BinanceRESTClient) CancelAll(ctx context.Context, symbol string) error {
	params := url.Values{}
	params.Set("symbol", symbol)
	return c.do(ctx, http.MethodDelete, "/fapi/v1/allOpenOrders", params, true, nil)
}

// PlaceBatch 调用 POST /fapi/v1/batchOrders，超过 5 笔时分批提交。
// 单笔被拒时返回 *APIError，已成功的订单号仍按顺序返回。
func (c *BinanceRESTClient) PlaceBatch(ctx context.Context, orders []LimitOrder) ([]string, error) {
	ids := make([]string, 0, len(orders))
	for start := 0; start < len(orders); start += maxBatchOrders {
		end := start + maxBatchOrders
		if end > len(orders) {
			end = len(orders)
		}
		batch, err := c.placeBatch(ctx, orders[start:end])
		ids = append(ids, batch...)
		if err != nil {
			return ids, err
		}
	}
	return ids, nil
}

func (c *BinanceRESTClient) placeBatch(ctx context.Context, orders []LimitOrder) ([]string, error) {
	type item struct {
		Symbol           string `json:"symbol"`
		Side             string `json:"side"`
		Type             string `json:"type"`
		TimeInForce      string `json:"timeInForce"`
		Price            string `json:"price"`
		Quantity         string `json:"quantity"`
		NewClientOrderID string `json:"newClientOrderId,omitempty"`
	}
	items := make([]item, 0, len(orders))
	for _, o := range orders {
		tif := o.TimeInForce
		if tif == "" {
			tif = "GTC"
		}
		items = append(items, item{
			Symbol:           o.Symbol,
			Side:             strings.ToUpper(o.Side),
			Type:             "LIMIT",
			TimeInForce:      tif,
			Price:            decimal.NewFromFloat(o.Price).String(),
			Quantity:         decimal.NewFromFloat(o.Quantity).String(),
			NewClientOrderID: o.ClientOrderID,
		})
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("encode batch orders: %w", err)
	}
	params := url.Values{}
	params.Set("batchOrders", string(payload))

	var resp []struct {
		OrderID int64  `json:"orderId"`
		Code    int    `json:"code"`
		Msg     string `json:"msg"`
	}
	if err := c.do(ctx, http.MethodPost, "/fapi/v1/batchOrders", params, true, &resp); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(resp))
	var rejected []error
	for _, r := range resp {
		if r.Code != 0 && r.OrderID == 0 {
			rejected = append(rejected, &APIError{Status: http.StatusOK, Code: r.Code, Msg: r.Msg})
			continue
		}
		ids = append(ids, strconv.FormatInt(r.OrderID, 10))
	}
	return ids, errors.Join(rejected...)
}

// ExchangeInfo 查询交易对信息；symbol 为空时返回全部。
func (c *BinanceRESTClient) ExchangeInfo(ctx context.Context, symbol string) ([]SymbolInfo, error) {
	var raw struct {
		Symbols []struct {
			Symbol            string `json:"symbol"`
			Status            string `json:"status"`
			PricePrecision    int    `json:"pricePrecision"`
			QuantityPrecision int    `json:"quantityPrecision"`
			Filters           []struct {
				FilterType string `json:"filterType"`
				TickSize   string `json:"tickSize"`
				MinPrice   string `json:"minPrice"`
				MaxPrice   string `json:"maxPrice"`
				StepSize   string `json:"stepSize"`
				MinQty     string `json:"minQty"`
				MaxQty     string `json:"maxQty"`
				Notional   string `json:"notional"`
			} `json:"filters"`
		} `json:"symbols"`
	}
	if err := c.do(ctx, http.MethodGet, "/fapi/v1/exchangeInfo", nil, false, &raw); err != nil {
		return nil, err
	}
	out := make([]SymbolInfo, 0, len(raw.Symbols))
	for _, s := range raw.Symbols {
		if symbol != "" && !strings.EqualFold(s.Symbol, symbol) {
			continue
		}
		info := SymbolInfo{
			Symbol:            s.Symbol,
			Status:            s.Status,
			PricePrecision:    s.PricePrecision,
			QuantityPrecision: s.QuantityPrecision,
		}
		for _, f := range s.Filters {
			switch f.FilterType {
			case "PRICE_FILTER":
				info.TickSize = parseFloat(f.TickSize)
				info.MinPrice = parseFloat(f.MinPrice)
				info.MaxPrice = parseFloat(f.MaxPrice)
			case "LOT_SIZE":
				info.StepSize = parseFloat(f.StepSize)
				info.MinQty = parseFloat(f.MinQty)
				info.MaxQty = parseFloat(f.MaxQty)
			case "MIN_NOTIONAL":
				info.MinNotional = parseFloat(f.Notional)
			}
		}
		out = append(out, info)
	}
	return out, nil
}

func (c *BinanceRESTClient) do(ctx context.Context, method, path string, params url.Values, signed bool, out interface{}) error {
	if c == nil || c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return err
		}
	}
	endpoint := c.BaseURL + path
	if signed {
		query, sig := SignParams(params, c.Secret, c.RecvWindowMs)
		endpoint += "?" + query + "&signature=" + sig
	} else if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	if c.APIKey != "" {
		req.Header.Set("X-MBX-APIKEY", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return connErr(method+" "+path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return connErr(method+" "+path, err)
	}
	if resp.StatusCode >= 500 {
		return connErr(method+" "+path, fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body)))
	}
	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		_ = json.Unmarshal(body, apiErr)
		if apiErr.Msg == "" {
			apiErr.Msg = truncate(body)
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func truncate(b []byte) string {
	const maxLen = 256
	if len(b) > maxLen {
		return string(b[:maxLen]) + "..."
	}
	return string(b)
}
