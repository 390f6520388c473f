package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"

	pub_models "github.com/baalimago/chatmux/pkg/text/models"
)

const DefaultStockURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

type stockArgs struct {
	Query string `json:"query" jsonschema_description:"Ticker symbol of the stock, for example AAPL."`
}

// StockTool looks up the latest quote of a ticker symbol.
type StockTool struct {
	BaseURL string
	client  HTTPDoer
}

var stockSpec = pub_models.Specification{
	Name:        "get_stock",
	Description: "Get the latest price of a stock, including the change since previous close. Input is the ticker symbol.",
	Inputs:      schemaOf[stockArgs](),
}

// Quote is the output of the get_stock tool.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previousClose"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Currency      string  `json:"currency,omitempty"`
	Exchange      string  `json:"exchange,omitempty"`
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency           string  `json:"currency"`
				Symbol             string  `json:"symbol"`
				ExchangeName       string  `json:"exchangeName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
				ChartPreviousClose float64 `json:"chartPreviousClose"`
				PreviousClose      float64 `json:"previousClose"`
			} `json:"meta"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// NewStock returns a stock tool querying baseURL.
func NewStock(baseURL string, client HTTPDoer) *StockTool {
	return &StockTool{BaseURL: baseURL, client: client}
}

func (s *StockTool) Call(ctx context.Context, input pub_models.Input) (string, error) {
	args, err := decodeInput[stockArgs](input)
	if err != nil {
		return "", err
	}
	symbol := strings.ToUpper(strings.TrimSpace(args.Query))
	if symbol == "" {
		return "", fmt.Errorf("query must be a ticker symbol")
	}
	q, err := s.fetch(ctx, symbol)
	if err != nil {
		return "", err
	}
	b, err := json.Marshal(q)
	if err != nil {
		return "", fmt.Errorf("failed to marshal quote: %w", err)
	}
	return string(b), nil
}

func (s *StockTool) fetch(ctx context.Context, symbol string) (Quote, error) {
	base := s.BaseURL
	if base == "" {
		base = DefaultStockURL
	}
	u := strings.TrimSuffix(base, "/") + "/" + url.PathEscape(symbol) + "?interval=1d&range=1d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Quote{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	client := s.client
	if client == nil {
		client = defaultHTTPClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Quote{}, fmt.Errorf("failed to fetch quote: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Quote{}, fmt.Errorf("failed to read quote: %w", err)
	}

	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		if resp.StatusCode != http.StatusOK {
			return Quote{}, fmt.Errorf("bad status: %s", resp.Status)
		}
		return Quote{}, fmt.Errorf("failed to decode quote: %w", err)
	}
	if cr.Chart.Error != nil {
		return Quote{}, fmt.Errorf("quote lookup failed for '%v': %v", symbol, cr.Chart.Error.Description)
	}
	if resp.StatusCode != http.StatusOK {
		return Quote{}, fmt.Errorf("bad status: %s", resp.Status)
	}
	if len(cr.Chart.Result) == 0 {
		return Quote{}, fmt.Errorf("no quote found for '%v'", symbol)
	}

	meta := cr.Chart.Result[0].Meta
	prev := meta.PreviousClose
	if prev == 0 {
		prev = meta.ChartPreviousClose
	}
	q := Quote{
		Symbol:        meta.Symbol,
		Price:         meta.RegularMarketPrice,
		PreviousClose: prev,
		Currency:      meta.Currency,
		Exchange:      meta.ExchangeName,
	}
	if q.Symbol == "" {
		q.Symbol = symbol
	}
	if prev != 0 {
		q.Change = round2(q.Price - prev)
		q.ChangePercent = round2((q.Price - prev) / prev * 100)
	}
	return q, nil
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func (s *StockTool) Specification() pub_models.Specification {
	return stockSpec
}
