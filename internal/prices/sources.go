// Package prices posts a periodic market summary with per-exchange quotes.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const (
	DefaultSummaryURL = "https://api.coinmarketcap.com/v2/ticker/1567/?convert=BTC"
	DefaultBinanceURL = "https://api.binance.com/api/v3/ticker/price?symbol=NANOBTC"
	DefaultKuCoinURL  = "https://api.kucoin.com/api/v1/market/orderbook/level1?symbol=NANO-BTC"
)

// Summary is the market overview, already formatted for display.
type Summary struct {
	BTC       string
	USD       string
	BTCUSD    string
	Volume    string
	MarketCap string
	Rank      string

	PercentChange1h float64
}

// Exchange fetches the last BTC price on one exchange, formatted to eight
// decimals.
type Exchange struct {
	Name  string
	Fetch func(ctx context.Context) (string, error)
}

type Sources struct {
	client *http.Client
	en     *message.Printer
}

func NewSources(client *http.Client) *Sources {
	return &Sources{client: client, en: message.NewPrinter(language.English)}
}

type summaryResponse struct {
	Data struct {
		Rank   float64 `json:"rank"`
		Quotes struct {
			BTC struct {
				Price float64 `json:"price"`
			} `json:"BTC"`
			USD struct {
				Price           float64 `json:"price"`
				Volume24h       float64 `json:"volume_24h"`
				MarketCap       float64 `json:"market_cap"`
				PercentChange1h float64 `json:"percent_change_1h"`
			} `json:"USD"`
		} `json:"quotes"`
	} `json:"data"`
}

// Summary fetches the market overview from url.
func (s *Sources) Summary(ctx context.Context, url string) (Summary, error) {
	var body summaryResponse
	if err := s.getJSON(ctx, url, &body); err != nil {
		return Summary{}, fmt.Errorf("summary: %w", err)
	}

	q := body.Data.Quotes
	var btcusd float64
	if q.BTC.Price != 0 {
		btcusd = q.USD.Price / q.BTC.Price
	}
	return Summary{
		BTC:             strconv.FormatFloat(q.BTC.Price, 'f', 8, 64),
		USD:             strconv.FormatFloat(q.USD.Price, 'f', 2, 64),
		BTCUSD:          s.grouped(btcusd),
		Volume:          s.grouped(q.USD.Volume24h),
		MarketCap:       s.grouped(q.USD.MarketCap),
		Rank:            s.grouped(body.Data.Rank),
		PercentChange1h: q.USD.PercentChange1h,
	}, nil
}

// grouped rounds v and formats it with thousands separators.
func (s *Sources) grouped(v float64) string {
	return s.en.Sprintf("%d", int64(math.Round(v)))
}

// Binance returns the Binance exchange reading url.
func (s *Sources) Binance(url string) Exchange {
	return Exchange{Name: "Binance", Fetch: func(ctx context.Context) (string, error) {
		var body struct {
			Price string `json:"price"`
		}
		if err := s.getJSON(ctx, url, &body); err != nil {
			return "", fmt.Errorf("binance: %w", err)
		}
		return eightDecimals(body.Price)
	}}
}

// KuCoin returns the KuCoin exchange reading url. KuCoin reports failures in
// the body with a code other than 200000.
func (s *Sources) KuCoin(url string) Exchange {
	return Exchange{Name: "KuCoin", Fetch: func(ctx context.Context) (string, error) {
		var body struct {
			Code json.Number `json:"code"`
			Data struct {
				Price string `json:"price"`
			} `json:"data"`
		}
		if err := s.getJSON(ctx, url, &body); err != nil {
			return "", fmt.Errorf("kucoin: %w", err)
		}
		if body.Code.String() != "200000" {
			return "", fmt.Errorf("kucoin: unsuccessful response code %q", body.Code)
		}
		return eightDecimals(body.Data.Price)
	}}
}

func eightDecimals(price string) (string, error) {
	v, err := strconv.ParseFloat(price, 64)
	if err != nil {
		return "", fmt.Errorf("invalid price %q: %w", price, err)
	}
	return strconv.FormatFloat(v, 'f', 8, 64), nil
}

func (s *Sources) getJSON(ctx context.Context, url string, into any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("status %d: %s", resp.StatusCode, snippet)
	}
	if err := json.NewDecoder(resp.Body).Decode(into); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
