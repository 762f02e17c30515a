// Package yfinance is a market data toolkit backed by Yahoo Finance.
package yfinance

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/KamdynS/agent-playground/tools"
)

// Name is the toolkit name used in agent definitions
const Name = "yfinance"

// Feature names. Each enabled feature exposes exactly one tool.
const (
	FeatureStockPrice             = "stock_price"
	FeatureCompanyInfo            = "company_info"
	FeatureStockFundamentals      = "stock_fundamentals"
	FeatureIncomeStatements       = "income_statements"
	FeatureKeyFinancialRatios     = "key_financial_ratios"
	FeatureAnalystRecommendations = "analyst_recommendations"
	FeatureCompanyNews            = "company_news"
	FeatureTechnicalIndicators    = "technical_indicators"
	FeatureHistoricalPrices       = "historical_prices"
)

// featureOrder fixes the order of Tools()
var featureOrder = []string{
	FeatureStockPrice,
	FeatureCompanyInfo,
	FeatureStockFundamentals,
	FeatureIncomeStatements,
	FeatureKeyFinancialRatios,
	FeatureAnalystRecommendations,
	FeatureCompanyNews,
	FeatureTechnicalIndicators,
	FeatureHistoricalPrices,
}

var (
	validPeriods   = []string{"1d", "5d", "1mo", "3mo", "6mo", "1y", "2y", "5y", "10y", "ytd", "max"}
	validIntervals = []string{"1m", "2m", "5m", "15m", "30m", "60m", "90m", "1h", "1d", "5d", "1wk", "1mo", "3mo"}
)

// Config configures the toolkit. Only stock_price is enabled by default.
type Config struct {
	Features  map[string]bool
	BaseURL   string
	CookieURL string
	Timeout   time.Duration
}

// Toolkit exposes Yahoo Finance data as tools
type Toolkit struct {
	features map[string]bool
	client   *client
}

// New creates the toolkit
func New(cfg Config) (*Toolkit, error) {
	defaults := make(map[string]bool, len(featureOrder))
	for _, f := range featureOrder {
		defaults[f] = f == FeatureStockPrice
	}
	features, err := tools.Features(defaults, cfg.Features)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", Name, err)
	}
	return &Toolkit{
		features: features,
		client:   newClient(cfg.BaseURL, cfg.CookieURL, cfg.Timeout),
	}, nil
}

func (t *Toolkit) Name() string { return Name }

func (t *Toolkit) Features() map[string]bool {
	out := make(map[string]bool, len(t.features))
	for k, v := range t.features {
		out[k] = v
	}
	return out
}

type symbolArgs struct {
	Symbol string `json:"symbol"`
}

type newsArgs struct {
	Symbol     string `json:"symbol"`
	NumStories int    `json:"num_stories"`
}

type historyArgs struct {
	Symbol   string `json:"symbol"`
	Period   string `json:"period"`
	Interval string `json:"interval"`
}

func normalizeSymbol(s string) (string, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return "", errors.New("symbol is required")
	}
	return s, nil
}

var symbolSchema = tools.Object(map[string]any{
	"symbol": tools.Prop("string", "The stock symbol, e.g. NVDA."),
}, "symbol")

func (t *Toolkit) Tools() []tools.Tool {
	var out []tools.Tool
	for _, f := range featureOrder {
		if !t.features[f] {
			continue
		}
		out = append(out, t.tool(f))
	}
	return out
}

func (t *Toolkit) tool(feature string) tools.Tool {
	bySymbol := func(fn func(ctx context.Context, symbol string) (any, error)) func(context.Context, symbolArgs) (any, error) {
		return func(ctx context.Context, in symbolArgs) (any, error) {
			symbol, err := normalizeSymbol(in.Symbol)
			if err != nil {
				return nil, err
			}
			return fn(ctx, symbol)
		}
	}

	switch feature {
	case FeatureStockPrice:
		return tools.NewFunc("get_current_stock_price",
			"Use this function to get the current stock price for a given symbol.",
			symbolSchema, bySymbol(t.CurrentPrice))
	case FeatureCompanyInfo:
		return tools.NewFunc("get_company_info",
			"Use this function to get company information and overview for a given stock symbol.",
			symbolSchema, bySymbol(t.CompanyInfo))
	case FeatureStockFundamentals:
		return tools.NewFunc("get_stock_fundamentals",
			"Use this function to get fundamental data for a given stock symbol.",
			symbolSchema, bySymbol(t.Fundamentals))
	case FeatureIncomeStatements:
		return tools.NewFunc("get_income_statements",
			"Use this function to get income statements for a given stock symbol.",
			symbolSchema, bySymbol(t.IncomeStatements))
	case FeatureKeyFinancialRatios:
		return tools.NewFunc("get_key_financial_ratios",
			"Use this function to get key financial ratios for a given stock symbol.",
			symbolSchema, bySymbol(t.KeyRatios))
	case FeatureAnalystRecommendations:
		return tools.NewFunc("get_analyst_recommendations",
			"Use this function to get analyst recommendations for a given stock symbol.",
			symbolSchema, bySymbol(t.AnalystRecommendations))
	case FeatureCompanyNews:
		return tools.NewFunc("get_company_news",
			"Use this function to get company news and press releases for a given stock symbol.",
			tools.Object(map[string]any{
				"symbol":      tools.Prop("string", "The stock symbol, e.g. NVDA."),
				"num_stories": tools.Prop("integer", "The number of news stories to return (default 3, max 20)."),
			}, "symbol"),
			func(ctx context.Context, in newsArgs) (any, error) {
				symbol, err := normalizeSymbol(in.Symbol)
				if err != nil {
					return nil, err
				}
				return t.CompanyNews(ctx, symbol, in.NumStories)
			})
	case FeatureTechnicalIndicators:
		return tools.NewFunc("get_technical_indicators",
			"Use this function to get technical indicators computed from the last three months of daily prices.",
			symbolSchema, bySymbol(t.TechnicalIndicators))
	default:
		return tools.NewFunc("get_historical_stock_prices",
			"Use this function to get the historical stock price for a given symbol.",
			tools.Object(map[string]any{
				"symbol":   tools.Prop("string", "The stock symbol, e.g. NVDA."),
				"period":   tools.Prop("string", "The period: 1d, 5d, 1mo, 3mo, 6mo, 1y, 2y, 5y, 10y, ytd, max (default 1mo)."),
				"interval": tools.Prop("string", "The interval: 1d, 5d, 1wk, 1mo, 3mo (default 1d)."),
			}, "symbol"),
			func(ctx context.Context, in historyArgs) (any, error) {
				symbol, err := normalizeSymbol(in.Symbol)
				if err != nil {
					return nil, err
				}
				return t.HistoricalPrices(ctx, symbol, in.Period, in.Interval)
			})
	}
}

// CurrentPrice returns the latest market price formatted to four decimals
func (t *Toolkit) CurrentPrice(ctx context.Context, symbol string) (any, error) {
	res, _, err := t.client.chart(ctx, symbol, "1d", "1d")
	if err != nil {
		return nil, fmt.Errorf("fetch current price for %s: %w", symbol, err)
	}
	if res.Meta.RegularMarketPrice == 0 {
		return fmt.Sprintf("Could not fetch current price for %s", symbol), nil
	}
	return fmt.Sprintf("%.4f", res.Meta.RegularMarketPrice), nil
}

type priceModule struct {
	Symbol             string `json:"symbol"`
	LongName           string `json:"longName"`
	ShortName          string `json:"shortName"`
	Currency           string `json:"currency"`
	RegularMarketPrice num    `json:"regularMarketPrice"`
	MarketCap          num    `json:"marketCap"`
}

func (p priceModule) name() string {
	if p.LongName != "" {
		return p.LongName
	}
	return p.ShortName
}

type profileModule struct {
	Sector              string `json:"sector"`
	Industry            string `json:"industry"`
	Website             string `json:"website"`
	City                string `json:"city"`
	Country             string `json:"country"`
	FullTimeEmployees   int    `json:"fullTimeEmployees"`
	LongBusinessSummary string `json:"longBusinessSummary"`
}

type summaryDetailModule struct {
	TrailingPE           num `json:"trailingPE"`
	ForwardPE            num `json:"forwardPE"`
	DividendYield        num `json:"dividendYield"`
	Beta                 num `json:"beta"`
	FiftyTwoWeekHigh     num `json:"fiftyTwoWeekHigh"`
	FiftyTwoWeekLow      num `json:"fiftyTwoWeekLow"`
	FiftyDayAverage      num `json:"fiftyDayAverage"`
	TwoHundredDayAverage num `json:"twoHundredDayAverage"`
	AverageVolume        num `json:"averageVolume"`
}

type keyStatsModule struct {
	PriceToBook     num `json:"priceToBook"`
	TrailingEps     num `json:"trailingEps"`
	ForwardEps      num `json:"forwardEps"`
	EnterpriseValue num `json:"enterpriseValue"`
	PegRatio        num `json:"pegRatio"`
}

type financialDataModule struct {
	CurrentPrice       num    `json:"currentPrice"`
	TargetMeanPrice    num    `json:"targetMeanPrice"`
	RecommendationKey  string `json:"recommendationKey"`
	RecommendationMean num    `json:"recommendationMean"`
	NumberOfAnalysts   num    `json:"numberOfAnalystOpinions"`
	TotalRevenue       num    `json:"totalRevenue"`
	Ebitda             num    `json:"ebitda"`
	FreeCashflow       num    `json:"freeCashflow"`
	TotalCash          num    `json:"totalCash"`
	TotalDebt          num    `json:"totalDebt"`
	GrossMargins       num    `json:"grossMargins"`
	OperatingMargins   num    `json:"operatingMargins"`
	ProfitMargins      num    `json:"profitMargins"`
	ReturnOnEquity     num    `json:"returnOnEquity"`
	ReturnOnAssets     num    `json:"returnOnAssets"`
	DebtToEquity       num    `json:"debtToEquity"`
	CurrentRatio       num    `json:"currentRatio"`
	QuickRatio         num    `json:"quickRatio"`
	RevenueGrowth      num    `json:"revenueGrowth"`
	EarningsGrowth     num    `json:"earningsGrowth"`
}

// CompanyInfo returns a company overview
func (t *Toolkit) CompanyInfo(ctx context.Context, symbol string) (any, error) {
	var (
		price   priceModule
		profile profileModule
		detail  summaryDetailModule
		fin     financialDataModule
	)
	err := t.client.summary(ctx, symbol, map[string]any{
		"price":         &price,
		"assetProfile":  &profile,
		"summaryDetail": &detail,
		"financialData": &fin,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch company info for %s: %w", symbol, err)
	}

	return map[string]any{
	
		"Name":                       price.name(),
		"Symbol":                     symbol,
		"Current Stock Price":        fmt.Sprintf("%s %s", fin.CurrentPrice.Fmt, price.Currency),
		"Market Cap":                 price.MarketCap.Fmt,
		"Sector":                     profile.Sector,
		"Industry":                   profile.Industry,
		"Address":                    strings.Trim(profile.City+", "+profile.Country, ", "),
		"Website":                    profile.Website,
		"Full Time Employees":        profile.FullTimeEmployees,
		"Summary":                    profile.LongBusinessSummary,
		"EBITDA":                     fin.Ebitda.ptr(),
		"Total Revenue":              fin.TotalRevenue.ptr(),
		"Gross Margins":              fin.GrossMargins.ptr(),
		"52 Week Low":                detail.FiftyTwoWeekLow.ptr(),
		"52 Week High":               detail.FiftyTwoWeekHigh.ptr(),
		"50 Day Average":             detail.FiftyDayAverage.ptr(),
		"200 Day Average":            detail.TwoHundredDayAverage.ptr(),
		"Analyst Recommendation":     fin.RecommendationKey,
		"Number Of Analyst Opinions": fin.NumberOfAnalysts.ptr(),
	}, nil
}

// Fundamentals returns valuation fundamentals
func (t *Toolkit) Fundamentals(ctx context.Context, symbol string) (any, error) {
	var (
		price   priceModule
		profile profileModule
		detail  summaryDetailModule
		stats   keyStatsModule
	)
	err := t.client.summary(ctx, symbol, map[string]any{
		"price":                &price,
		"assetProfile":         &profile,
		"summaryDetail":        &detail,
		"defaultKeyStatistics": &stats,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch fundamentals for %s: %w", symbol, err)
	}

	return map[string]any{
		"symbol":         symbol,
		"company_name":   price.name(),
		"sector":         profile.Sector,
		"industry":       profile.Industry,
		"market_cap":     price.MarketCap.ptr(),
		"pe_ratio":       detail.ForwardPE.ptr(),
		"pb_ratio":       stats.PriceToBook.ptr(),
		"dividend_yield": detail.DividendYield.ptr(),
		"eps":            stats.TrailingEps.ptr(),
		"beta":           detail.Beta.ptr(),
		"52_week_high":   detail.FiftyTwoWeekHigh.ptr(),
		"52_week_low":    detail.FiftyTwoWeekLow.ptr(),
	}, nil
}

type incomeStatement struct {
	EndDate          num `json:"endDate"`
	TotalRevenue     num `json:"totalRevenue"`
	CostOfRevenue    num `json:"costOfRevenue"`
	GrossProfit      num `json:"grossProfit"`
	OperatingIncome  num `json:"operatingIncome"`
	Ebit             num `json:"ebit"`
	NetIncome        num `json:"netIncome"`
	ResearchDevelop  num `json:"researchDevelopment"`
	InterestExpense  num `json:"interestExpense"`
	IncomeTaxExpense num `json:"incomeTaxExpense"`
}

// IncomeStatements returns the annual income statement history
func (t *Toolkit) IncomeStatements(ctx context.Context, symbol string) (any, error) {
	var history struct {
		Statements []incomeStatement `json:"incomeStatementHistory"`
	}
	if err := t.client.summary(ctx, symbol, map[string]any{"incomeStatementHistory": &history}); err != nil {
		return nil, fmt.Errorf("fetch income statements for %s: %w", symbol, err)
	}

	out := make([]map[string]any, 0, len(history.Statements))
	for _, s := range history.Statements {
		out = append(out, map[string]any{
			"end_date":             s.EndDate.Fmt,
			"total_revenue":        s.TotalRevenue.ptr(),
			"cost_of_revenue":      s.CostOfRevenue.ptr(),
			"gross_profit":         s.GrossProfit.ptr(),
			"operating_income":     s.OperatingIncome.ptr(),
			"ebit":                 s.Ebit.ptr(),
			"net_income":           s.NetIncome.ptr(),
			"research_development": s.ResearchDevelop.ptr(),
			"interest_expense":     s.InterestExpense.ptr(),
			"income_tax_expense":   s.IncomeTaxExpense.ptr(),
		})
	}
	return out, nil
}

// KeyRatios returns profitability, liquidity and leverage ratios
func (t *Toolkit) KeyRatios(ctx context.Context, symbol string) (any, error) {
	var (
		fin   financialDataModule
		stats keyStatsModule
	)
	err := t.client.summary(ctx, symbol, map[string]any{
		"financialData":        &fin,
		"defaultKeyStatistics": &stats,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch key ratios for %s: %w", symbol, err)
	}

	return map[string]any{
		"symbol":            symbol,
		"gross_margins":     fin.GrossMargins.ptr(),
		"operating_margins": fin.OperatingMargins.ptr(),
		"profit_margins":    fin.ProfitMargins.ptr(),
		"return_on_equity":  fin.ReturnOnEquity.ptr(),
		"return_on_assets":  fin.ReturnOnAssets.ptr(),
		"debt_to_equity":    fin.DebtToEquity.ptr(),
		"current_ratio":     fin.CurrentRatio.ptr(),
		"quick_ratio":       fin.QuickRatio.ptr(),
		"revenue_growth":    fin.RevenueGrowth.ptr(),
		"earnings_growth":   fin.EarningsGrowth.ptr(),
		"peg_ratio":         stats.PegRatio.ptr(),
		"price_to_book":     stats.PriceToBook.ptr(),
	}, nil
}

// Recommendation is one period of analyst ratings
type Recommendation struct {
	Period     string `json:"period"`
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
}

// AnalystRecommendations returns the recommendation trend by period
func (t *Toolkit) AnalystRecommendations(ctx context.Context, symbol string) (any, error) {
	var trend struct {
		Trend []Recommendation `json:"trend"`
	}
	if err := t.client.summary(ctx, symbol, map[string]any{"recommendationTrend": &trend}); err != nil {
		return nil, fmt.Errorf("fetch analyst recommendations for %s: %w", symbol, err)
	}
	if trend.Trend == nil {
		trend.Trend = []Recommendation{}
	}
	return trend.Trend, nil
}

// NewsItem is a single headline
type NewsItem struct {
	Title     string `json:"title"`
	Publisher string `json:"publisher,omitempty"`
	Link      string `json:"link"`
	Published string `json:"published,omitempty"`
}

const (
	defaultNewsStories = 3
	maxNewsStories     = 20
)

// CompanyNews returns up to numStories headlines (default 3, at most 20)
func (t *Toolkit) CompanyNews(ctx context.Context, symbol string, numStories int) (any, error) {
	if numStories <= 0 {
		numStories = defaultNewsStories
	}
	numStories = min(numStories, maxNewsStories)
	resp, err := t.client.news(ctx, symbol, numStories)
	if err != nil {
		return nil, fmt.Errorf("fetch news for %s: %w", symbol, err)
	}

	out := make([]NewsItem, 0, numStories)
	for _, n := range resp.News {
		if len(out) == numStories {
			break
		}
		item := NewsItem{Title: n.Title, Publisher: n.Publisher, Link: n.Link}
		if n.ProviderPublishTime > 0 {
			item.Published = time.Unix(n.ProviderPublishTime, 0).UTC().Format(time.RFC3339)
		}
		out = append(out, item)
	}
	return out, nil
}

// TechnicalIndicators computes indicators over three months of daily closes
func (t *Toolkit) TechnicalIndicators(ctx context.Context, symbol string) (any, error) {
	_, bars, err := t.client.chart(ctx, symbol, "3mo", "1d")
	if err != nil {
		return nil, fmt.Errorf("fetch technical indicators for %s: %w", symbol, err)
	}

	closes := make([]float64, 0, len(bars))
	for _, b := range bars {
		if b.Close != nil {
			closes = append(closes, *b.Close)
		}
	}
	if len(closes) == 0 {
		return nil, fmt.Errorf("no price history for %s", symbol)
	}
	return map[string]any{
		"symbol":     symbol,
		"period":     "3mo",
		"indicators": computeIndicators(closes),
	}, nil
}

// HistoricalPrices returns OHLCV bars for the period and interval
func (t *Toolkit) HistoricalPrices(ctx context.Context, symbol, period, interval string) (any, error) {
	if period == "" {
		period = "1mo"
	}
	if interval == "" {
		interval = "1d"
	}
	if !slices.Contains(validPeriods, period) {
		return nil, fmt.Errorf("invalid period %q", period)
	}
	if !slices.Contains(validIntervals, interval) {
		return nil, fmt.Errorf("invalid interval %q", interval)
	}

	_, bars, err := t.client.chart(ctx, symbol, period, interval)
	if err != nil {
		return nil, fmt.Errorf("fetch historical prices for %s: %w", symbol, err)
	}
	if bars == nil {
		bars = []Bar{}
	}
	return bars, nil
}

var _ tools.Toolkit = (*Toolkit)(nil)
