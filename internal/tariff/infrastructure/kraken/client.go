package kraken

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	tariff "tariffwatch/internal/tariff/domain"
)

const (
	defaultMaxPages      = 3
	defaultRetryAttempts = 3
	defaultRetryDelay    = 2 * time.Second
	defaultTimeout       = 10 * time.Second
)

var (
	// ErrRateLimited indicates the API answered 429.
	ErrRateLimited = fmt.Errorf("kraken: %w", tariff.ErrRateLimited)
	// ErrNotFound indicates the product or tariff code does not exist.
	ErrNotFound = errors.New("kraken: not found")
	// ErrUnexpectedPayload indicates a response that is not the documented shape.
	ErrUnexpectedPayload = fmt.Errorf("kraken: %w", tariff.ErrUnexpectedFormat)
)

// StatusError is a non-2xx response that is neither 404 nor 429.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("kraken: http %d for %s", e.StatusCode, e.URL)
}

// Client reads unit rates, product metadata and standing charges from a
// Kraken-style tariff API.
type Client struct {
	baseURL       string
	productCode   string
	tariffCode    string
	client        *http.Client
	maxPages      int
	retryAttempts int
	retryDelay    time.Duration
	logger        *log.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.client = hc
		}
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.client.Timeout = timeout
		}
	}
}

// WithMaxPages bounds how many "next" links are followed.
func WithMaxPages(pages int) Option {
	return func(c *Client) {
		if pages > 0 {
			c.maxPages = pages
		}
	}
}

// WithRetry sets attempts per request and the pause between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(c *Client) {
		if attempts > 0 {
			c.retryAttempts = attempts
		}
		if delay >= 0 {
			c.retryDelay = delay
		}
	}
}

// WithLogger enables request logging.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient constructs a client for one product/tariff pair.
func NewClient(baseURL, productCode, tariffCode string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("kraken: empty base url")
	}
	if productCode == "" {
		return nil, errors.New("kraken: empty product code")
	}
	if tariffCode == "" {
		return nil, errors.New("kraken: empty tariff code")
	}
	c := &Client{
		baseURL:       strings.TrimRight(baseURL, "/"),
		productCode:   productCode,
		tariffCode:    tariffCode,
		client:        &http.Client{Timeout: defaultTimeout},
		maxPages:      defaultMaxPages,
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// TariffCode returns the configured tariff code.
func (c *Client) TariffCode() string {
	if c == nil {
		return ""
	}
	return c.tariffCode
}

type unitRatePage struct {
	Count   int           `json:"count"`
	Next    *string       `json:"next"`
	Results *[]rateRecord `json:"results"`
}

type rateRecord struct {
	ValueExcVAT *float64 `json:"value_exc_vat"`
	ValueIncVAT *float64 `json:"value_inc_vat"`
	ValidFrom   string   `json:"valid_from"`
	ValidTo     string   `json:"valid_to"`
}

// FetchUnitRates follows pagination and returns every unit-rate record.
func (c *Client) FetchUnitRates(ctx context.Context) ([]tariff.RawInterval, error) {
	if c == nil {
		return nil, errors.New("kraken: nil client")
	}
	next := c.tariffURL("standard-unit-rates")
	var out []tariff.RawInterval
	for page := 1; next != "" && page <= c.maxPages; page++ {
		var resp unitRatePage
		if err := c.getJSON(ctx, next, &resp); err != nil {
			if page > 1 && errors.Is(err, ErrUnexpectedPayload) {
				c.logf("kraken unit rates page %d ignored: %v", page, err)
				break
			}
			return nil, err
		}
		if resp.Results == nil {
			if page > 1 {
				c.logf("kraken unit rates page %d missing results", page)
				break
			}
			return nil, fmt.Errorf("%w: missing results", ErrUnexpectedPayload)
		}
		for _, item := range *resp.Results {
			out = append(out, tariff.RawInterval{
				Start: item.ValidFrom,
				End:   item.ValidTo,
				Price: item.ValueIncVAT,
			})
		}
		next = ""
		if resp.Next != nil {
			next = *resp.Next
		}
	}
	return out, nil
}

type productResponse struct {
	Code            string  `json:"code"`
	FullName        string  `json:"full_name"`
	DisplayName     string  `json:"display_name"`
	Description     string  `json:"description"`
	IsVariable      bool    `json:"is_variable"`
	IsGreen         bool    `json:"is_green"`
	IsTracker       bool    `json:"is_tracker"`
	IsPrepay        bool    `json:"is_prepay"`
	IsBusiness      bool    `json:"is_business"`
	IsRestricted    bool    `json:"is_restricted"`
	Term            *int    `json:"term"`
	AvailableFrom   *string `json:"available_from"`
	AvailableTo     *string `json:"available_to"`
	TariffsActiveAt *string `json:"tariffs_active_at"`
}

// FetchProduct returns product metadata with the description cleaned.
func (c *Client) FetchProduct(ctx context.Context) (*tariff.Product, error) {
	if c == nil {
		return nil, errors.New("kraken: nil client")
	}
	var resp productResponse
	if err := c.getJSON(ctx, c.productURL(), &resp); err != nil {
		return nil, err
	}
	if resp.Code == "" && resp.FullName == "" && resp.DisplayName == "" {
		return nil, fmt.Errorf("%w: empty product", ErrUnexpectedPayload)
	}
	product := &tariff.Product{
		Code:            resp.Code,
		FullName:        resp.FullName,
		DisplayName:     resp.DisplayName,
		Description:     tariff.CleanDescription(resp.Description),
		IsVariable:      resp.IsVariable,
		IsGreen:         resp.IsGreen,
		IsTracker:       resp.IsTracker,
		IsPrepay:        resp.IsPrepay,
		IsBusiness:      resp.IsBusiness,
		IsRestricted:    resp.IsRestricted,
		AvailableFrom:   optionalInstant(resp.AvailableFrom),
		AvailableTo:     optionalInstant(resp.AvailableTo),
		TariffsActiveAt: optionalInstant(resp.TariffsActiveAt),
	}
	if resp.Term != nil {
		product.TermMonths = *resp.Term
	}
	return product, nil
}

type standingChargePage struct {
	Results []rateRecord `json:"results"`
}

// FetchStandingCharge returns the charge in force at now, or the most
// recent one when none matches.
func (c *Client) FetchStandingCharge(ctx context.Context, now time.Time) (*tariff.StandingCharge, error) {
	if c == nil {
		return nil, errors.New("kraken: nil client")
	}
	var resp standingChargePage
	if err := c.getJSON(ctx, c.tariffURL("standing-charges"), &resp); err != nil {
		return nil, err
	}
	var charges []tariff.StandingCharge
	for _, item := range resp.Results {
		if item.ValueIncVAT == nil {
			continue
		}
		charge := tariff.StandingCharge{
			IncVATPencePerDay: *item.ValueIncVAT,
			ValidFrom:         optionalInstant(&item.ValidFrom),
			ValidTo:           optionalInstant(&item.ValidTo),
		}
		if item.ValueExcVAT != nil {
			charge.ExcVATPencePerDay = *item.ValueExcVAT
		}
		charges = append(charges, charge)
	}
	if len(charges) == 0 {
		return nil, fmt.Errorf("%w: no standing charges", ErrUnexpectedPayload)
	}
	for i := range charges {
		if charges[i].ActiveAt(now) {
			return &charges[i], nil
		}
	}
	return &charges[0], nil
}

func (c *Client) productURL() string {
	return fmt.Sprintf("%s/v1/products/%s/", c.baseURL, url.PathEscape(c.productCode))
}

func (c *Client) tariffURL(resource string) string {
	return fmt.Sprintf("%selectricity-tariffs/%s/%s/", c.productURL(), url.PathEscape(c.tariffCode), resource)
}

func (c *Client) getJSON(ctx context.Context, target string, out any) error {
	var lastErr error
	for attempt := 1; attempt <= c.retryAttempts; attempt++ {
		lastErr = c.doJSON(ctx, target, out)
		if lastErr == nil || !retryable(lastErr) {
			return lastErr
		}
		c.logf("kraken request failed: attempt=%d/%d url=%s err=%v", attempt, c.retryAttempts, target, lastErr)
		if attempt == c.retryAttempts {
			break
		}
		timer := time.NewTimer(c.retryDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}

func (c *Client) doJSON(ctx context.Context, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 300:
		_, _ = io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, URL: target}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrUnexpectedPayload, err)
	}
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrUnexpectedPayload) {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var status *StatusError
	if errors.As(err, &status) {
		return status.StatusCode >= 500
	}
	return true
}

func optionalInstant(value *string) *time.Time {
	if value == nil || *value == "" {
		return nil
	}
	t, err := tariff.ParseInstant(*value)
	if err != nil {
		return nil
	}
	return &t
}

func (c *Client) logf(format string, args ...any) {
	if c.logger != nil {
		c.logger.Printf(format, args...)
	}
}
