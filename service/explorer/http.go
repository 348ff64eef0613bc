package explorer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/brojonat/arbledger/service/metrics"
	"github.com/ethereum/go-ethereum/common"
)

const (
	// DefaultStartBlock and DefaultEndBlock span the whole chain history.
	DefaultStartBlock = 0
	DefaultEndBlock   = 99999999

	maxErrorBody = 512
)

// emptyPageMessages are the messages the explorer pairs with status "0"
// when a listing simply has no more records.
var emptyPageMessages = []string{
	"No transactions found",
	"No token transfers found",
	"No records found",
}

// HTTPOptions configures the HTTP adapter.
type HTTPOptions struct {
	BaseURL    string // e.g. https://api.arbiscan.io/api
	APIKey     string // optional
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// HTTPAPI talks to an Etherscan-compatible REST endpoint. It implements
// both API and PriceAPI.
type HTTPAPI struct {
	baseURL string
	apiKey  string
	http    *http.Client
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewHTTPAPI creates an HTTP adapter. A nil HTTPClient gets a client with a
// 30 second timeout; a nil Logger discards output.
func NewHTTPAPI(opts HTTPOptions) *HTTPAPI {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &HTTPAPI{
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		http:    client,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// envelope is the response wrapper shared by every explorer endpoint.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func (a *HTTPAPI) ListTransactions(ctx context.Context, address common.Address, page PageParams) ([]NormalTransaction, error) {
	var out []NormalTransaction
	if err := a.list(ctx, StreamTransactions, address, page, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *HTTPAPI) ListTokenTransfers(ctx context.Context, address common.Address, page PageParams) ([]TokenTransferEvent, error) {
	var out []TokenTransferEvent
	if err := a.list(ctx, StreamTokenTransfers, address, page, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// list requests one page of an account listing and decodes the records into out.
func (a *HTTPAPI) list(ctx context.Context, action string, address common.Address, page PageParams, out any) error {
	params := url.Values{}
	params.Set("module", "account")
	params.Set("action", action)
	params.Set("address", strings.ToLower(address.Hex()))
	params.Set("startblock", strconv.Itoa(DefaultStartBlock))
	params.Set("endblock", strconv.Itoa(DefaultEndBlock))
	params.Set("page", strconv.Itoa(page.Page))
	params.Set("offset", strconv.Itoa(page.Offset))
	params.Set("sort", "asc")

	body, err := a.get(ctx, action, params)
	if err != nil {
		return err
	}

	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", action, err)
	}

	if env.Status != "1" {
		if isEmptyPage(env) {
			return nil
		}
		var result string
		_ = json.Unmarshal(env.Result, &result)
		return &APIError{Action: action, Message: env.Message, Result: result}
	}

	if err := json.Unmarshal(env.Result, out); err != nil {
		return fmt.Errorf("failed to decode %s records: %w", action, err)
	}
	return nil
}

func isEmptyPage(env envelope) bool {
	if trimmed := bytes.TrimSpace(env.Result); bytes.Equal(trimmed, []byte("[]")) {
		return true
	}
	for _, msg := range emptyPageMessages {
		if strings.HasPrefix(env.Message, msg) {
			return true
		}
	}
	return false
}

// get performs one GET against the explorer and returns the raw body.
// Non-2xx responses are errors.
func (a *HTTPAPI) get(ctx context.Context, action string, params url.Values) ([]byte, error) {
	if a.apiKey != "" {
		params.Set("apikey", a.apiKey)
	}

	u, err := url.Parse(a.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid explorer URL %q: %w", a.baseURL, err)
	}
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	a.logger.DebugContext(ctx, "calling explorer",
		"action", action,
		"page", params.Get("page"),
		"date", params.Get("date"),
	)

	start := time.Now()
	resp, err := a.http.Do(req)
	if err != nil {
		a.record(action, "error", start)
		return nil, fmt.Errorf("failed to call explorer %s: %w", action, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		a.record(action, "error", start)
		return nil, fmt.Errorf("failed to read explorer %s response: %w", action, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		a.record(action, "error", start)
		snippet := body
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, fmt.Errorf("explorer %s returned status %d: %s", action, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	a.record(action, "success", start)
	return body, nil
}

func (a *HTTPAPI) record(action, status string, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordExplorerRequest(action, status, time.Since(start).Seconds())
	}
}
