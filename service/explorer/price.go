package explorer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"
	"github.com/ethereum/go-ethereum/common"
)

const (
	actionNativePrice = "ethdailyprice"
	actionTokenPrice  = "tokenpricehistory"
)

// pricePaths are tried in order; the first one that yields a string or a
// number decides the price.
var pricePaths = []string{
	"$.result[0].ethusd",
	"$.result[0].tokenPriceUSD",
	"$.result.ethusd",
	"$.result.tokenPriceUSD",
	"$.result[0].value",
}

// DailyPrice returns the USD price of the native asset (contract nil) or a
// token on the given UTC day. Transport, HTTP and decoding failures are
// errors. A response without a readable figure yields 0.
func (a *HTTPAPI) DailyPrice(ctx context.Context, contract *common.Address, day time.Time) (float64, error) {
	date := day.UTC().Format(time.DateOnly)

	action := actionNativePrice
	if contract != nil {
		action = actionTokenPrice
	}

	params := url.Values{
		"module":    {"stats"},
		"action":    {action},
		"date":      {date},
		"startdate": {date},
		"enddate":   {date},
		"sort":      {"asc"},
	}
	if contract != nil {
		params.Set("contractaddress", strings.ToLower(contract.Hex()))
	}

	body, err := a.get(ctx, action, params)
	if err != nil {
		return 0, err
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return 0, fmt.Errorf("failed to decode %s response: %w", action, err)
	}

	price, err := ExtractPrice(doc)
	if err != nil {
		a.logger.WarnContext(ctx, "unparseable price, using 0",
			"action", action,
			"date", date,
			"error", err,
		)
		return 0, nil
	}
	return price, nil
}

// ExtractPrice reads the price figure from a decoded price response.
func ExtractPrice(doc any) (float64, error) {
	for _, path := range pricePaths {
		v, err := jsonpath.Get(path, doc)
		if err != nil {
			continue
		}
		if list, ok := v.([]any); ok {
			if len(list) == 0 {
				continue
			}
			v = list[0]
		}
		var f float64
		switch x := v.(type) {
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
			if err != nil {
				return 0, fmt.Errorf("%s: invalid number %q", path, x)
			}
			f = parsed
		case float64:
			f = x
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("%s: non-finite price %v", path, f)
		}
		return f, nil
	}
	return 0, fmt.Errorf("no price figure in response")
}
