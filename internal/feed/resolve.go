package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"razor/pkg/types"
)

// gammaMarket is the subset of the Gamma API's market shape Razor needs to
// resolve a market_id into its ordered token_ids. Narrowly adapted from the
// teacher's market.GammaMarket (internal/market/scanner.go), which carries
// many scoring-only fields Razor has no use for.
type gammaMarket struct {
	ConditionID  string `json:"conditionId"`
	ClobTokenIds string `json:"clobTokenIds"`
}

// ResolveMarketDefs fetches each configured market_id's ordered token_ids
// from the Gamma API, in the same single-endpoint resty-client style as
// the teacher's Scanner construction.
func ResolveMarketDefs(ctx context.Context, gammaBaseURL string, marketIDs []string) ([]types.MarketDef, error) {
	client := resty.New().
		SetBaseURL(gammaBaseURL).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(time.Second)

	defs := make([]types.MarketDef, 0, len(marketIDs))
	for _, marketID := range marketIDs {
		var page []gammaMarket
		resp, err := client.R().
			SetContext(ctx).
			SetQueryParams(map[string]string{"condition_ids": marketID}).
			SetResult(&page).
			Get("/markets")
		if err != nil {
			return nil, fmt.Errorf("resolve market %s: %w", marketID, err)
		}
		if resp.StatusCode() != 200 {
			return nil, fmt.Errorf("resolve market %s: status %d", marketID, resp.StatusCode())
		}
		if len(page) == 0 {
			return nil, fmt.Errorf("resolve market %s: not found", marketID)
		}

		var tokenIDs []string
		if err := json.Unmarshal([]byte(page[0].ClobTokenIds), &tokenIDs); err != nil {
			return nil, fmt.Errorf("resolve market %s: parse clobTokenIds: %w", marketID, err)
		}
		if len(tokenIDs) != 2 && len(tokenIDs) != 3 {
			return nil, fmt.Errorf("resolve market %s: expected 2 or 3 token ids, got %d", marketID, len(tokenIDs))
		}

		defs = append(defs, types.MarketDef{MarketID: marketID, TokenIDs: tokenIDs})
	}
	return defs, nil
}
