package tools

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

var foreignBlockchains = map[string]bool{
	"BITCOIN":     true,
	"LITECOIN":    true,
	"DOGECOIN":    true,
	"DIGIBYTE":    true,
	"RAVENCOIN":   true,
	"PIRATECHAIN": true,
}

const maxServiceCode = 65535

func normalizeOffer(raw map[string]any) map[string]any {
	return map[string]any{
		"tradeAddress":    pick(raw, "qortalAtAddress", "tradeAddress"),
		"creator":         pick(raw, "qortalCreator", "creator"),
		"offeringQort":    pick(raw, "qortAmount", "offeringQort"),
		"expectedForeign": pick(raw, "expectedForeignAmount", "expectedForeign"),
		"foreignCurrency": pick(raw, "foreignBlockchain", "foreignCurrency"),
		"mode":            raw["mode"],
		"timestamp":       toIntOrNil(pick(raw, "creationTimestamp", "timestamp")),
	}
}

func (s *toolset) tradeOffers(ctx context.Context, args Args) any {
	chain := strings.ToUpper(args.String("foreign_blockchain"))
	if chain != "" && !foreignBlockchains[chain] {
		return errorResult("Invalid foreign blockchain.")
	}
	limit := ClampLimit(args["limit"], s.limits.MaxTradeOffers, s.limits.MaxTradeOffers)
	offset := ClampLimit(args["offset"], 0, s.limits.MaxTradeOffers)
	page, err := args.page(limit, offset, "reverse")
	if err != nil {
		return errorResult(err.Error())
	}

	raw, err := s.api.TradeOffers(ctx, chain, page)
	if err != nil {
		return failure(err, "retrieving trade offers")
	}
	list, ok := raw.([]any)
	if !ok {
		return unexpectedShape()
	}
	out := make([]map[string]any, 0, min(len(list), limit))
	for _, item := range list {
		if len(out) == limit {
			break
		}
		if m, ok := item.(map[string]any); ok {
			out = append(out, normalizeOffer(m))
		}
	}
	return out
}

func (s *toolset) searchQDN(ctx context.Context, args Args) any {
	address := args.String("address")
	hasService := args.Has("service")
	if address == "" && !hasService {
		return errorResult("At least one of address or service is required.")
	}

	q := url.Values{}
	if address != "" {
		if !IsValidAddress(address) {
			return errorResult(backend.MsgInvalidAddress)
		}
		q.Set("address", address)
	}
	if hasService {
		code, _, err := args.Int("service")
		if err != nil || code < 0 || code > maxServiceCode {
			return errorResult("Invalid service code.")
		}
		q.Set("service", formatInt(code))
	}

	limit := ClampLimit(args["limit"], s.limits.MaxQDNResults, s.limits.MaxQDNResults)
	q.Set("limit", strconv.Itoa(limit))

	raw, err := s.api.SearchQDN(ctx, q)
	if err != nil {
		return failure(err, "searching QDN")
	}
	list, ok := raw.([]any)
	if !ok {
		return unexpectedShape()
	}
	out := make([]map[string]any, 0, min(len(list), limit))
	for _, item := range list {
		if len(out) == limit {
			break
		}
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, map[string]any{
			"signature": m["signature"],
			"publisher": pick(m, "publisher", "name"),
			"service":   m["service"],
			"timestamp": toIntOrNil(pick(m, "timestamp", "created")),
		})
	}
	return out
}
