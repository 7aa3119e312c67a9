package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

const (
	msgInvalidAssetID = "Invalid asset id."
	msgInvalidName    = "Invalid name."
)

func (s *toolset) validateAddress(_ context.Context, args Args) any {
	return map[string]any{"isValid": IsValidAddress(args.String("address"))}
}

// normalizeBalance renders a balance payload as a decimal string. Nodes answer
// with a bare number, a string or an object carrying "balance"/"available".
func normalizeBalance(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case map[string]any:
		if b, ok := t["balance"]; ok && b != nil {
			return fmt.Sprint(b)
		}
		if b, ok := t["available"]; ok && b != nil {
			return fmt.Sprint(b)
		}
	}
	return "0"
}

// extractNames accepts either a list of name objects, a list of strings or an
// object wrapping such a list under "names".
func extractNames(raw any, max int) []string {
	if m, ok := raw.(map[string]any); ok {
		raw = m["names"]
	}
	list, _ := raw.([]any)
	names := make([]string, 0, min(len(list), max))
	for _, item := range list {
		if len(names) == max {
			break
		}
		switch v := item.(type) {
		case map[string]any:
			if n, ok := v["name"].(string); ok {
				names = append(names, n)
			}
		case string:
			names = append(names, v)
		}
	}
	return names
}

func (s *toolset) accountOverview(ctx context.Context, args Args) any {
	address := args.String("address")
	if !IsValidAddress(address) {
		return errorResult(backend.MsgInvalidAddress)
	}

	info, err := s.api.AddressInfo(ctx, address)
	if err != nil {
		return failure(err, "retrieving account data")
	}

	balance, err := s.api.AddressBalance(ctx, address, 0)
	if err != nil {
		return failure(err, "retrieving account balance")
	}

	// Names are optional for this view; only outages abort it.
	names := []string{}
	raw, err := s.api.NamesByOwner(ctx, address, backend.Page{})
	switch {
	case err == nil:
		names = extractNames(raw, s.limits.MaxNames)
	case errors.Is(err, backend.ErrUnauthorized), errors.Is(err, backend.ErrNodeUnreachable):
		return failure(err, "retrieving names")
	default:
		log.Warn().Str("address", address).Msg("name lookup failed, continuing without names")
	}

	addr := address
	if a, ok := info["address"].(string); ok && a != "" {
		addr = a
	}
	return map[string]any{
		"address":       addr,
		"publicKey":     info["publicKey"],
		"blocksMinted":  toInt(info["blocksMinted"]),
		"level":         toInt(info["level"]),
		"balance":       normalizeBalance(balance),
		"assetBalances": []any{},
		"names":         names,
	}
}

func (s *toolset) balance(ctx context.Context, args Args) any {
	address := args.String("address")
	if !IsValidAddress(address) {
		return errorResult(backend.MsgInvalidAddress)
	}
	assetID, ok, err := args.Int("asset_id")
	if err != nil || assetID < 0 {
		return errorResult(msgInvalidAssetID)
	}
	if !ok {
		assetID = 0
	}

	raw, err := s.api.AddressBalance(ctx, address, assetID)
	if err != nil {
		return failure(err, "retrieving balance")
	}
	return map[string]any{
		"address": address,
		"assetId": assetID,
		"balance": normalizeBalance(raw),
	}
}
