package tools

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

const maxAssetBalanceFilters = 100

func normalizeAsset(raw map[string]any, maxData int) map[string]any {
	return map[string]any{
		"assetId":     toIntOrNil(present(raw, "assetId", "id")),
		"assetName":   pick(raw, "assetName", "name"),
		"owner":       raw["owner"],
		"description": truncateAny(raw["description"], maxData),
		"quantity":    raw["quantity"],
		"isDivisible": toBool(raw["isDivisible"]),
		"data":        truncateAny(raw["data"], maxData),
	}
}

func (s *toolset) listAssets(ctx context.Context, args Args) any {
	limit := ClampLimit(args["limit"], s.limits.MaxNames, s.limits.MaxNames)
	offset := ClampLimit(args["offset"], 0, s.limits.MaxNames)
	page, err := args.page(limit, offset, "reverse")
	if err != nil {
		return errorResult(err.Error())
	}

	raw, err := s.api.Assets(ctx, page)
	if err != nil {
		return failure(err, "listing assets")
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
			out = append(out, normalizeAsset(m, s.limits.MaxNameDataPreview))
		}
	}
	return out
}

func (s *toolset) assetInfo(ctx context.Context, args Args) any {
	var assetID *int64
	if id, ok, err := args.Int("asset_id"); err != nil || (ok && id < 0) {
		return errorResult(msgInvalidAssetID)
	} else if ok {
		assetID = &id
	}
	name := args.String("asset_name")
	if assetID == nil && name == "" {
		return errorResult("assetId or assetName is required.")
	}

	raw, err := s.api.AssetInfo(ctx, assetID, name)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && apiErr.Message == backend.MsgAssetNotFound && assetID != nil {
			return errorResult(msgInvalidAssetID)
		}
		if backend.IsNotFound(err) {
			return errorResult(backend.MsgAssetNotFound)
		}
		return failure(err, "retrieving asset info")
	}
	return normalizeAsset(raw, s.limits.MaxNameDataPreview)
}

var assetBalanceOrderings = map[string]bool{
	"ASSET_BALANCE_ACCOUNT": true,
	"ACCOUNT_ASSET":         true,
	"ASSET_ACCOUNT":         true,
}

func (s *toolset) assetBalances(ctx context.Context, args Args) any {
	addresses := args.Strings("addresses")
	rawIDs := args.Strings("asset_ids")
	if len(addresses) == 0 && len(rawIDs) == 0 {
		return errorResult("At least one address or asset id is required.")
	}
	if len(addresses) > maxAssetBalanceFilters || len(rawIDs) > maxAssetBalanceFilters {
		return errorResult("Too many addresses or asset ids.")
	}

	q := url.Values{}
	for _, a := range addresses {
		if !IsValidAddress(a) {
			return errorResult(backend.MsgInvalidAddress)
		}
		q.Add("address", a)
	}
	for _, raw := range rawIDs {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			return errorResult(msgInvalidAssetID)
		}
		q.Add("assetid", formatInt(id))
	}

	if args.Has("ordering") {
		ordering := strings.ToUpper(args.String("ordering"))
		if !assetBalanceOrderings[ordering] {
			return errorResult("Invalid ordering.")
		}
		q.Set("ordering", ordering)
	}
	excludeZero, ok, err := args.Bool("exclude_zero")
	if err != nil {
		return errorResult(err.Error())
	}
	if ok {
		q.Set("excludeZero", strconv.FormatBool(excludeZero))
	}

	limit := ClampLimit(args["limit"], s.limits.MaxNames, s.limits.MaxNames)
	offset := ClampLimit(args["offset"], 0, s.limits.MaxNames)
	page, err := args.page(limit, offset, "reverse")
	if err != nil {
		return errorResult(err.Error())
	}
	page.Apply(q)

	raw, err := s.api.AssetBalances(ctx, q)
	if err != nil {
		return failure(err, "retrieving asset balances")
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
			"address":   m["address"],
			"assetId":   toIntOrNil(m["assetId"]),
			"assetName": m["assetName"],
			"balance":   normalizeBalance(m["balance"]),
		})
	}
	return out
}
