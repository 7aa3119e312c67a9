package tools

import (
	"context"
	"errors"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

func (s *toolset) namesByAddress(ctx context.Context, args Args) any {
	address := args.String("address")
	if !IsValidAddress(address) {
		return errorResult(backend.MsgInvalidAddress)
	}
	limit := ClampLimit(args["limit"], s.limits.MaxNames, s.limits.MaxNames)
	page := backend.Page{Limit: &limit}
	if args.Has("offset") {
		offset := ClampLimit(args["offset"], 0, s.limits.MaxNames)
		page.Offset = &offset
	}
	reverse, err := args.optionalBool("reverse")
	if err != nil {
		return errorResult(err.Error())
	}
	page.Reverse = reverse

	raw, err := s.api.NamesByOwner(ctx, address, page)
	if err != nil {
		return failure(err, "retrieving names")
	}
	return map[string]any{"address": address, "names": extractNames(raw, limit)}
}

func (s *toolset) nameInfo(ctx context.Context, args Args) any {
	name := args.String("name")
	if !IsValidName(name) {
		return errorResult(msgInvalidName)
	}

	raw, err := s.api.NameInfo(ctx, name)
	switch {
	case errors.Is(err, backend.ErrNameNotFound), errors.Is(err, backend.ErrAddressNotFound):
		return errorResult(backend.MsgNameNotFound)
	case errors.Is(err, backend.ErrInvalidAddress):
		return errorResult(msgInvalidName)
	case err != nil:
		return failure(err, "retrieving name info")
	}

	resolved := name
	if n, ok := raw["name"].(string); ok && n != "" {
		resolved = n
	}
	return map[string]any{
		"name":      resolved,
		"owner":     raw["owner"],
		"data":      truncateAny(raw["data"], s.limits.MaxNameDataPreview),
		"isForSale": truthy(raw["isForSale"]),
		"salePrice": raw["salePrice"],
	}
}

func (s *toolset) primaryName(ctx context.Context, args Args) any {
	address := args.String("address")
	if !IsValidAddress(address) {
		return errorResult(backend.MsgInvalidAddress)
	}

	raw, err := s.api.PrimaryName(ctx, address)
	if err != nil {
		if backend.IsNotFound(err) {
			return map[string]any{"address": address, "name": nil}
		}
		return failure(err, "retrieving primary name")
	}
	var name any
	if n, ok := raw["name"].(string); ok && n != "" {
		name = n
	}
	return map[string]any{"address": address, "name": name}
}

func normalizeNameEntry(raw map[string]any, maxData int) map[string]any {
	return map[string]any{
		"name":       raw["name"],
		"owner":      raw["owner"],
		"salePrice":  raw["salePrice"],
		"isForSale":  truthy(raw["isForSale"]),
		"data":       truncateAny(raw["data"], maxData),
		"registered": toIntOrNil(raw["registered"]),
	}
}

func (s *toolset) listNames(ctx context.Context, args Args, forSale bool) any {
	limit := ClampLimit(args["limit"], s.limits.MaxNames, s.limits.MaxNames)
	offset := ClampLimit(args["offset"], 0, s.limits.MaxNames)
	page, err := args.page(limit, offset, "reverse")
	if err != nil {
		return errorResult(err.Error())
	}

	var raw any
	if forSale {
		raw, err = s.api.NamesForSale(ctx, page)
	} else {
		var after *int64
		if ts, ok, perr := args.Int("after"); perr != nil || (ok && ts < 0) {
			return errorResult("Invalid after timestamp.")
		} else if ok {
			after = &ts
		}
		raw, err = s.api.AllNames(ctx, after, page)
	}
	if err != nil {
		return failure(err, "listing names")
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
			out = append(out, normalizeNameEntry(m, s.limits.MaxNameDataPreview))
		}
	}
	return out
}

func (s *toolset) namesForSale(ctx context.Context, args Args) any {
	return s.listNames(ctx, args, true)
}

func (s *toolset) allNames(ctx context.Context, args Args) any {
	return s.listNames(ctx, args, false)
}
