package tools

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

const (
	msgInvalidHeight    = "Invalid height."
	msgInvalidSignature = "Invalid signature."
	signatureMinLength  = 43
	signatureMaxLength  = 200
)

// capList truncates a decoded JSON list to max entries. Non-list payloads
// are reported as an unexpected response.
func capList(raw any, max int) any {
	list, ok := raw.([]any)
	if !ok {
		return unexpectedShape()
	}
	if len(list) > max {
		list = list[:max]
	}
	return list
}

func (s *toolset) blockByHeight(ctx context.Context, args Args) any {
	h, ok, err := args.Int("height")
	if !ok || err != nil || h < 0 {
		return errorResult(msgInvalidHeight)
	}
	raw, err := s.api.BlockByHeight(ctx, h)
	if err != nil {
		return failure(err, "retrieving block by height")
	}
	return raw
}

func signatureArg(args Args) (string, map[string]any) {
	sig := args.String("signature")
	if sig == "" {
		return "", errorResult("Signature is required.")
	}
	if !IsBase58(sig, signatureMinLength, signatureMaxLength) {
		return "", errorResult(msgInvalidSignature)
	}
	return sig, nil
}

func (s *toolset) blockBySignature(ctx context.Context, args Args) any {
	sig, bad := signatureArg(args)
	if bad != nil {
		return bad
	}
	raw, err := s.api.BlockBySignature(ctx, sig)
	if err != nil {
		var apiErr *backend.APIError
		if errors.As(err, &apiErr) && (apiErr.Code == "INVALID_SIGNATURE" || backend.IsNotFound(err)) {
			return errorResult(backend.MsgBlockNotFound)
		}
		return failure(err, "retrieving block")
	}
	return raw
}

func (s *toolset) firstBlock(ctx context.Context, _ Args) any {
	raw, err := s.api.FirstBlock(ctx)
	if err != nil {
		return failure(err, "retrieving first block")
	}
	return raw
}

func (s *toolset) lastBlock(ctx context.Context, _ Args) any {
	raw, err := s.api.LastBlock(ctx)
	if err != nil {
		return failure(err, "retrieving last block")
	}
	return raw
}

func (s *toolset) blockAtTimestamp(ctx context.Context, args Args) any {
	ts, ok, err := args.Int("timestamp")
	if !ok || err != nil || ts < 0 {
		return errorResult("Invalid timestamp.")
	}
	raw, err := s.api.BlockAtTimestamp(ctx, ts)
	if err != nil {
		return failure(err, "retrieving block by timestamp")
	}
	return raw
}

func (s *toolset) blockSummaries(ctx context.Context, args Args) any {
	start, okStart, errStart := args.Int("start")
	end, okEnd, errEnd := args.Int("end")
	if !okStart || !okEnd || errStart != nil || errEnd != nil || start < 0 || end < 0 {
		return errorResult("Invalid start or end height.")
	}
	var count *int
	if args.Has("count") {
		c := ClampLimit(args["count"], s.limits.MaxBlocks, s.limits.MaxBlocks)
		count = &c
	}

	raw, err := s.api.BlockSummaries(ctx, start, end, count)
	if err != nil {
		return failure(err, "retrieving block summaries")
	}
	return capList(raw, s.limits.MaxBlocks)
}

func (s *toolset) blockRange(ctx context.Context, args Args) any {
	h, ok, err := args.Int("height")
	if !ok || err != nil || h < 0 {
		return errorResult(msgInvalidHeight)
	}
	c, ok, err := args.Int("count")
	if !ok || err != nil || c <= 0 {
		return errorResult("Invalid count.")
	}
	count := ClampLimit(c, s.limits.MaxBlocks, s.limits.MaxBlocks)
	reverse, err := args.optionalBool("reverse")
	if err != nil {
		return errorResult(err.Error())
	}

	raw, err := s.api.BlockRange(ctx, h, count, reverse)
	if err != nil {
		return failure(err, "retrieving block range")
	}
	return capList(raw, count)
}

func (s *toolset) transactionBySignature(ctx context.Context, args Args) any {
	sig, bad := signatureArg(args)
	if bad != nil {
		return bad
	}
	raw, err := s.api.TransactionBySignature(ctx, sig)
	if err != nil {
		if backend.IsNotFound(err) {
			return errorResult("Transaction not found.")
		}
		return failure(err, "retrieving transaction")
	}
	return raw
}

// Core refuses unfiltered searches above this many results.
const unfilteredSearchMax = 20

func (s *toolset) searchTransactions(ctx context.Context, args Args) any {
	q := url.Values{}

	status := ""
	if args.Has("confirmation_status") {
		status = strings.ToUpper(args.String("confirmation_status"))
		switch status {
		case "CONFIRMED", "UNCONFIRMED", "BOTH":
			q.Set("confirmationStatus", status)
		default:
			return errorResult("Invalid confirmation status.")
		}
	}

	for _, key := range []string{"start_block", "block_limit"} {
		v, ok, err := args.Int(key)
		if err != nil {
			return errorResult("Invalid " + strings.ReplaceAll(key, "_", " ") + ".")
		}
		if !ok {
			continue
		}
		if status != "CONFIRMED" {
			return errorResult("Block range requires confirmationStatus=CONFIRMED.")
		}
		if key == "start_block" {
			q.Set("startBlock", formatInt(v))
		} else {
			q.Set("blockLimit", formatInt(v))
		}
	}

	txTypes := args.Strings("tx_types")
	for _, t := range txTypes {
		q.Add("txType", strings.ToUpper(t))
	}
	address := args.String("address")
	if address != "" {
		if !IsValidAddress(address) {
			return errorResult(backend.MsgInvalidAddress)
		}
		q.Set("address", address)
	}

	if requested, ok, err := args.Int("limit"); err == nil && ok && len(txTypes) == 0 && address == "" && requested > unfilteredSearchMax {
		return errorResult("txType or address is required when limit exceeds 20.")
	}
	limit := ClampLimit(args["limit"], unfilteredSearchMax, s.limits.MaxTransactions)
	offset := ClampLimit(args["offset"], 0, s.limits.MaxTransactions)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	reverse, err := args.optionalBool("reverse")
	if err != nil {
		return errorResult(err.Error())
	}
	if reverse != nil {
		q.Set("reverse", strconv.FormatBool(*reverse))
	}

	raw, err := s.api.SearchTransactions(ctx, q)
	if err != nil {
		return failure(err, "searching transactions")
	}
	return capList(raw, limit)
}
