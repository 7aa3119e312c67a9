package tools

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"github.com/QuickMythril/qortal-mcp-server/internal/backend"
)

// Core rejects chat timestamps before this instant.
const minChatTimestamp = 1_500_000_000_000

const (
	defaultChatMessages     = 20
	chatReferenceMinLength  = 4
	chatSignatureMinLength  = 10
	msgInvalidEncoding      = "Invalid encoding."
	msgHasChatRefNotBoolean = "hasChatReference must be boolean."
)

func encodingArg(args Args) (string, bool) {
	if !args.Has("encoding") {
		return "", true
	}
	enc := strings.ToUpper(args.String("encoding"))
	if enc != "BASE58" && enc != "BASE64" {
		return "", false
	}
	return enc, true
}

// chatFilters validates the criteria shared by message listing and counting.
// A query needs either a group id or exactly two involved addresses.
func (s *toolset) chatFilters(args Args) (url.Values, int, map[string]any) {
	q := url.Values{}
	involving := args.Strings("involving")
	hasGroup := args.Has("tx_group_id")

	switch {
	case hasGroup && len(involving) > 0:
		return nil, 0, errorResult("Provide either txGroupId or two involving addresses, not both.")
	case hasGroup:
		id, _, err := args.Int("tx_group_id")
		if err != nil || id < 0 {
			return nil, 0, errorResult(msgInvalidGroupID)
		}
		q.Set("txGroupId", formatInt(id))
	case len(involving) != 2:
		return nil, 0, errorResult("Either txGroupId or two involving addresses are required.")
	default:
		for _, a := range involving {
			if !IsValidAddress(a) {
				return nil, 0, errorResult("Invalid Qortal address in involving filter.")
			}
			q.Add("involving", a)
		}
	}

	for _, key := range []string{"before", "after"} {
		ts, ok, err := args.Int(key)
		if !ok {
			continue
		}
		if err != nil || ts < minChatTimestamp {
			return nil, 0, errorResult("Invalid " + key + " timestamp.")
		}
		q.Set(key, formatInt(ts))
	}

	if args.Has("reference") {
		ref := args.String("reference")
		if !IsBase58(ref, chatReferenceMinLength, 0) {
			return nil, 0, errorResult("Invalid reference.")
		}
		q.Set("reference", ref)
	}
	if args.Has("chat_reference") {
		ref := args.String("chat_reference")
		if !IsBase58(ref, chatReferenceMinLength, 0) {
			return nil, 0, errorResult("Invalid chat reference.")
		}
		q.Set("chatreference", ref)
	}
	hasRef, ok, err := args.Bool("has_chat_reference")
	if err != nil {
		return nil, 0, errorResult(msgHasChatRefNotBoolean)
	}
	if ok {
		q.Set("haschatreference", strconv.FormatBool(hasRef))
	}

	if sender := args.String("sender"); sender != "" {
		if !IsValidAddress(sender) {
			return nil, 0, errorResult(backend.MsgInvalidAddress)
		}
		q.Set("sender", sender)
	}
	enc, ok := encodingArg(args)
	if !ok {
		return nil, 0, errorResult(msgInvalidEncoding)
	}
	if enc != "" {
		q.Set("encoding", enc)
	}

	limit := ClampLimit(args["limit"], min(defaultChatMessages, s.limits.MaxChatMessages), s.limits.MaxChatMessages)
	offset := ClampLimit(args["offset"], 0, s.limits.MaxChatMessages)
	page, err := args.page(limit, offset, "reverse")
	if err != nil {
		return nil, 0, errorResult(err.Error())
	}
	page.Apply(q)
	return q, limit, nil
}

func (s *toolset) normalizeMessage(raw map[string]any) map[string]any {
	return map[string]any{
		"timestamp":     toIntOrNil(raw["timestamp"]),
		"txGroupId":     toIntOrNil(raw["txGroupId"]),
		"sender":        raw["sender"],
		"senderName":    raw["senderName"],
		"recipient":     raw["recipient"],
		"recipientName": raw["recipientName"],
		"chatReference": raw["chatReference"],
		"reference":     raw["reference"],
		"encoding":      raw["encoding"],
		"data":          truncateAny(raw["data"], s.limits.MaxNameDataPreview),
		"isText":        raw["isText"],
		"isEncrypted":   raw["isEncrypted"],
		"signature":     raw["signature"],
	}
}

func (s *toolset) chatMessages(ctx context.Context, args Args) any {
	q, limit, bad := s.chatFilters(args)
	if bad != nil {
		return bad
	}
	raw, err := s.api.ChatMessages(ctx, q)
	if err != nil {
		return failure(err, "retrieving chat messages")
	}
	list, _ := raw.([]any)
	out := make([]map[string]any, 0, min(len(list), limit))
	for _, item := range list {
		if len(out) == limit {
			break
		}
		if m, ok := item.(map[string]any); ok {
			out = append(out, s.normalizeMessage(m))
		}
	}
	return out
}

func (s *toolset) countChatMessages(ctx context.Context, args Args) any {
	q, _, bad := s.chatFilters(args)
	if bad != nil {
		return bad
	}
	n, err := s.api.CountChatMessages(ctx, q)
	if err != nil {
		return failure(err, "counting chat messages")
	}
	return map[string]any{"count": n}
}

func (s *toolset) chatMessage(ctx context.Context, args Args) any {
	sig := args.String("signature")
	if !IsBase58(sig, chatSignatureMinLength, signatureMaxLength) {
		return errorResult(msgInvalidSignature)
	}
	enc, ok := encodingArg(args)
	if !ok {
		return errorResult(msgInvalidEncoding)
	}
	raw, err := s.api.ChatMessage(ctx, sig, enc)
	if err != nil {
		return failure(err, "retrieving chat message")
	}
	return s.normalizeMessage(raw)
}

func (s *toolset) activeChats(ctx context.Context, args Args) any {
	address := args.String("address")
	if !IsValidAddress(address) {
		return errorResult(backend.MsgInvalidAddress)
	}
	q := url.Values{}
	enc, ok := encodingArg(args)
	if !ok {
		return errorResult(msgInvalidEncoding)
	}
	if enc != "" {
		q.Set("encoding", enc)
	}
	hasRef, ok, err := args.Bool("has_chat_reference")
	if err != nil {
		return errorResult(msgHasChatRefNotBoolean)
	}
	if ok {
		q.Set("haschatreference", strconv.FormatBool(hasRef))
	}

	raw, err := s.api.ActiveChats(ctx, address, q)
	if err != nil {
		return failure(err, "retrieving active chats")
	}

	groups := []map[string]any{}
	if list, ok := raw["groups"].([]any); ok {
		for _, item := range list {
			g, ok := item.(map[string]any)
			if !ok {
				continue
			}
			groups = append(groups, map[string]any{
				"groupId":    toIntOrNil(g["groupId"]),
				"groupName":  g["groupName"],
				"timestamp":  toIntOrNil(g["timestamp"]),
				"sender":     g["sender"],
				"senderName": g["senderName"],
				"signature":  g["signature"],
				"data":       truncateAny(g["data"], s.limits.MaxNameDataPreview),
			})
		}
	}
	direct := []map[string]any{}
	if list, ok := raw["direct"].([]any); ok {
		for _, item := range list {
			d, ok := item.(map[string]any)
			if !ok {
				continue
			}
			direct = append(direct, map[string]any{
				"address":    d["address"],
				"name":       d["name"],
				"timestamp":  toIntOrNil(d["timestamp"]),
				"sender":     d["sender"],
				"senderName": d["senderName"],
			})
		}
	}
	return map[string]any{"groups": groups, "direct": direct}
}
