package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Page carries the optional paging arguments most list endpoints accept.
type Page struct {
	Limit   *int
	Offset  *int
	Reverse *bool
}

func (p Page) values() url.Values {
	q := url.Values{}
	p.Apply(q)
	return q
}

// Apply sets the paging parameters that are present on q.
func (p Page) Apply(q url.Values) {
	if p.Limit != nil {
		q.Set("limit", strconv.Itoa(*p.Limit))
	}
	if p.Offset != nil {
		q.Set("offset", strconv.Itoa(*p.Offset))
	}
	if p.Reverse != nil {
		q.Set("reverse", strconv.FormatBool(*p.Reverse))
	}
}

func seg(s string) string {
	return url.PathEscape(s)
}

func (c *Client) getObject(ctx context.Context, path string, q url.Values) (map[string]any, error) {
	v, err := c.Get(ctx, path, q, ShapeObject)
	if err != nil {
		return nil, err
	}
	return v.(map[string]any), nil
}

func (c *Client) getAny(ctx context.Context, path string, q url.Values) (any, error) {
	return c.Get(ctx, path, q, ShapeAny)
}

func (c *Client) getText(ctx context.Context, path string, q url.Values) (string, error) {
	v, err := c.Get(ctx, path, q, ShapeText)
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// NodeStatus returns synchronization and connectivity state.
func (c *Client) NodeStatus(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, "/admin/status", nil)
}

// NodeInfo returns version and identity details.
func (c *Client) NodeInfo(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, "/admin/info", nil)
}

// NodeSummary returns transaction and block counters for the last day.
func (c *Client) NodeSummary(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, "/admin/summary", nil)
}

// NodeUptime returns the uptime in milliseconds as reported, verbatim.
func (c *Client) NodeUptime(ctx context.Context) (string, error) {
	return c.getText(ctx, "/admin/uptime", nil)
}

// BlockHeight returns the chain height. Nodes answer with either a bare
// number or an object carrying "height".
func (c *Client) BlockHeight(ctx context.Context) (int64, error) {
	v, err := c.getAny(ctx, "/blocks/height", nil)
	if err != nil {
		return 0, err
	}
	if m, ok := v.(map[string]any); ok {
		v = m["height"]
	}
	h, ok := AsInt64(v)
	if !ok {
		return 0, unexpected(200, fmt.Errorf("height %v is not an integer", v))
	}
	return h, nil
}

// AddressInfo returns base account information.
func (c *Client) AddressInfo(ctx context.Context, address string) (map[string]any, error) {
	return c.getObject(ctx, "/addresses/"+seg(address), nil)
}

// AddressBalance returns an address balance for one asset (0 is QORT).
func (c *Client) AddressBalance(ctx context.Context, address string, assetID int64) (any, error) {
	q := url.Values{"assetId": {strconv.FormatInt(assetID, 10)}}
	return c.getAny(ctx, "/addresses/balance/"+seg(address), q)
}

// NamesByOwner lists names registered to address.
func (c *Client) NamesByOwner(ctx context.Context, address string, page Page) (any, error) {
	return c.getAny(ctx, "/names/address/"+seg(address), page.values())
}

// NameInfo returns one registered name.
func (c *Client) NameInfo(ctx context.Context, name string) (map[string]any, error) {
	return c.getObject(ctx, "/names/"+seg(name), nil)
}

// PrimaryName returns the primary name of address.
func (c *Client) PrimaryName(ctx context.Context, address string) (map[string]any, error) {
	return c.getObject(ctx, "/names/primary/"+seg(address), nil)
}

// AllNames lists registered names, optionally only those updated after a
// timestamp.
func (c *Client) AllNames(ctx context.Context, after *int64, page Page) (any, error) {
	q := page.values()
	if after != nil {
		q.Set("after", strconv.FormatInt(*after, 10))
	}
	return c.getAny(ctx, "/names", q)
}

// NamesForSale lists names currently for sale.
func (c *Client) NamesForSale(ctx context.Context, page Page) (any, error) {
	return c.getAny(ctx, "/names/forsale", page.values())
}

// BlockByHeight returns the block at height.
func (c *Client) BlockByHeight(ctx context.Context, height int64) (map[string]any, error) {
	return c.getObject(ctx, "/blocks/byheight/"+strconv.FormatInt(height, 10), nil)
}

// BlockBySignature returns the block with signature.
func (c *Client) BlockBySignature(ctx context.Context, signature string) (map[string]any, error) {
	return c.getObject(ctx, "/blocks/signature/"+seg(signature), nil)
}

// LastBlock returns the chain tip.
func (c *Client) LastBlock(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, "/blocks/last", nil)
}

// FirstBlock returns the genesis block.
func (c *Client) FirstBlock(ctx context.Context) (map[string]any, error) {
	return c.getObject(ctx, "/blocks/first", nil)
}

// BlockAtTimestamp returns the last block at or before ts (ms since epoch).
func (c *Client) BlockAtTimestamp(ctx context.Context, ts int64) (map[string]any, error) {
	return c.getObject(ctx, "/blocks/timestamp/"+strconv.FormatInt(ts, 10), nil)
}

// BlockSummaries lists summaries for heights in [start, end).
func (c *Client) BlockSummaries(ctx context.Context, start, end int64, count *int) (any, error) {
	q := url.Values{
		"start": {strconv.FormatInt(start, 10)},
		"end":   {strconv.FormatInt(end, 10)},
	}
	if count != nil {
		q.Set("count", strconv.Itoa(*count))
	}
	return c.getAny(ctx, "/blocks/summaries", q)
}

// BlockRange lists count blocks starting at height.
func (c *Client) BlockRange(ctx context.Context, height int64, count int, reverse *bool) (any, error) {
	q := url.Values{"count": {strconv.Itoa(count)}}
	if reverse != nil {
		q.Set("reverse", strconv.FormatBool(*reverse))
	}
	return c.getAny(ctx, "/blocks/range/"+strconv.FormatInt(height, 10), q)
}

// TransactionBySignature returns one transaction.
func (c *Client) TransactionBySignature(ctx context.Context, signature string) (map[string]any, error) {
	return c.getObject(ctx, "/transactions/signature/"+seg(signature), nil)
}

// SearchTransactions passes q through to the transaction search endpoint.
func (c *Client) SearchTransactions(ctx context.Context, q url.Values) (any, error) {
	return c.getAny(ctx, "/transactions/search", q)
}

// Assets lists issued assets.
func (c *Client) Assets(ctx context.Context, page Page) (any, error) {
	return c.getAny(ctx, "/assets", page.values())
}

// AssetInfo returns one asset, looked up by id when assetID is set and by
// name otherwise.
func (c *Client) AssetInfo(ctx context.Context, assetID *int64, assetName string) (map[string]any, error) {
	q := url.Values{}
	if assetID != nil {
		q.Set("assetId", strconv.FormatInt(*assetID, 10))
	} else {
		q.Set("assetName", assetName)
	}
	return c.getObject(ctx, "/assets/info", q)
}

// AssetBalances lists balances filtered by address and/or asset ids.
func (c *Client) AssetBalances(ctx context.Context, q url.Values) (any, error) {
	return c.getAny(ctx, "/assets/balances", q)
}

// TradeOffers lists open cross-chain trade offers, optionally for one
// foreign blockchain.
func (c *Client) TradeOffers(ctx context.Context, foreignBlockchain string, page Page) (any, error) {
	q := page.values()
	if foreignBlockchain != "" {
		q.Set("foreignBlockchain", foreignBlockchain)
	}
	return c.getAny(ctx, "/crosschain/tradeoffers", q)
}

// SearchQDN searches published QDN resources.
func (c *Client) SearchQDN(ctx context.Context, q url.Values) (any, error) {
	return c.getAny(ctx, "/arbitrary/resources/search", q)
}

// Groups lists groups.
func (c *Client) Groups(ctx context.Context, page Page) (any, error) {
	return c.getAny(ctx, "/groups", page.values())
}

// Group returns one group.
func (c *Client) Group(ctx context.Context, groupID int64) (map[string]any, error) {
	return c.getObject(ctx, "/groups/"+strconv.FormatInt(groupID, 10), nil)
}

// GroupMembers returns a group's member count and members.
func (c *Client) GroupMembers(ctx context.Context, groupID int64, onlyAdmins bool, page Page) (map[string]any, error) {
	q := page.values()
	if onlyAdmins {
		q.Set("onlyAdmins", "true")
	}
	return c.getObject(ctx, "/groups/members/"+strconv.FormatInt(groupID, 10), q)
}

// GroupsByOwner lists groups owned by address.
func (c *Client) GroupsByOwner(ctx context.Context, address string) (any, error) {
	return c.getAny(ctx, "/groups/owner/"+seg(address), nil)
}

// GroupsByMember lists groups address belongs to.
func (c *Client) GroupsByMember(ctx context.Context, address string) (any, error) {
	return c.getAny(ctx, "/groups/member/"+seg(address), nil)
}

// ChatMessages lists chat messages matching q.
func (c *Client) ChatMessages(ctx context.Context, q url.Values) (any, error) {
	return c.getAny(ctx, "/chat/messages", q)
}

// ChatMessage returns one chat message. encoding may be empty.
func (c *Client) ChatMessage(ctx context.Context, signature, encoding string) (map[string]any, error) {
	q := url.Values{}
	if encoding != "" {
		q.Set("encoding", encoding)
	}
	return c.getObject(ctx, "/chat/message/"+seg(signature), q)
}

// CountChatMessages counts chat messages matching q. The node answers in
// plain text.
func (c *Client) CountChatMessages(ctx context.Context, q url.Values) (int64, error) {
	s, err := c.getText(ctx, "/chat/messages/count", q)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, unexpected(200, err)
	}
	return n, nil
}

// ActiveChats returns group and direct chats for address.
func (c *Client) ActiveChats(ctx context.Context, address string, q url.Values) (map[string]any, error) {
	return c.getObject(ctx, "/chat/active/"+seg(address), q)
}

// AsInt64 converts a decoded JSON number (or numeric string) to int64.
func AsInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return n, true
		}
		f, err := t.Float64()
		if err != nil || f != float64(int64(f)) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if t != float64(int64(t)) {
			return 0, false
		}
		return int64(t), true
	case int:
		return int64(t), true
	case int64:
		return t, true
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64)
		return n, err == nil
	default:
		return 0, false
	}
}

// IsNotFound reports errors that mean "the thing asked for does not exist".
func IsNotFound(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Kind {
	case KindAddressNotFound, KindNameNotFound, KindGroupNotFound:
		return true
	}
	return apiErr.Message == MsgResourceNotFound || apiErr.Message == MsgBlockNotFound
}
