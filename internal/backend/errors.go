package backend

import (
	"fmt"
	"strconv"
	"strings"
)

// ErrorKind is the closed set of failures surfaced to the tool layer.
type ErrorKind int

const (
	KindGeneric ErrorKind = iota
	KindInvalidAddress
	KindAddressNotFound
	KindNameNotFound
	KindGroupNotFound
	KindUnauthorized
	KindNodeUnreachable
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidAddress:
		return "invalid_address"
	case KindAddressNotFound:
		return "address_not_found"
	case KindNameNotFound:
		return "name_not_found"
	case KindGroupNotFound:
		return "group_not_found"
	case KindUnauthorized:
		return "unauthorized"
	case KindNodeUnreachable:
		return "node_unreachable"
	default:
		return "generic"
	}
}

// ParseErrorKind maps a config string back to a kind. Unknown names are generic.
func ParseErrorKind(s string) ErrorKind {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "invalid_address":
		return KindInvalidAddress
	case "address_not_found":
		return KindAddressNotFound
	case "name_not_found":
		return KindNameNotFound
	case "group_not_found":
		return KindGroupNotFound
	case "unauthorized":
		return KindUnauthorized
	case "node_unreachable":
		return KindNodeUnreachable
	default:
		return KindGeneric
	}
}

// Safe user-facing messages.
const (
	MsgInvalidAddress     = "Invalid Qortal address."
	MsgAddressNotFound    = "Address not found on chain."
	MsgNameNotFound       = "Name not found."
	MsgGroupNotFound      = "Group not found."
	MsgUnauthorized       = "Unauthorized or API key required."
	MsgNodeUnreachable    = "Node unreachable"
	MsgGeneric            = "Qortal API error."
	MsgBlockNotFound      = "Block not found."
	MsgAssetNotFound      = "Asset not found."
	MsgInvalidPublicKey   = "Invalid public key."
	MsgResourceNotFound   = "Resource not found."
	MsgUnexpectedResponse = "Unexpected response from node."
)

// APIError is returned by every request operation. Message is always safe to
// show to end users; Code and StatusCode are diagnostics only.
type APIError struct {
	Kind       ErrorKind
	Message    string
	Code       string
	StatusCode int
	Err        error
}

func (e *APIError) Error() string {
	return e.Message
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Is reports a match on kind, so errors.Is(err, ErrNodeUnreachable) works for
// any unreachable error regardless of diagnostics.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// Diagnostic renders the error with its provider code and status for logs.
func (e *APIError) Diagnostic() string {
	s := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Code != "" {
		s += " code=" + e.Code
	}
	if e.StatusCode != 0 {
		s += " status=" + strconv.Itoa(e.StatusCode)
	}
	if e.Err != nil {
		s += " cause=" + e.Err.Error()
	}
	return s
}

// Sentinels for errors.Is.
var (
	ErrInvalidAddress  = &APIError{Kind: KindInvalidAddress, Message: MsgInvalidAddress}
	ErrAddressNotFound = &APIError{Kind: KindAddressNotFound, Message: MsgAddressNotFound}
	ErrNameNotFound    = &APIError{Kind: KindNameNotFound, Message: MsgNameNotFound}
	ErrGroupNotFound   = &APIError{Kind: KindGroupNotFound, Message: MsgGroupNotFound}
	ErrUnauthorized    = &APIError{Kind: KindUnauthorized, Message: MsgUnauthorized}
	ErrNodeUnreachable = &APIError{Kind: KindNodeUnreachable, Message: MsgNodeUnreachable}
	ErrGeneric         = &APIError{Kind: KindGeneric, Message: MsgGeneric}
)

func defaultMessage(k ErrorKind) string {
	switch k {
	case KindInvalidAddress:
		return MsgInvalidAddress
	case KindAddressNotFound:
		return MsgAddressNotFound
	case KindNameNotFound:
		return MsgNameNotFound
	case KindGroupNotFound:
		return MsgGroupNotFound
	case KindUnauthorized:
		return MsgUnauthorized
	case KindNodeUnreachable:
		return MsgNodeUnreachable
	default:
		return MsgGeneric
	}
}

// Rule is one entry of the classifier table. A rule matches when the
// upper-cased provider code is in Codes, the lower-cased message contains one
// of Contains, or the HTTP status is in Statuses.
type Rule struct {
	Codes    []string
	Contains []string
	Statuses []int
	Kind     ErrorKind
	// Message overrides the kind's default safe message when set.
	Message string
}

func (r Rule) match(code, message string, status int) bool {
	if code != "" {
		for _, c := range r.Codes {
			if strings.EqualFold(c, code) {
				return true
			}
		}
	}
	if message != "" {
		lower := strings.ToLower(message)
		for _, s := range r.Contains {
			if strings.Contains(lower, strings.ToLower(s)) {
				return true
			}
		}
	}
	for _, s := range r.Statuses {
		if s == status {
			return true
		}
	}
	return false
}

func (r Rule) build(code string, status int) *APIError {
	msg := r.Message
	if msg == "" {
		msg = defaultMessage(r.Kind)
	}
	return &APIError{Kind: r.Kind, Message: msg, Code: code, StatusCode: status}
}

// DefaultRules is the built-in provider error mapping, in priority order.
var DefaultRules = []Rule{
	{Codes: []string{"INVALID_ADDRESS", "INVALID_QORTAL_ADDRESS", "INVALID_RECIPIENT", "102"}, Contains: []string{"invalid address"}, Kind: KindInvalidAddress},
	{Codes: []string{"NAME_UNKNOWN", "401"}, Kind: KindNameNotFound},
	{Codes: []string{"BLOCK_UNKNOWN"}, Contains: []string{"block unknown"}, Kind: KindGeneric, Message: MsgBlockNotFound},
	{Codes: []string{"INVALID_ASSET_ID", "601"}, Kind: KindGeneric, Message: MsgAssetNotFound},
	{Codes: []string{"ADDRESS_UNKNOWN", "UNKNOWN_ADDRESS", "124"}, Contains: []string{"unknown address"}, Kind: KindAddressNotFound},
	{Codes: []string{"GROUP_UNKNOWN", "1101"}, Kind: KindGroupNotFound},
	{Codes: []string{"INVALID_PUBLIC_KEY"}, Contains: []string{"invalid public key"}, Kind: KindGeneric, Message: MsgInvalidPublicKey},
	{Statuses: []int{404}, Kind: KindGeneric, Message: MsgResourceNotFound},
	{Statuses: []int{401, 403}, Kind: KindUnauthorized},
}

// Classifier maps a failed provider response onto an APIError.
type Classifier struct {
	rules []Rule
}

// NewClassifier returns a classifier that evaluates extra ahead of the
// built-in rules.
func NewClassifier(extra ...Rule) *Classifier {
	rules := make([]Rule, 0, len(extra)+len(DefaultRules))
	rules = append(rules, extra...)
	rules = append(rules, DefaultRules...)
	return &Classifier{rules: rules}
}

// Classify returns the first matching rule's error, or a generic error that
// carries the raw code and status.
func (c *Classifier) Classify(code, message string, status int) *APIError {
	code = strings.ToUpper(strings.TrimSpace(code))
	for _, r := range c.rules {
		if r.match(code, message, status) {
			return r.build(code, status)
		}
	}
	return &APIError{Kind: KindGeneric, Message: MsgGeneric, Code: code, StatusCode: status}
}
