package tools

// prop is one JSON Schema property.
type prop struct {
	name   string
	schema map[string]any
}

func str(name, desc string) prop {
	return prop{name, map[string]any{"type": "string", "description": desc}}
}

func integer(name, desc string) prop {
	return prop{name, map[string]any{"type": "integer", "description": desc}}
}

func boolean(name, desc string) prop {
	return prop{name, map[string]any{"type": "boolean", "description": desc}}
}

func strList(name, desc string) prop {
	return prop{name, map[string]any{
		"type":        "array",
		"items":       map[string]any{"type": "string"},
		"description": desc,
	}}
}

func address(name string) prop {
	return prop{name, map[string]any{
		"type":        "string",
		"description": "Qortal address (34 characters, starts with Q).",
		"pattern":     addressRe.String(),
	}}
}

func paging() []prop {
	return []prop{
		integer("limit", "Maximum number of results."),
		integer("offset", "Number of results to skip."),
		boolean("reverse", "Newest first."),
	}
}

// object builds an object schema. Required properties are marked with a
// trailing "!" on their name.
func object(props ...prop) map[string]any {
	properties := make(map[string]any, len(props))
	required := []string{}
	for _, p := range props {
		name := p.name
		if n := len(name); n > 0 && name[n-1] == '!' {
			name = name[:n-1]
			required = append(required, name)
		}
		properties[name] = p.schema
	}
	schema := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"additionalProperties": false,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func req(p prop) prop {
	p.name += "!"
	return p
}

func with(base []prop, extra ...prop) []prop {
	return append(extra, base...)
}

func chatFilterProps() []prop {
	return with(paging(),
		integer("tx_group_id", "Group chat id. Mutually exclusive with involving."),
		strList("involving", "Exactly two addresses for a direct conversation."),
		integer("before", "Only messages before this timestamp (ms)."),
		integer("after", "Only messages after this timestamp (ms)."),
		str("reference", "Base58 transaction reference."),
		str("chat_reference", "Base58 chat reference."),
		boolean("has_chat_reference", "Filter on presence of a chat reference."),
		address("sender"),
		str("encoding", "BASE58 or BASE64."),
	)
}

func (s *toolset) definitions() []*Tool {
	tool := func(name, desc string, h Handler, props ...prop) *Tool {
		return &Tool{Name: name, Description: desc, InputSchema: object(props...), Handler: h}
	}
	return []*Tool{
		tool("validate_address", "Check whether a string is a well-formed Qortal address.", s.validateAddress, req(address("address"))),

		tool("get_node_status", "Synchronization and connectivity state of the node.", s.nodeStatus),
		tool("get_node_info", "Build version, uptime and clock of the node.", s.nodeInfo),
		tool("get_node_summary", "Node activity summary.", s.nodeSummary),
		tool("get_node_uptime", "Node uptime in milliseconds.", s.nodeUptime),
		tool("get_block_height", "Current chain height.", s.blockHeight),

		tool("get_account_overview", "Level, balance and registered names of an account.", s.accountOverview, req(address("address"))),
		tool("get_balance", "QORT or asset balance of an account.", s.balance,
			req(address("address")), integer("asset_id", "Asset id; 0 is QORT.")),

		tool("get_names_by_address", "Names owned by an account.", s.namesByAddress,
			with(paging(), req(address("address")))...),
		tool("get_name_info", "Details of a registered name.", s.nameInfo, req(str("name", "Registered name."))),
		tool("get_primary_name", "Primary name of an account.", s.primaryName, req(address("address"))),
		tool("list_names", "All registered names.", s.allNames,
			with(paging(), integer("after", "Only names registered after this timestamp (ms)."))...),
		tool("list_names_for_sale", "Names currently listed for sale.", s.namesForSale, paging()...),

		tool("get_block_by_height", "Block at a height.", s.blockByHeight, req(integer("height", "Block height."))),
		tool("get_block_by_signature", "Block with a signature.", s.blockBySignature, req(str("signature", "Base58 block signature."))),
		tool("get_first_block", "Genesis block.", s.firstBlock),
		tool("get_last_block", "Most recent block.", s.lastBlock),
		tool("get_block_at_timestamp", "Last block at or before a timestamp.", s.blockAtTimestamp,
			req(integer("timestamp", "Milliseconds since epoch."))),
		tool("list_block_summaries", "Summaries for a height range.", s.blockSummaries,
			req(integer("start", "First height.")), req(integer("end", "Height after the last.")), integer("count", "Maximum summaries.")),
		tool("list_block_range", "Consecutive blocks from a height.", s.blockRange,
			req(integer("height", "Starting height.")), req(integer("count", "Number of blocks.")), boolean("reverse", "Walk backwards.")),

		tool("get_transaction_by_signature", "Transaction with a signature.", s.transactionBySignature,
			req(str("signature", "Base58 transaction signature."))),
		tool("search_transactions", "Search transactions by type, address or block range.", s.searchTransactions,
			with(paging(),
				strList("tx_types", "Transaction types, e.g. PAYMENT."),
				address("address"),
				str("confirmation_status", "CONFIRMED, UNCONFIRMED or BOTH."),
				integer("start_block", "First block; requires CONFIRMED."),
				integer("block_limit", "Number of blocks; requires CONFIRMED."),
			)...),

		tool("list_assets", "Issued assets.", s.listAssets, paging()...),
		tool("get_asset_info", "Details of one asset by id or name.", s.assetInfo,
			integer("asset_id", "Asset id."), str("asset_name", "Asset name.")),
		tool("get_asset_balances", "Asset balances for addresses or asset ids.", s.assetBalances,
			with(paging(),
				strList("addresses", "Accounts to include."),
				strList("asset_ids", "Asset ids to include."),
				str("ordering", "ASSET_BALANCE_ACCOUNT, ACCOUNT_ASSET or ASSET_ACCOUNT."),
				boolean("exclude_zero", "Skip zero balances."),
			)...),

		tool("list_trade_offers", "Open cross-chain trade offers.", s.tradeOffers,
			with(paging(), str("foreign_blockchain", "BITCOIN, LITECOIN, DOGECOIN, DIGIBYTE, RAVENCOIN or PIRATECHAIN."))...),
		tool("search_qdn", "Search published QDN resources.", s.searchQDN,
			address("address"), integer("service", "Service code (0-65535)."), integer("limit", "Maximum results.")),

		tool("list_groups", "All groups.", s.listGroups, paging()...),
		tool("get_group", "Details of one group.", s.group, req(integer("group_id", "Group id."))),
		tool("get_group_members", "Members of a group.", s.groupMembers,
			with(paging(), req(integer("group_id", "Group id.")), boolean("only_admins", "Admins only."))...),
		tool("get_groups_by_owner", "Groups owned by an account.", s.groupsByOwner, req(address("address"))),
		tool("get_groups_by_member", "Groups an account belongs to.", s.groupsByMember, req(address("address"))),

		tool("get_chat_messages", "Chat messages in a group or between two accounts.", s.chatMessages, chatFilterProps()...),
		tool("count_chat_messages", "Number of chat messages matching a filter.", s.countChatMessages, chatFilterProps()...),
		tool("get_chat_message", "One chat message by signature.", s.chatMessage,
			req(str("signature", "Base58 message signature.")), str("encoding", "BASE58 or BASE64.")),
		tool("get_active_chats", "Group and direct conversations of an account.", s.activeChats,
			req(address("address")), str("encoding", "BASE58 or BASE64."), boolean("has_chat_reference", "Filter on presence of a chat reference.")),
	}
}
