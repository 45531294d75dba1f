// WAConnect Go - WhatsApp API Gateway
// Copyright (c) 2026 VertexHub
// Licensed under MIT License
// https://github.com/vertexhub/waconnect-go

package binary

// Control-byte tags. Values 0..13 are reserved for structural tags; values
// 14..255 address the single-byte token table directly (index = byte-14).
const (
	tagListEmpty   byte = 0
	tagDictionary0 byte = 1
	tagDictionary1 byte = 2
	tagDictionary2 byte = 3
	tagDictionary3 byte = 4
	tagADJID       byte = 5
	tagList8       byte = 6
	tagList16      byte = 7
	tagJIDPair     byte = 8
	tagHex8        byte = 9
	tagBinary8     byte = 10
	tagBinary20    byte = 11
	tagBinary32    byte = 12
	tagNibble8     byte = 13

	firstTokenByte = 14
	maxTokenBytes  = 256 - firstTokenByte

	// PackedMax is the longest string the nibble/hex packed encodings accept.
	PackedMax = 127
)

// singleByteTokens is the primary token table: common tag and attribute
// names that cost exactly one byte on the wire.
var singleByteTokens = []string{
	"account", "ack", "action", "active", "add", "after", "all", "allow",
	"and", "android", "announce", "archive", "available", "battery",
	"before", "block", "body", "broadcast", "call", "call-creator",
	"call-id", "cancel", "caption", "chat", "child", "clear", "code",
	"composing", "config", "contact", "contacts", "count", "create",
	"creator", "decrypt", "delete", "demote", "description", "device",
	"devices", "disappearing", "done", "download", "edit", "elapsed",
	"encoding", "encrypt", "end", "enc", "ephemeral", "error", "event",
	"exit", "exposure", "failure", "false", "fan_out", "file", "filename",
	"format", "from", "full", "g.us", "get", "gif", "group", "groups",
	"hash", "height", "host", "id", "image", "in", "inactive", "index",
	"info", "interactive", "invite", "ios", "iq", "is", "item", "items",
	"jid", "keep", "key", "key-index", "keyvalue", "keys", "kind", "large",
	"last", "leave", "limit", "linked", "list", "live", "location",
	"locked", "md", "media", "media_type", "member", "message", "messages",
	"meta", "mime", "mirror", "mms", "modify", "msg", "mute", "name",
	"network", "new", "news", "newsletter", "none", "not", "notification",
	"notify", "number", "of", "offline", "offline_preview", "offline_batch",
	"opt", "order", "out", "owner", "pair-device", "pair-success",
	"pair-device-sign", "device-identity", "paid", "pairing", "participant",
	"participants", "paused", "phash", "phone", "photo", "picture", "pin",
	"pinned", "platform", "pn", "preview", "previous", "primary", "private",
	"promote", "props", "protocol", "ping", "urn:xmpp:ping", "w:p", "push",
	"pushname", "query", "quit", "quote", "rate", "read", "reason",
	"receipt", "received", "recipient", "ref", "remove", "removed", "reply",
	"report", "request", "require", "reset", "resource", "result", "retry",
	"revoke", "s.whatsapp.net", "screen", "search", "sec", "secret", "seen",
	"selected", "self", "sender", "serial", "server", "session", "set",
	"settings", "sf", "shake", "share", "short", "side", "sig", "silent",
	"size", "skmsg", "pkmsg", "v", "smax", "smbiz", "source", "sponsor",
	"srcjid", "starred", "start", "status", "stream:error", "success",
	"sticky", "storage", "store", "stop", "subject", "subscribe", "sync",
	"system", "t", "tag", "taken", "target", "template", "terminate",
	"text", "thread", "ticket", "time", "timestamp", "to", "token", "true",
	"type", "unavailable", "undefined", "unique", "unknown", "unlock",
	"unread", "until", "update", "upgrade", "url", "user", "users",
	"value", "version", "video", "voip", "wa", "web", "webp", "width",
	"write", "xmlns", "xmpp", "you", "years",
}

// dictionaries are four additional 256-entry token tables addressed by
// DICTIONARY_0..3 prefix + index byte. Entries left empty are simply
// unused addressable slots.
var dictionaries [4][256]string

func init() {
	fill := func(dict int, words []string) {
		for i, w := range words {
			dictionaries[dict][i] = w
		}
	}
	fill(0, []string{
		"interactive_message", "native_flow", "button_reply", "list_response",
		"template_button_reply", "order", "product", "catalog", "business",
		"verified_name", "quoted_message", "context_info", "forwarding_score",
		"is_forwarded", "mentioned_jid", "conversion", "conversion_source",
		"conversion_data", "entry_point_conversion_app", "view_once",
		"ephemeral_setting", "disappearing_mode", "mute_expiration",
		"unread_count", "archived", "pinned_timestamp", "last_message_timestamp",
	})
	fill(1, []string{
		"image_message", "video_message", "audio_message", "document_message",
		"sticker_message", "contact_message", "location_message",
		"live_location_message", "group_invite_message", "protocol_message",
		"reaction_message", "poll_creation_message", "poll_update_message",
		"payment_invite_message", "requestphonenumber_message",
	})
	fill(2, []string{
		"identity_key", "signed_key", "signed_key_id", "signed_key_sig",
		"registration", "pre_keys", "key_type", "one_time_pre_key",
		"platform_ios", "platform_android", "platform_web", "platform_desktop",
		"web_subplatform", "app_version", "os_version", "locale",
	})
	fill(3, []string{
		"add_members", "remove_members", "promote_members", "demote_members",
		"subject_change", "description_change", "icon_change",
		"ephemeral_change", "locked_change", "announcement_change",
		"membership_approval_mode", "invite_link_revoke",
	})
}

// tokenIndex finds the byte encoding for s, if any: the single-byte
// table first, then the four addressable dictionaries.
func tokenIndex(s string) (dict int, b byte, ok bool) {
	for i, t := range singleByteTokens {
		if t == s {
			return -1, byte(firstTokenByte + i), true
		}
	}
	for d := 0; d < 4; d++ {
		for i, t := range dictionaries[d] {
			if t != "" && t == s {
				return d, byte(i), true
			}
		}
	}
	return 0, 0, false
}

func singleByteToken(b byte) (string, bool) {
	if int(b) < firstTokenByte {
		return "", false
	}
	idx := int(b) - firstTokenByte
	if idx >= len(singleByteTokens) {
		return "", false
	}
	return singleByteTokens[idx], true
}

func dictionaryToken(dict int, idx byte) (string, bool) {
	if dict < 0 || dict >= 4 {
		return "", false
	}
	s := dictionaries[dict][idx]
	return s, s != ""
}

func dictionaryTagFor(dict int) byte {
	switch dict {
	case 0:
		return tagDictionary0
	case 1:
		return tagDictionary1
	case 2:
		return tagDictionary2
	default:
		return tagDictionary3
	}
}
