// Package detect implements the multi-signal scam detection pipeline: event
// parsing, per-message rule matching, behavior analysis, intent tagging,
// local model scoring, trend/funnel tracking and the scoring/decision
// stages that combine everything into one result per chat line.
package detect

import (
	"regexp"
	"strings"

	"github.com/tango-sec/scamscreener/pkg/textutil"
)

// Channel classifies where a chat line was spoken.
type Channel string

const (
	ChannelUnknown Channel = "unknown"
	ChannelParty   Channel = "party"
	ChannelTeam    Channel = "team"
	ChannelPM      Channel = "pm"
	ChannelPublic  Channel = "public"
)

// MessageEvent is the immutable per-line input to the pipeline. Created once
// by the parser (or directly by an API caller) and never mutated.
type MessageEvent struct {
	SenderName  string  `json:"sender_name"`
	RawMessage  string  `json:"raw_message"`
	Normalized  string  `json:"normalized_message"`
	TimestampMs int64   `json:"timestamp_ms"`
	Channel     Channel `json:"channel"`
}

// NewMessageEvent builds an event with the normalized form derived from the
// raw message.
func NewMessageEvent(senderName, rawMessage string, timestampMs int64, channel Channel) MessageEvent {
	if channel == "" {
		channel = ChannelUnknown
	}
	return MessageEvent{
		SenderName:  senderName,
		RawMessage:  rawMessage,
		Normalized:  textutil.NormalizeMessage(rawMessage),
		TimestampMs: timestampMs,
		Channel:     channel,
	}
}

// SenderKey returns the anonymized identity used for all rolling state.
func (e MessageEvent) SenderKey() string {
	return textutil.AnonymizedSpeakerKey(e.SenderName)
}

var (
	colorCodeRun  = regexp.MustCompile("§.")
	decorationRun = regexp.MustCompile(`\[[^\]]+\]\s*`)

	channelLine = regexp.MustCompile(`^(?i)(party|team|guild|officer|co-?op|all|public)\s*>\s*([A-Za-z0-9_]{3,16})\s*:\s*(.+)$`)
	whisperLine = regexp.MustCompile(`^(?i)(?:whisper\s+)?(?:from|to)\s+([A-Za-z0-9_]{3,16})\s*:\s*(.+)$`)
	directLine  = regexp.MustCompile(`^([A-Za-z0-9_]{3,16})\s*:\s*(.+)$`)
)

// systemLabels are line prefixes that look like "Name:" chat but come from
// the platform itself. Lines from these pseudo-senders are never events.
var systemLabels = map[string]struct{}{
	"server": {}, "info": {}, "warning": {}, "note": {}, "tip": {},
	"announcement": {}, "party": {}, "team": {}, "guild": {}, "friend": {},
	"friends": {}, "rewards": {}, "store": {}, "bank": {}, "players": {},
	"auction": {}, "bazaar": {}, "profile": {}, "area": {}, "scamscreener": {},
}

// ParseLine turns one raw chat line into a MessageEvent. The boolean is
// false for lines that are not player chat (system output, malformed
// prefixes, blank messages); such lines never reach the pipeline.
func ParseLine(rawLine string, timestampMs int64) (MessageEvent, bool) {
	cleaned := strings.TrimSpace(rawLine)
	if cleaned == "" {
		return MessageEvent{}, false
	}
	cleaned = colorCodeRun.ReplaceAllString(cleaned, "")
	cleaned = strings.TrimSpace(decorationRun.ReplaceAllString(cleaned, ""))

	if m := channelLine.FindStringSubmatch(cleaned); m != nil {
		return buildEvent(m[2], m[3], timestampMs, classifyChannel(m[1]))
	}
	if m := whisperLine.FindStringSubmatch(cleaned); m != nil {
		return buildEvent(m[1], m[2], timestampMs, ChannelPM)
	}
	if m := directLine.FindStringSubmatch(cleaned); m != nil {
		return buildEvent(m[1], m[2], timestampMs, ChannelPublic)
	}
	return MessageEvent{}, false
}

func buildEvent(sender, message string, timestampMs int64, channel Channel) (MessageEvent, bool) {
	sender = strings.TrimSpace(sender)
	message = strings.TrimSpace(message)
	if sender == "" || message == "" {
		return MessageEvent{}, false
	}
	if _, system := systemLabels[strings.ToLower(sender)]; system {
		return MessageEvent{}, false
	}
	return NewMessageEvent(sender, message, timestampMs, channel), true
}

func classifyChannel(label string) Channel {
	switch strings.ToLower(label) {
	case "party":
		return ChannelParty
	case "team", "co-op", "coop":
		return ChannelTeam
	default:
		return ChannelPublic
	}
}
