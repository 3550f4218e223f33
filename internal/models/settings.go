package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrMissingBrokerURL indicates an integration without a configured broker.
// Sessions for such integrations are skipped, not retried.
var ErrMissingBrokerURL = errors.New("missing broker URL")

// PayloadParser identifies one of the supported payload dialects
type PayloadParser string

const (
	ParserStandard PayloadParser = "standard"
	ParserVMark    PayloadParser = "vmark"
	ParserCustom   PayloadParser = "custom"
)

// DefaultTopicPrefix is the tenant-wide fallback prefix for token extraction
// from topics that do not match the devices/{token}/... pattern.
const DefaultTopicPrefix = "netneural"

// DefaultTopics are subscribed when an integration configures no topics.
var DefaultTopics = []string{
	"devices/+/telemetry",
	"devices/+/status",
	"netneural/+/data",
}

// CustomParserConfig holds the dot-separated path expressions for the custom
// dialect.
type CustomParserConfig struct {
	TelemetryPath string `json:"telemetry_path"`
	TimestampPath string `json:"timestamp_path"`
}

// IntegrationSettings is the normalized form of an integration's settings
// bag. The stored bag accepts both camelCase and snake_case key spellings;
// normalization happens exactly once, at session startup.
type IntegrationSettings struct {
	BrokerURL    string
	Port         int
	Username     string
	Password     string
	ClientID     string
	TLS          bool
	Topics       []string
	Parser       PayloadParser
	TopicPrefix  string
	CustomParser *CustomParserConfig
}

// ParseSettings normalizes the integration's settings bag into a typed
// struct, applying defaults. Returns ErrMissingBrokerURL when no broker
// address is configured.
func (i *Integration) ParseSettings() (*IntegrationSettings, error) {
	raw := i.Settings
	if raw == nil {
		raw = Variables{}
	}

	s := &IntegrationSettings{
		BrokerURL:   stringValue(raw, "brokerUrl", "broker_url"),
		Port:        intValue(raw, 1883, "port"),
		Username:    stringValue(raw, "username"),
		Password:    stringValue(raw, "password"),
		ClientID:    stringValue(raw, "clientId", "client_id"),
		TLS:         boolValue(raw, "tls"),
		Topics:      parseTopics(raw["topics"]),
		TopicPrefix: stringValue(raw, "topicPrefix", "topic_prefix"),
	}

	if s.BrokerURL == "" {
		return nil, ErrMissingBrokerURL
	}

	if s.ClientID == "" {
		s.ClientID = fmt.Sprintf("netneural-ingest-%s-%d", i.ID, time.Now().UnixMilli())
	}

	if s.TopicPrefix == "" {
		s.TopicPrefix = DefaultTopicPrefix
	}

	switch PayloadParser(stringValue(raw, "payloadParser", "payload_parser")) {
	case ParserVMark:
		s.Parser = ParserVMark
	case ParserCustom:
		s.Parser = ParserCustom
	default:
		s.Parser = ParserStandard
	}

	if cfg, ok := raw["customParserConfig"].(map[string]interface{}); ok {
		s.CustomParser = parseCustomConfig(cfg)
	} else if cfg, ok := raw["custom_parser_config"].(map[string]interface{}); ok {
		s.CustomParser = parseCustomConfig(cfg)
	}

	return s, nil
}

// TopicFilters returns the configured topic list, or the documented default
// set when none are configured.
func (s *IntegrationSettings) TopicFilters() []string {
	if len(s.Topics) > 0 {
		return s.Topics
	}
	return DefaultTopics
}

// parseTopics accepts an array of topic filters or a comma-separated string.
// Values are trimmed and empty entries dropped.
func parseTopics(v interface{}) []string {
	var topics []string

	switch t := v.(type) {
	case []string:
		topics = t
	case []interface{}:
		for _, item := range t {
			if str, ok := item.(string); ok {
				topics = append(topics, str)
			}
		}
	case string:
		topics = strings.Split(t, ",")
	default:
		return nil
	}

	out := make([]string, 0, len(topics))
	for _, topic := range topics {
		topic = strings.TrimSpace(topic)
		if topic != "" {
			out = append(out, topic)
		}
	}
	return out
}

func parseCustomConfig(raw map[string]interface{}) *CustomParserConfig {
	cfg := &CustomParserConfig{}
	if v, ok := raw["telemetry_path"].(string); ok {
		cfg.TelemetryPath = v
	}
	if v, ok := raw["timestamp_path"].(string); ok {
		cfg.TimestampPath = v
	}
	return cfg
}

func stringValue(v Variables, keys ...string) string {
	for _, key := range keys {
		if s, ok := v[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func intValue(v Variables, def int, keys ...string) int {
	for _, key := range keys {
		switch n := v[key].(type) {
		case float64:
			return int(n)
		case int:
			return n
		case string:
			if parsed, err := strconv.Atoi(n); err == nil {
				return parsed
			}
		}
	}
	return def
}

func boolValue(v Variables, keys ...string) bool {
	for _, key := range keys {
		if b, ok := v[key].(bool); ok {
			return b
		}
	}
	return false
}
