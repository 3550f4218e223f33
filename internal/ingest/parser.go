package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/netneural/mqtt-ingest/internal/models"
)

// ErrNoDeviceToken indicates a payload from which no device token could be
// extracted. The message is dropped, not treated as a fatal processing
// error.
var ErrNoDeviceToken = errors.New("no device token in payload or topic")

// standardTelemetryFields is the allow-list scanned by the standard dialect.
var standardTelemetryFields = []string{
	"temperature",
	"humidity",
	"pressure",
	"battery",
	"voltage",
	"current",
	"power",
	"rssi",
	"snr",
	"battery_level",
	"signal_strength",
}

// timestampLikeKeys are excluded from the standard dialect's numeric
// fallback.
var timestampLikeKeys = map[string]bool{
	"timestamp": true,
	"ts":        true,
	"time":      true,
}

// tokenFields are checked, in order, for an explicit device identifier in
// the payload.
var tokenFields = []string{"device", "deviceId", "device_id", "id"}

var devicesTopicPattern = regexp.MustCompile(`devices/([^/]+)`)

// Parse turns a raw topic+payload into a canonical Message according to the
// integration's configured dialect. Payloads that are not valid JSON objects
// are treated as plain text: the token is taken from the topic and the raw
// text retained in metadata with no telemetry.
func Parse(payload []byte, topic string, settings *models.IntegrationSettings) (*Message, error) {
	var obj map[string]interface{}
	if err := json.Unmarshal(payload, &obj); err != nil {
		token := extractToken(nil, topic, settings.TopicPrefix)
		if token == "" {
			return nil, ErrNoDeviceToken
		}

		return &Message{
			DeviceToken: token,
			Timestamp:   time.Now().UTC(),
			Metadata:    models.Variables{"raw_message": string(payload)},
		}, nil
	}

	token := extractToken(obj, topic, settings.TopicPrefix)
	if token == "" {
		return nil, ErrNoDeviceToken
	}

	switch settings.Parser {
	case models.ParserVMark:
		return parseVMark(token, obj), nil
	case models.ParserCustom:
		return parseCustom(token, obj, settings.CustomParser), nil
	default:
		return parseStandard(token, obj), nil
	}
}

// extractToken prefers an explicit identifier field in the payload, then the
// devices/{token}/... topic pattern, then {prefix}/{token}/... with the
// configured prefix.
func extractToken(payload map[string]interface{}, topic, prefix string) string {
	for _, field := range tokenFields {
		if token := stringish(payload[field]); token != "" {
			return token
		}
	}

	if m := devicesTopicPattern.FindStringSubmatch(topic); m != nil {
		return m[1]
	}

	if prefix == "" {
		prefix = models.DefaultTopicPrefix
	}
	prefixPattern, err := regexp.Compile(regexp.QuoteMeta(prefix) + `/([^/]+)`)
	if err == nil {
		if m := prefixPattern.FindStringSubmatch(topic); m != nil {
			return m[1]
		}
	}

	return ""
}

// parseStandard scans the allow-list of known telemetry fields, falling back
// to every numeric field except timestamp-like keys.
func parseStandard(token string, payload map[string]interface{}) *Message {
	telemetry := models.Variables{}

	for _, field := range standardTelemetryFields {
		if v, ok := payload[field]; ok {
			telemetry[field] = v
		}
	}

	if len(telemetry) == 0 {
		for key, v := range payload {
			if _, isNumber := v.(float64); isNumber && !timestampLikeKeys[strings.ToLower(key)] {
				telemetry[key] = v
			}
		}
	}

	msg := &Message{
		DeviceToken: token,
		Status:      parseStatus(payload["status"]),
		Timestamp:   parseTimestamp(payload["timestamp"], payload["ts"]),
		Metadata:    models.Variables(payload),
	}
	if len(telemetry) > 0 {
		msg.Telemetry = telemetry
	}
	return msg
}

// parseVMark reads telemetry from the vendor's paras object (falling back to
// data), status from the boolean online field, and the vendor timestamp
// format.
func parseVMark(token string, payload map[string]interface{}) *Message {
	telemetry := models.Variables{}

	if paras, ok := payload["paras"].(map[string]interface{}); ok {
		for k, v := range paras {
			telemetry[k] = v
		}
	} else if data, ok := payload["data"].(map[string]interface{}); ok {
		for k, v := range data {
			telemetry[k] = v
		}
	}

	msg := &Message{
		DeviceToken: token,
		Timestamp:   time.Now().UTC(),
		Metadata:    models.Variables(payload),
	}

	if online, ok := payload["online"].(bool); ok && online {
		msg.Status = models.DeviceStatusOnline
	}

	if raw, ok := payload["time"].(string); ok {
		if ts, ok := parseVMarkTime(raw); ok {
			msg.Timestamp = ts
		}
	} else if ts, ok := parseRFC3339(payload["timestamp"]); ok {
		msg.Timestamp = ts
	}

	if len(telemetry) > 0 {
		msg.Telemetry = telemetry
	}
	return msg
}

// parseCustom extracts telemetry and timestamp via the configured
// dot-separated path expressions. A missing path yields an absent value, not
// an error.
func parseCustom(token string, payload map[string]interface{}, cfg *models.CustomParserConfig) *Message {
	msg := &Message{
		DeviceToken: token,
		Timestamp:   time.Now().UTC(),
		Metadata:    models.Variables(payload),
	}

	if cfg == nil {
		return msg
	}

	if cfg.TelemetryPath != "" {
		if nested, ok := nestedValue(payload, cfg.TelemetryPath).(map[string]interface{}); ok && len(nested) > 0 {
			msg.Telemetry = models.Variables(nested)
		}
	}

	if cfg.TimestampPath != "" {
		if ts, ok := parseRFC3339(nestedValue(payload, cfg.TimestampPath)); ok {
			msg.Timestamp = ts
		}
	}

	return msg
}

// parseVMarkTime rewrites the vendor format "2025-04-23_07:35:22.214" to
// ISO-8601 by substituting the underscore with T and appending Z.
func parseVMarkTime(raw string) (time.Time, bool) {
	iso := strings.Replace(raw, "_", "T", 1) + "Z"
	ts, err := time.Parse(time.RFC3339, iso)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

func parseRFC3339(v interface{}) (time.Time, bool) {
	raw, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// parseTimestamp returns the first parseable candidate, defaulting to
// arrival time.
func parseTimestamp(candidates ...interface{}) time.Time {
	for _, c := range candidates {
		if ts, ok := parseRFC3339(c); ok {
			return ts
		}
	}
	return time.Now().UTC()
}

func parseStatus(v interface{}) models.DeviceStatus {
	switch models.DeviceStatus(stringish(v)) {
	case models.DeviceStatusOnline:
		return models.DeviceStatusOnline
	case models.DeviceStatusOffline:
		return models.DeviceStatusOffline
	case models.DeviceStatusUnknown:
		return models.DeviceStatusUnknown
	default:
		return ""
	}
}

// nestedValue walks a dot-separated path into the parsed object
func nestedValue(obj map[string]interface{}, path string) interface{} {
	var current interface{} = obj
	for _, key := range strings.Split(path, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// stringish renders string and numeric identifier values
func stringish(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		if t == float64(int64(t)) {
			return fmt.Sprintf("%d", int64(t))
		}
		return fmt.Sprintf("%v", t)
	default:
		return ""
	}
}
