package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// 问卷字段缺失或损坏时使用的默认值
const (
	DefaultCategory   = "other"
	DefaultQuantity   = 1.0
	DefaultTimeWindow = WindowFlexible
)

// TimeWindow 是取货时间偏好
type TimeWindow string

const (
	WindowMorning   TimeWindow = "morning"
	WindowAfternoon TimeWindow = "afternoon"
	WindowEvening   TimeWindow = "evening"
	WindowNight     TimeWindow = "night"
	WindowFlexible  TimeWindow = "flexible"
)

var knownWindows = map[TimeWindow]struct{}{
	WindowMorning:   {},
	WindowAfternoon: {},
	WindowEvening:   {},
	WindowNight:     {},
	WindowFlexible:  {},
}

// Survey 是供给单/需求单共用的结构化问卷
type Survey struct {
	Category   string     `json:"category"`
	Tags       []string   `json:"tags"`
	Quantity   float64    `json:"quantity"`
	TimeWindow TimeWindow `json:"time_window"`
	DistanceKm float64    `json:"distance_km"`
}

// DefaultSurvey 返回全部字段取默认值的问卷。
func DefaultSurvey() Survey {
	return Survey{
		Category:   DefaultCategory,
		Quantity:   DefaultQuantity,
		TimeWindow: DefaultTimeWindow,
	}
}

// ParseSurvey 宽松地解析问卷 JSON，永不失败。
// 任何无法解析的字段都会退回默认值，并通过 degraded 报告出来。
// 空输入视为"没有填写"，只取默认值，不算损坏。
func ParseSurvey(raw []byte) (s Survey, degraded bool) {
	s = DefaultSurvey()
	if len(strings.TrimSpace(string(raw))) == 0 {
		return s, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return s, true
	}

	if v, ok := fields["category"]; ok {
		var c string
		if err := json.Unmarshal(v, &c); err != nil {
			degraded = true
		} else if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			s.Category = c
		}
	}

	if v, ok := fields["tags"]; ok {
		var tags []string
		if err := json.Unmarshal(v, &tags); err != nil {
			degraded = true
		} else {
			s.Tags = normalizeTags(tags)
		}
	}

	if v, ok := fields["quantity"]; ok {
		q, ok := parseNumber(v)
		if !ok || q < 0 {
			degraded = true
		} else if q > 0 {
			s.Quantity = q
		}
	}

	if v, ok := fields["time_window"]; ok {
		var w string
		if err := json.Unmarshal(v, &w); err != nil {
			degraded = true
		} else if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			if _, known := knownWindows[TimeWindow(w)]; known {
				s.TimeWindow = TimeWindow(w)
			} else {
				degraded = true
			}
		}
	}

	if v, ok := fields["distance_km"]; ok {
		d, ok := parseNumber(v)
		if !ok || d < 0 {
			degraded = true
		} else {
			s.DistanceKm = d
		}
	}

	return s, degraded
}

// parseNumber 接受 JSON 数字，也接受数字字符串（部分客户端会这样提交）。
func parseNumber(v json.RawMessage) (float64, bool) {
	var f float64
	if err := json.Unmarshal(v, &f); err == nil {
		return f, true
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func normalizeTags(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
