package cards

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DeadlineLayout is the HTML datetime-local format accepted for deadlines.
const DeadlineLayout = "2006-01-02T15:04"

func isNull(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) == 0 || bytes.Equal(raw, []byte("null"))
}

// ParseItems decodes a checklist. Absent or null yields an empty list, any
// other non-array is a ValidationError. Entries that are not objects or
// whose trimmed text is empty are dropped.
func ParseItems(raw json.RawMessage) ([]Item, error) {
	out := []Item{}
	if isNull(raw) {
		return out, nil
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, ValidationError{Field: "contents", Msg: "contents must be a list"}
	}
	for _, e := range elems {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(e, &obj); err != nil || obj == nil {
			continue
		}
		var text string
		if err := json.Unmarshal(obj["text"], &text); err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out = append(out, Item{Text: text, Completed: truthy(obj["completed"])})
	}
	return out, nil
}

// truthy follows JSON truthiness: false, 0, "", null, [] and {} are false.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if isNull(raw) {
		return false
	}
	switch raw[0] {
	case 't':
		return true
	case 'f':
		return false
	case '"':
		var s string
		return json.Unmarshal(raw, &s) == nil && s != ""
	case '[':
		var a []json.RawMessage
		return json.Unmarshal(raw, &a) == nil && len(a) > 0
	case '{':
		var m map[string]json.RawMessage
		return json.Unmarshal(raw, &m) == nil && len(m) > 0
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		return err == nil && f != 0
	}
}

// ParseDeadline normalizes a deadline to unix seconds. A number is taken as
// seconds (fraction dropped); a string is parsed with DeadlineLayout in loc.
// Falsy or unparseable input yields nil.
func ParseDeadline(raw json.RawMessage, loc *time.Location) *int64 {
	if !truthy(raw) {
		return nil
	}
	raw = bytes.TrimSpace(raw)
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		if loc == nil {
			loc = time.Local
		}
		t, err := time.ParseInLocation(DeadlineLayout, strings.TrimSpace(s), loc)
		if err != nil {
			return nil
		}
		ts := t.Unix()
		return &ts
	case 't', '[', '{':
		return nil
	default:
		f, err := strconv.ParseFloat(string(raw), 64)
		// Outside the int64 range the conversion below is undefined.
		if err != nil || math.IsNaN(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return nil
		}
		ts := int64(f)
		return &ts
	}
}

// isEmptyString reports whether raw is exactly the JSON string "".
func isEmptyString(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte(`""`))
}
