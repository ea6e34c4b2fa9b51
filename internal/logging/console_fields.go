package logging

import "strings"

type infoField struct {
	label string
	value string
}

// Keys shown first, in this order, on info-level console lines.
var infoHighlightKeys = []string{
	FieldAlert,
	FieldEventType,
	FieldFilename,
	FieldMode,
	"outcome",
	"size_bytes",
	"output_bytes",
	"elapsed",
	"exit_code",
	"error",
	FieldErrorHint,
	FieldImpact,
	"note",
}

// selectInfoFields returns formatted info-level fields and a count of hidden entries.
func selectInfoFields(attrs []kv) ([]infoField, int) {
	if len(attrs) == 0 {
		return nil, 0
	}
	used := make([]bool, len(attrs))
	result := make([]infoField, 0, len(attrs))
	hidden := 0

	add := func(idx int) {
		used[idx] = true
		key := attrs[idx].key
		if skipInfoKey(key) {
			return
		}
		if isDebugOnlyKey(key) {
			hidden++
			return
		}
		result = append(result, infoField{label: displayLabel(key), value: formatValueForKey(key, attrs[idx].value)})
	}

	for _, key := range infoHighlightKeys {
		for idx, attr := range attrs {
			if !used[idx] && attr.key == key {
				add(idx)
				break
			}
		}
	}
	for idx := range attrs {
		if !used[idx] {
			add(idx)
		}
	}
	return result, hidden
}

func skipInfoKey(key string) bool {
	switch key {
	case "", FieldJobID, FieldStage, FieldComponent:
		return true
	default:
		return false
	}
}

func isDebugOnlyKey(key string) bool {
	switch key {
	case FieldCorrelationID, "args", "stdout", "download_url":
		return true
	}
	return strings.HasSuffix(key, "_path") || strings.HasSuffix(key, "_dir")
}

func displayLabel(key string) string {
	switch key {
	case FieldAlert:
		return "Alert"
	case FieldEventType:
		return "Event"
	case FieldErrorHint:
		return "Hint"
	case "size_bytes":
		return "Size"
	case "output_bytes":
		return "Output"
	default:
		return titleizeKey(key)
	}
}

func titleizeKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool {
		return r == '_' || r == '-' || r == '.'
	})
	for i, part := range parts {
		if part == "" {
			continue
		}
		lower := strings.ToLower(part)
		parts[i] = strings.ToUpper(lower[:1]) + lower[1:]
	}
	return strings.Join(parts, " ")
}

func attrValue(attrs []kv, key string) string {
	for _, kv := range attrs {
		if kv.key == key {
			return attrString(kv.value)
		}
	}
	return ""
}
