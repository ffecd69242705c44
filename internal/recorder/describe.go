package recorder

import (
	"fmt"

	"github.com/stepcap/stepcap/internal/protocol"
)

// clickDescription builds the human-readable caption for a click action,
// branching on tag name and role attribute.
func clickDescription(el protocol.ElementInfo) string {
	label := elementLabel(el)

	noun := el.Tag
	switch {
	case el.Tag == "button",
		el.Attributes["role"] == "button",
		el.Tag == "input" && (el.Attributes["type"] == "submit" || el.Attributes["type"] == "button"):
		noun = "button"
	case el.Tag == "a", el.Attributes["role"] == "link":
		noun = "link"
	}

	if label == "" {
		return fmt.Sprintf("Click on %s", noun)
	}
	return fmt.Sprintf("Click on %s '%s'", noun, label)
}

// inputDescription builds the caption for an input action. Masked values
// are never echoed into the description.
func inputDescription(el protocol.ElementInfo, masked bool) string {
	field := fieldLabel(el)
	if masked {
		return fmt.Sprintf("Enter sensitive data (masked) in '%s'", field)
	}
	return fmt.Sprintf("Enter '%s' in '%s'", el.Value, field)
}

// elementLabel picks the best visible label for a clicked element.
func elementLabel(el protocol.ElementInfo) string {
	if el.Text != "" {
		return el.Text
	}
	if v := el.Attributes["aria-label"]; v != "" {
		return v
	}
	return el.Value
}

// fieldLabel picks the best name for a form field.
func fieldLabel(el protocol.ElementInfo) string {
	for _, key := range []string{"aria-label", "placeholder", "name"} {
		if v := el.Attributes[key]; v != "" {
			return v
		}
	}
	return el.Tag
}
