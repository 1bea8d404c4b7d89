package workflow

import (
	"regexp"
	"strings"
)

// IntentKind tags the mutation extracted from a chat message.
type IntentKind string

const (
	IntentAddStakeholder    IntentKind = "add_stakeholder"
	IntentBookMeeting       IntentKind = "book_meeting"
	IntentRemoveStakeholder IntentKind = "remove_stakeholder"
	IntentUpdateSender      IntentKind = "update_sender"
	IntentUpdateOrganizer   IntentKind = "update_organizer"
	IntentUnrecognized      IntentKind = "unrecognized"
)

// Intent is the typed result of best-effort chat parsing. The parser is
// total: malformed input yields IntentUnrecognized with guidance, never an
// error.
type Intent struct {
	Kind    IntentKind
	Address string
	Role    string
	Context string
	// Help is set on unrecognized intents with guidance for the user.
	Help string
}

const intentHelp = "Message noted. Commands: 'add [Role] at [email]', " +
	"'book meeting with [Role] at [email]', 'remove [email]', " +
	"'email from [email]' to change the sender, 'calendar [email]' to change the organizer"

var (
	addressRe = regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`)
	contextRe = regexp.MustCompile(`(?i)\b(?:for|regarding|about|on)\s+(.+)$`)
)

var (
	meetingKeywords = []string{"book meeting", "schedule meeting", "meeting with", "schedule call", "book call"}
	addKeywords     = []string{"add ", "include ", "contact ", "reach out", "send to", "invite "}
)

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// ParseIntent extracts at most one stakeholder mutation from free text.
func ParseIntent(text string) Intent {
	lower := strings.ToLower(text)
	address := addressRe.FindString(text)

	switch {
	case containsAny(lower, meetingKeywords):
		if address == "" {
			return Intent{Kind: IntentUnrecognized, Help: "Please include an email address for the meeting (e.g., person@example.com)"}
		}
		return Intent{
			Kind:    IntentBookMeeting,
			Address: address,
			Role:    fallbackRole(extractRole(text, address, `(?:with|for)`)),
			Context: extractContext(text),
		}

	case strings.Contains(lower, "remove "):
		if address == "" {
			return Intent{Kind: IntentUnrecognized, Help: "Could not parse email to remove. Try: 'remove [email@example.com]'"}
		}
		return Intent{Kind: IntentRemoveStakeholder, Address: address}

	case strings.Contains(lower, "email from ") || strings.Contains(lower, "sender "):
		if address == "" {
			return Intent{Kind: IntentUnrecognized, Help: intentHelp}
		}
		return Intent{Kind: IntentUpdateSender, Address: address}

	case strings.Contains(lower, "meeting recipient ") || strings.Contains(lower, "calendar ") || strings.Contains(lower, "organizer "):
		if address == "" {
			return Intent{Kind: IntentUnrecognized, Help: intentHelp}
		}
		return Intent{Kind: IntentUpdateOrganizer, Address: address}

	case containsAny(lower, addKeywords) || strings.Contains(lower, "email "):
		if address == "" {
			return Intent{Kind: IntentUnrecognized, Help: "Please include an email address (e.g., person@example.com)"}
		}
		role := extractRole(text, address, `(?:add|include|contact|invite)`)
		if role == "" {
			role = extractRoleAfter(text, address)
		}
		return Intent{
			Kind:    IntentAddStakeholder,
			Address: address,
			Role:    fallbackRole(role),
			Context: extractContext(text),
		}
	}

	return Intent{Kind: IntentUnrecognized, Help: intentHelp}
}

// extractRole pulls the words between a verb and the address, as in
// "add Tribal Chief at chief@example.ca". Returns "" when nothing usable
// precedes the address.
func extractRole(text, address, verbs string) string {
	re, err := regexp.Compile(`(?i)` + verbs + `\s+([^@]+?)\s+(?:at|:|as)?\s*` + regexp.QuoteMeta(address))
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	role := strings.TrimSpace(m[1])
	role = strings.TrimSuffix(role, " at")
	return strings.TrimSpace(role)
}

// extractRoleAfter handles "[email] as [role]".
func extractRoleAfter(text, address string) string {
	re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(address) + `\s+as\s+([^,.]+)`)
	if err != nil {
		return ""
	}
	m := re.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

func fallbackRole(role string) string {
	if len(role) < 2 {
		return "Stakeholder"
	}
	return role
}

func extractContext(text string) string {
	m := contextRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	context := strings.TrimSpace(m[1])
	// The trailing clause often re-captures the address; that is role
	// plumbing, not consultation context.
	if addressRe.MatchString(context) {
		context = strings.TrimSpace(addressRe.ReplaceAllString(context, ""))
		context = strings.TrimRight(context, " at")
		context = strings.TrimSpace(context)
	}
	return context
}
