package roster

import "strings"

// GenericFailureMessage is shown when the server gives no usable detail.
const GenericFailureMessage = "Something went wrong. Please try again."

// classificationRule maps server detail substrings to a user-facing
// message. The backend exposes error semantics only through a free-form
// detail string, so classification is substring matching against known
// phrases. The list is ordered: the first matching rule wins.
//
// TODO: replace with a structured error code once the core API adds one;
// this coupling to backend wording breaks silently when the phrasing
// changes.
type classificationRule struct {
	substrings []string
	message    string
}

var classificationRules = []classificationRule{
	{[]string{"has games", "has matches"}, "Cannot remove this player: they have recorded games in this session"},
	{[]string{"not in roster"}, "Player is not in the session roster"},
	{[]string{"creator cannot remove"}, "The session creator cannot be removed"},
	{[]string{"already"}, "Player is already in the session"},
	{[]string{"not found"}, "Player not found"},
}

// Classify turns a server error detail into a user-facing message. An
// unrecognized non-empty detail passes through raw; an empty detail falls
// back to the generic message. Pure function, matching is
// case-insensitive.
func Classify(detail string) string {
	if strings.TrimSpace(detail) == "" {
		return GenericFailureMessage
	}
	lower := strings.ToLower(detail)
	for _, rule := range classificationRules {
		for _, substr := range rule.substrings {
			if strings.Contains(lower, substr) {
				return rule.message
			}
		}
	}
	return detail
}

// Error is a classified roster mutation failure. Message is safe to show
// to the user; Detail preserves the raw server phrasing for logs.
type Error struct {
	Op      string
	Detail  string
	Message string
	Err     error
}

func (e *Error) Error() string { return e.Op + ": " + e.Message }

func (e *Error) Unwrap() error { return e.Err }
