package vectorsolutions

import (
	"regexp"
	"strings"
)

// Selectors locate the form controls. Field selectors are CSS; the *Text
// entries are case-insensitive regular expressions matched against
// button and page text.
type Selectors struct {
	Location    string
	Description string
	Duration    string
	Date        string
	Time        string
	Instructor  string
	TopicLabel  string
	Search      string
	Candidates  string
	Validation  string
	Password    string
	Username    string

	AddUsersText string
	AddText      string
	ContinueText string
	SubmitText   string
	LoginText    string
	SuccessText  string
}

// DefaultSelectors match the Company Training record form.
func DefaultSelectors() Selectors {
	return Selectors{
		Location:    "input#nodeUserVal2",
		Description: "textarea#nodeUserVal4",
		Duration:    "input#nodeUserVal5",
		Date:        "input#nodeUserVal6",
		Time:        `select[name="nodeUserVal6_endTime"]`,
		Instructor:  "input#nodeUserVal7",
		TopicLabel:  "label",
		Search:      `input[type="search"], input[placeholder*="Search" i], input[aria-label*="Search" i]`,
		Candidates:  `[role="option"], li, td, option`,
		Validation:  `.validation-summary-errors li, .field-validation-error, .error-message, [role="alert"]`,
		Password:    `input[type="password"]`,
		Username:    `input[type="email"], input[name*="user" i], input[id*="user" i], input[type="text"]`,

		AddUsersText: `save\s+and\s+add\s+users`,
		AddText:      `^\s*add\b`,
		ContinueText: `^\s*(continue|next)\b`,
		SubmitText:   `^\s*(submit|save|finish)\s*$`,
		LoginText:    `^\s*(log\s*in|sign\s*in|continue)\s*$`,
		SuccessText:  `success|submitted|saved|completed`,
	}
}

// WithOverrides returns a copy of s with every non-empty override applied.
// Keys are the snake_case field names, e.g. "location" or "success_text".
// Unknown keys are reported back.
func (s Selectors) WithOverrides(overrides map[string]string) (Selectors, []string) {
	fields := map[string]*string{
		"location":       &s.Location,
		"description":    &s.Description,
		"duration":       &s.Duration,
		"date":           &s.Date,
		"time":           &s.Time,
		"instructor":     &s.Instructor,
		"topic_label":    &s.TopicLabel,
		"search":         &s.Search,
		"candidates":     &s.Candidates,
		"validation":     &s.Validation,
		"password":       &s.Password,
		"username":       &s.Username,
		"add_users_text": &s.AddUsersText,
		"add_text":       &s.AddText,
		"continue_text":  &s.ContinueText,
		"submit_text":    &s.SubmitText,
		"login_text":     &s.LoginText,
		"success_text":   &s.SuccessText,
	}
	var unknown []string
	for k, v := range overrides {
		dst, ok := fields[strings.ToLower(strings.TrimSpace(k))]
		if !ok {
			unknown = append(unknown, k)
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	return s, unknown
}

// jsRegex wraps a pattern for rod's ElementR, which takes JavaScript regex
// literals. Flags go after the closing slash.
func jsRegex(pattern string) string {
	return "/" + strings.ReplaceAll(pattern, "/", `\/`) + "/i"
}

// topicPattern matches a checkbox label for topic, ignoring case and
// surrounding whitespace.
func topicPattern(topic string) string {
	return `^\s*` + regexp.QuoteMeta(strings.TrimSpace(topic)) + `\s*$`
}
