package notify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

// SlackText renders a report as Slack mrkdwn. Each record is a block of lines
// followed by a blank line.
func SlackText(r types.Report) string {
	var b strings.Builder
	for _, rec := range r.New {
		fmt.Fprintf(&b, "New item: *<%s|%s>*\n", rec.Links.Self, stripLineBreaks(rec.Attributes.Name))
		if len(rec.Attributes.ProjectTagList) > 0 {
			fmt.Fprintf(&b, "• Tags: %s\n", joinTags(rec.Attributes.ProjectTagList, ", "))
		}
		fmt.Fprintf(&b, "• State: %s\n", capitalize(rec.Attributes.State))
		b.WriteString("\n")
	}
	for _, c := range r.Changed {
		fmt.Fprintf(&b, "Changed item: *<%s|%s>*\n", c.Current.Links.Self, stripLineBreaks(c.Current.Attributes.Name))
		for _, name := range changeNames(c.Changes) {
			ch := c.Changes[name]
			fmt.Fprintf(&b, "• %s: '%s' -> '%s'\n", name, ch.Old, ch.New)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// summary is a one-line description used as a title.
func summary(r types.Report) string {
	return fmt.Sprintf("%d new, %d changed", len(r.New), len(r.Changed))
}

// changeNames returns the changed field names in a stable order.
func changeNames(cs types.ChangeSet) []string {
	names := make([]string, 0, len(cs))
	for name := range cs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func joinTags(tags []string, sep string) string {
	return strings.Join(tags, sep)
}

func capitalize(s string) string {
	if strings.TrimSpace(s) == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func stripLineBreaks(s string) string {
	return strings.NewReplacer("\r\n", "", "\r", "", "\n", "").Replace(s)
}
