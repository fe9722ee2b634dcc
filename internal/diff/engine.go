package diff

import (
	"slices"
	"strconv"
	"strings"

	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

// Field is one tracked attribute.
type Field struct {
	// Name is the JSON attribute name used as the ChangeSet key.
	Name string

	// Equal reports whether the attribute is unchanged between a and b.
	Equal func(a, b types.Attributes) bool

	// Render formats the attribute for notifications.
	Render func(a types.Attributes) string
}

func stringField(name string, get func(types.Attributes) string) Field {
	return Field{
		Name:   name,
		Equal:  func(a, b types.Attributes) bool { return get(a) == get(b) },
		Render: get,
	}
}

// DefaultFields is the tracked attribute list, in reporting order.
var DefaultFields = []Field{
	stringField("name", func(a types.Attributes) string { return a.Name }),
	stringField("permalink", func(a types.Attributes) string { return a.Permalink }),
	stringField("state", func(a types.Attributes) string { return a.State }),
	stringField("visibility-mode", func(a types.Attributes) string { return a.VisibilityMode }),
	stringField("description", func(a types.Attributes) string { return a.Description }),
	{
		Name:   "project-tag-list",
		Equal:  func(a, b types.Attributes) bool { return slices.Equal(a.ProjectTagList, b.ProjectTagList) },
		Render: func(a types.Attributes) string { return strings.Join(a.ProjectTagList, ", ") },
	},
	stringField("published-at", func(a types.Attributes) string { return a.PublishedAt }),
	stringField("banner-url", func(a types.Attributes) string { return a.BannerURL }),
	stringField("image-url", func(a types.Attributes) string { return a.ImageURL }),
	stringField("archival-reason-message", func(a types.Attributes) string { return a.ArchivalReasonMessage }),
	{
		Name: "parent-id",
		Equal: func(a, b types.Attributes) bool {
			if a.ParentID == nil || b.ParentID == nil {
				return a.ParentID == b.ParentID
			}
			return *a.ParentID == *b.ParentID
		},
		Render: func(a types.Attributes) string {
			if a.ParentID == nil {
				return ""
			}
			return strconv.Itoa(*a.ParentID)
		},
	},
}

// Engine diffs records over a fixed field list.
type Engine struct {
	fields []Field
}

// New returns an Engine tracking fields, or DefaultFields when none are given.
func New(fields ...Field) *Engine {
	if len(fields) == 0 {
		fields = DefaultFields
	}
	return &Engine{fields: fields}
}

// Diff reports whether any tracked attribute differs between oldRec and
// newRec, and which ones.
func (e *Engine) Diff(oldRec, newRec types.Record) (bool, types.ChangeSet) {
	changes := types.ChangeSet{}
	for _, f := range e.fields {
		if f.Equal(oldRec.Attributes, newRec.Attributes) {
			continue
		}
		changes[f.Name] = types.Change{
			Old: f.Render(oldRec.Attributes),
			New: f.Render(newRec.Attributes),
		}
	}
	return len(changes) > 0, changes
}

// Fields returns the names of the tracked attributes in reporting order.
func (e *Engine) Fields() []string {
	names := make([]string, len(e.fields))
	for i, f := range e.fields {
		names[i] = f.Name
	}
	return names
}
