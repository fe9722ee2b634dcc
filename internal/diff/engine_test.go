package diff

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/rezoningwatch/rezoningwatch/pkg/types"
)

func rec(attrs types.Attributes) types.Record {
	return types.Record{ID: "1", Type: "projects", Attributes: attrs}
}

func intPtr(v int) *int { return &v }

func TestDiff_NoChange(t *testing.T) {
	p := rec(types.Attributes{Name: "foo", State: "published", ProjectTagList: []string{"a"}, ParentID: intPtr(3)})

	changed, changes := New().Diff(p, p)
	if changed {
		t.Error("changed = true, want false")
	}
	if len(changes) != 0 {
		t.Errorf("changes = %v, want empty", changes)
	}
}

func TestDiff_StateChange(t *testing.T) {
	oldRec := rec(types.Attributes{Name: "foo", State: "draft"})
	newRec := rec(types.Attributes{Name: "foo", State: "published"})

	changed, changes := New().Diff(oldRec, newRec)
	if !changed {
		t.Fatal("changed = false, want true")
	}
	want := types.ChangeSet{"state": {Old: "draft", New: "published"}}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	oldRec := rec(types.Attributes{Name: "foo", Description: "derp", State: "published"})
	newRec := rec(types.Attributes{Name: "bar", Description: "derp", State: "archived"})

	changed, changes := New().Diff(oldRec, newRec)
	if !changed {
		t.Fatal("changed = false, want true")
	}
	want := types.ChangeSet{
		"name":  {Old: "foo", New: "bar"},
		"state": {Old: "published", New: "archived"},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestDiff_Equality(t *testing.T) {
	tests := []struct {
		name    string
		a, b    types.Attributes
		changed bool
	}{
		{"case differs", types.Attributes{Name: "Main St"}, types.Attributes{Name: "main st"}, true},
		{"trailing space", types.Attributes{Name: "Main St"}, types.Attributes{Name: "Main St "}, true},
		{"same tags", types.Attributes{ProjectTagList: []string{"a", "b"}}, types.Attributes{ProjectTagList: []string{"a", "b"}}, false},
		{"tag order", types.Attributes{ProjectTagList: []string{"a", "b"}}, types.Attributes{ProjectTagList: []string{"b", "a"}}, true},
		{"tag added", types.Attributes{ProjectTagList: []string{"a"}}, types.Attributes{ProjectTagList: []string{"a", "b"}}, true},
		{"nil vs empty tags", types.Attributes{}, types.Attributes{ProjectTagList: []string{}}, false},
		{"parent set", types.Attributes{}, types.Attributes{ParentID: intPtr(1)}, true},
		{"parent same value", types.Attributes{ParentID: intPtr(1)}, types.Attributes{ParentID: intPtr(1)}, false},
		{"untracked field", types.Attributes{SurveyCount: 1}, types.Attributes{SurveyCount: 2}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			changed, _ := New().Diff(rec(tt.a), rec(tt.b))
			if changed != tt.changed {
				t.Errorf("changed = %v, want %v", changed, tt.changed)
			}
		})
	}
}

func TestDiff_RendersListsAndPointers(t *testing.T) {
	oldRec := rec(types.Attributes{ProjectTagList: []string{"rezoning"}})
	newRec := rec(types.Attributes{ProjectTagList: []string{"rezoning", "cd-1"}, ParentID: intPtr(7)})

	_, changes := New().Diff(oldRec, newRec)
	want := types.ChangeSet{
		"project-tag-list": {Old: "rezoning", New: "rezoning, cd-1"},
		"parent-id":        {Old: "", New: "7"},
	}
	if diff := cmp.Diff(want, changes); diff != "" {
		t.Errorf("changes mismatch (-want +got):\n%s", diff)
	}
}

func TestNew_CustomFields(t *testing.T) {
	e := New(DefaultFields[2])
	if diff := cmp.Diff([]string{"state"}, e.Fields()); diff != "" {
		t.Errorf("Fields (-want +got):\n%s", diff)
	}
	changed, _ := e.Diff(rec(types.Attributes{Name: "a"}), rec(types.Attributes{Name: "b"}))
	if changed {
		t.Error("untracked name change should not be reported")
	}
}
