package services

import (
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"research-board-platform/models"
)

func TestCanonicalName(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"Study Group", "studygroup"},
		{"  Deep  Learning ", "deeplearning"},
		{"ALPHA", "alpha"},
		{"", ""},
	}
	for _, c := range cases {
		if got := canonicalName(c.in); got != c.want {
			t.Errorf("canonicalName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestMentionedGroupsMatchesIgnoringCaseAndSpaces(t *testing.T) {
	groups := []models.Group{
		{Name: "Study Group"},
		{Name: "Archive"},
		{Name: "Deep Learning"},
	}

	mentioned := mentionedGroups(groups, "Compare the studygroup with DEEP learning please")
	if len(mentioned) != 2 {
		t.Fatalf("expected 2 mentioned groups, got %d", len(mentioned))
	}
	if mentioned[0].Name != "Study Group" || mentioned[1].Name != "Deep Learning" {
		t.Errorf("unexpected groups %q, %q", mentioned[0].Name, mentioned[1].Name)
	}
}

func TestMentionedGroupsPreservesBoardOrder(t *testing.T) {
	groups := []models.Group{
		{Name: "beta"},
		{Name: "alpha"},
	}

	mentioned := mentionedGroups(groups, "alpha vs beta")
	if len(mentioned) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(mentioned))
	}
	if mentioned[0].Name != "beta" {
		t.Errorf("expected board order preserved, got %q first", mentioned[0].Name)
	}
}

func TestMentionedGroupsIgnoresEmptyNames(t *testing.T) {
	groups := []models.Group{{Name: ""}, {Name: "   "}}
	if got := mentionedGroups(groups, "anything at all"); len(got) != 0 {
		t.Errorf("expected no matches for blank names, got %d", len(got))
	}
}

func TestDescriptionLine(t *testing.T) {
	g := models.Group{Name: "Papers", Template: "Survey papers on retrieval."}
	want := "Group Papers description: Survey papers on retrieval."
	if got := descriptionLine(g); got != want {
		t.Errorf("descriptionLine = %q, want %q", got, want)
	}
}

func TestJoinChunkTexts(t *testing.T) {
	chunks := []models.ContentChunk{
		{Text: "first"},
		{Text: "second"},
		{Text: "third"},
	}
	if got := joinChunkTexts(chunks, "\n"); got != "first\nsecond\nthird" {
		t.Errorf("unexpected join: %q", got)
	}
	if got := joinChunkTexts(nil, "\n"); got != "" {
		t.Errorf("expected empty join, got %q", got)
	}
}

func TestAppendDistinct(t *testing.T) {
	ids := appendDistinct(nil, "a")
	ids = appendDistinct(ids, "b")
	ids = appendDistinct(ids, "a")
	ids = appendDistinct(ids, "")
	if len(ids) != 2 || ids[0] != "a" || ids[1] != "b" {
		t.Errorf("unexpected ids %v", ids)
	}
}

func TestHexIDsRoundTrip(t *testing.T) {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	got := hexIDs([]primitive.ObjectID{a, b})
	if len(got) != 2 || got[0] != a.Hex() || got[1] != b.Hex() {
		t.Errorf("unexpected hex ids %v", got)
	}
}

func TestContainsObjectID(t *testing.T) {
	a := primitive.NewObjectID()
	b := primitive.NewObjectID()
	if !containsObjectID([]primitive.ObjectID{a, b}, b) {
		t.Error("expected member to be found")
	}
	if containsObjectID([]primitive.ObjectID{a}, b) {
		t.Error("expected non-member to be absent")
	}
}

func TestGroupBlockFormat(t *testing.T) {
	piece := groupBlock("Study Group", []string{"one", "two"})
	if !strings.HasPrefix(piece.Text, "=== GROUP Study Group ===\n") {
		t.Errorf("unexpected block header in %q", piece.Text)
	}
	if !strings.HasSuffix(piece.Text, "one\n\ntwo") {
		t.Errorf("expected double-newline joined texts, got %q", piece.Text)
	}
	if piece.ItemID != "" {
		t.Errorf("group blocks carry no single item id, got %q", piece.ItemID)
	}
}
