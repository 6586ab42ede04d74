package tags

import "testing"

func TestExtract_SingleTag(t *testing.T) {
	got := Extract("<user_query>what time is it</user_query>")
	if len(got) != 1 {
		t.Fatalf("expected 1 tag, got %d", len(got))
	}
	if got[0].Name != "user_query" || got[0].Content != "what time is it" {
		t.Fatalf("unexpected tag: %+v", got[0])
	}
}

func TestExtract_OutermostFirstNotNested(t *testing.T) {
	s := "<environment_details><user_query>hi</user_query></environment_details>"
	got := Extract(s)
	if len(got) != 1 {
		t.Fatalf("expected only the outer tag extracted, got %d: %+v", len(got), got)
	}
	if got[0].Name != "environment_details" {
		t.Fatalf("expected outer tag, got %s", got[0].Name)
	}
}

func TestExtract_ResumesAfterMatchedTag(t *testing.T) {
	s := "<context>a</context> plain text <user_query>b</user_query>"
	got := Extract(s)
	if len(got) != 2 {
		t.Fatalf("expected 2 sibling tags, got %d", len(got))
	}
	if got[0].Name != "context" || got[1].Name != "user_query" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestExtract_UnclosedTagIgnored(t *testing.T) {
	got := Extract("<user_query>no closing tag here")
	if len(got) != 0 {
		t.Fatalf("expected no tags for unclosed markup, got %d", len(got))
	}
}

func TestClassify_UserQueryIsPayloadButFlaggedScaffolding(t *testing.T) {
	// Preserved verbatim from the original registry: user_query is
	// Payload-classified but still carries the scaffolding flag.
	if Classify("user_query") != CategoryPayload {
		t.Fatalf("expected user_query to classify as Payload")
	}
	if !registry["user_query"].isScaffolding {
		t.Fatalf("expected user_query's is_scaffolding flag to report true despite Payload classification")
	}
}

func TestClassify_Unregistered(t *testing.T) {
	if Classify("made_up_tag") != CategoryUnregistered {
		t.Fatalf("expected unregistered tag name to classify as Unregistered")
	}
}

func TestStripScaffolding_RemovesOnlyScaffoldingTags(t *testing.T) {
	s := "<system_reminder>be nice</system_reminder>Hello <user_query>hi</user_query>"
	got := StripScaffolding(s)
	if got != "Hello <user_query>hi</user_query>" {
		t.Fatalf("unexpected stripped result: %q", got)
	}
}

func TestComputeDeltas(t *testing.T) {
	prev := []Tag{{Name: "workspace_rules", Content: "v1"}, {Name: "context", Content: "same"}}
	curr := []Tag{{Name: "workspace_rules", Content: "v2"}, {Name: "context", Content: "same"}, {Name: "user_query", Content: "new"}}

	deltas := ComputeDeltas(prev, curr)

	if deltas["workspace_rules"] != DeltaModified {
		t.Errorf("expected workspace_rules modified, got %s", deltas["workspace_rules"])
	}
	if deltas["context"] != DeltaUnchanged {
		t.Errorf("expected context unchanged, got %s", deltas["context"])
	}
	if deltas["user_query"] != DeltaNew {
		t.Errorf("expected user_query new, got %s", deltas["user_query"])
	}
}

func TestComputeDeltas_Removed(t *testing.T) {
	prev := []Tag{{Name: "environment_details", Content: "x"}}
	curr := []Tag{}
	deltas := ComputeDeltas(prev, curr)
	if deltas["environment_details"] != DeltaRemoved {
		t.Errorf("expected environment_details removed, got %s", deltas["environment_details"])
	}
}
