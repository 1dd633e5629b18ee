package enums

import "testing"

func TestParseFeedTypeAcceptsHyphenatedAlias(t *testing.T) {
	got, err := ParseFeedType("Pre-Layer")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != FeedTypePreLayer {
		t.Fatalf("expected pre_layer, got %q", got)
	}
	if _, err := ParseFeedType("mash"); err == nil {
		t.Fatal("expected unknown feed type to fail")
	}
}

func TestFeedTypeAgeRange(t *testing.T) {
	if FeedTypeStarter.AgeRange() != "J1-J14" {
		t.Fatalf("unexpected starter range %q", FeedTypeStarter.AgeRange())
	}
	if FeedType("other").AgeRange() != "" {
		t.Fatal("expected empty range for unknown feed type")
	}
}
