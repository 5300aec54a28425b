package dispatch

import "testing"

const botID = "@shiya:example.org"

// always passes the engagement gate.
func alwaysEngage() float64 { return 0.0 }

// never passes the engagement gate.
func neverEngage() float64 { return 1.0 }

func newTestPolicy() *Policy {
	return &Policy{
		BotUserID:     botID,
		MentionTokens: []string{botID, "@Shiya"},
		Prefix:        "!shiya",
		ReplyChance:   0.7,
		Rand:          alwaysEngage,
	}
}

func TestDecide_DiscardsOwnMessages(t *testing.T) {
	p := newTestPolicy()
	d := p.Decide(Event{AuthorID: botID, AuthorIsSelf: true, Content: botID + " hello"})
	if d.Action != ActionDiscard {
		t.Errorf("own message: got action %v, want discard", d.Action)
	}
}

func TestDecide_EngagementGate(t *testing.T) {
	p := newTestPolicy()
	p.Rand = neverEngage

	// The gate applies before everything — even commands and mentions.
	events := []Event{
		{AuthorID: "@a:x", Content: "!shiya help"},
		{AuthorID: "@a:x", Content: botID + " hello", Mentions: []Mention{{ID: botID}}},
	}
	for _, ev := range events {
		if d := p.Decide(ev); d.Action != ActionDiscard {
			t.Errorf("gated event %q: got action %v, want discard", ev.Content, d.Action)
		}
	}
}

func TestDecide_GateBoundary(t *testing.T) {
	p := newTestPolicy()
	p.ReplyChance = 0.7

	// A draw exactly equal to the chance passes (spec: discard only when
	// the sample exceeds the chance).
	p.Rand = func() float64 { return 0.7 }
	d := p.Decide(Event{AuthorID: "@a:x", Content: "!shiya help"})
	if d.Action != ActionCommand {
		t.Errorf("draw == chance should pass the gate, got %v", d.Action)
	}

	p.Rand = func() float64 { return 0.70001 }
	d = p.Decide(Event{AuthorID: "@a:x", Content: "!shiya help"})
	if d.Action != ActionDiscard {
		t.Errorf("draw > chance should be discarded, got %v", d.Action)
	}
}

func TestDecide_CommandBypassesMentionCheck(t *testing.T) {
	p := newTestPolicy()
	d := p.Decide(Event{AuthorID: "@a:x", Content: "!shiya remember likes tea"})
	if d.Action != ActionCommand {
		t.Fatalf("got action %v, want command", d.Action)
	}
	if d.CommandText != "!shiya remember likes tea" {
		t.Errorf("command text: got %q", d.CommandText)
	}
}

func TestDecide_UnmentionedIsDiscarded(t *testing.T) {
	p := newTestPolicy()
	d := p.Decide(Event{AuthorID: "@a:x", Content: "just chatting with friends"})
	if d.Action != ActionDiscard {
		t.Errorf("unmentioned chatter: got action %v, want discard", d.Action)
	}
}

func TestDecide_StructuredMention(t *testing.T) {
	p := newTestPolicy()
	d := p.Decide(Event{
		AuthorID: "@a:x",
		Content:  "hey, how's it going?",
		Mentions: []Mention{{ID: botID, DisplayName: "Shiya"}},
	})
	if d.Action != ActionReply {
		t.Fatalf("got action %v, want reply", d.Action)
	}
	if d.Text != "hey, how's it going?" {
		t.Errorf("text: got %q", d.Text)
	}
}

func TestDecide_TextMentionStripped(t *testing.T) {
	p := newTestPolicy()
	tests := []struct {
		content string
		want    string
	}{
		{botID + " hello there", "hello there"},
		{"@Shiya: hello there", "hello there"},
		{"@Shiya , hello", "hello"},
	}
	for _, tt := range tests {
		d := p.Decide(Event{AuthorID: "@a:x", Content: tt.content})
		if d.Action != ActionReply {
			t.Errorf("%q: got action %v, want reply", tt.content, d.Action)
			continue
		}
		if d.Text != tt.want {
			t.Errorf("%q: stripped text got %q, want %q", tt.content, d.Text, tt.want)
		}
	}
}

func TestDecide_EmptyAfterStripPrompts(t *testing.T) {
	p := newTestPolicy()
	d := p.Decide(Event{
		AuthorID: "@a:x",
		Content:  botID + "  ",
		Mentions: []Mention{{ID: botID}},
	})
	if d.Action != ActionPrompt {
		t.Errorf("empty mention: got action %v, want prompt", d.Action)
	}
}

func TestDecide_ReferencedUsers(t *testing.T) {
	p := newTestPolicy()
	d := p.Decide(Event{
		AuthorID: "@alice:x",
		Content:  botID + " what do you know about Bob and Carol?",
		Mentions: []Mention{
			{ID: botID, DisplayName: "Shiya"},       // bot: excluded
			{ID: "@bob:x", DisplayName: "Bob"},      //
			{ID: "@alice:x", DisplayName: "Alice"},  // author: excluded
			{ID: "@carol:x", DisplayName: "Carol"},  //
			{ID: "@bob:x", DisplayName: "Bob Dupe"}, // duplicate: excluded
		},
	})
	if d.Action != ActionReply {
		t.Fatalf("got action %v, want reply", d.Action)
	}
	if len(d.ReferencedUsers) != 2 {
		t.Fatalf("referenced users: got %v", d.ReferencedUsers)
	}
	if d.ReferencedUsers[0].ID != "@bob:x" || d.ReferencedUsers[1].ID != "@carol:x" {
		t.Errorf("referenced users out of order: %v", d.ReferencedUsers)
	}
	if d.ReferencedUsers[0].DisplayName != "Bob" {
		t.Errorf("dedup should keep the first mention: %v", d.ReferencedUsers[0])
	}
}

func TestDecide_DefaultReplyChance(t *testing.T) {
	p := &Policy{BotUserID: botID, Prefix: "!shiya"}
	p.Rand = func() float64 { return 0.69 } // under the 0.7 default
	d := p.Decide(Event{AuthorID: "@a:x", Content: "!shiya help"})
	if d.Action != ActionCommand {
		t.Errorf("default chance should admit a 0.69 draw, got %v", d.Action)
	}
}
