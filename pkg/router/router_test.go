package router //nolint:testpackage // white-box tests

import (
	"errors"
	"regexp"
	"testing"

	"tanuki/pkg/event"
)

// fakeExtractor recognizes `claude --resume <token>` lines.
type fakeExtractor struct{}

var claudeResumeRe = regexp.MustCompile("`?claude --resume ([A-Za-z0-9_-]+)`?")

func (fakeExtractor) ExtractResume(text string) *event.ResumeToken {
	m := claudeResumeRe.FindAllStringSubmatch(text, -1)
	if len(m) == 0 {
		return nil
	}
	return &event.ResumeToken{Engine: "claude", Raw: m[len(m)-1][1]}
}

func TestEncodeScoped(t *testing.T) {
	tests := []struct {
		name  string
		token event.ResumeToken
		want  string
	}{
		{"thread scoped", event.ResumeToken{Thread: "t42", Raw: "abc"}, "`thread:t42:abc`"},
		{"general alias", event.ResumeToken{Thread: event.General, Raw: "abc"}, "`general:abc`"},
		{"empty thread falls back to general", event.ResumeToken{Raw: "xyz"}, "`general:xyz`"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeScoped(tt.token); got != tt.want {
				t.Errorf("EncodeScoped() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestResolveScopedTokenInOwnThread(t *testing.T) {
	r := New(fakeExtractor{})
	res, err := r.Resolve("continue `thread:t42:abc123`", "", "t42")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Thread != "t42" || res.Token == nil || res.Token.Raw != "abc123" {
		t.Errorf("Resolve() = %+v, want thread t42 token abc123", res)
	}
}

func TestResolveCrossThreadTokenRejected(t *testing.T) {
	r := New(fakeExtractor{})
	_, err := r.Resolve("`thread:t42:abc123`", "", "t7")
	var cross *CrossThreadTokenError
	if !errors.As(err, &cross) {
		t.Fatalf("Resolve() error = %v, want CrossThreadTokenError", err)
	}
	if cross.TokenThread != "t42" || cross.CurrentThread != "t7" {
		t.Errorf("error = %+v", cross)
	}
}

func TestResolveGeneralAliasOnlyValidInGeneral(t *testing.T) {
	r := New(fakeExtractor{})

	res, err := r.Resolve("`general:abc`", "", event.General)
	if err != nil || res.Token == nil || res.Token.Raw != "abc" {
		t.Fatalf("Resolve() in general = %+v, %v", res, err)
	}

	if _, err := r.Resolve("`general:abc`", "", "t1"); err == nil {
		t.Error("expected cross-thread error for general token in folder thread")
	}
}

func TestResolveUnscopedFromReply(t *testing.T) {
	r := New(fakeExtractor{})
	res, err := r.Resolve("continue please", "All done.\n`claude --resume abc123`", "t42")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Thread != "t42" {
		t.Errorf("thread = %s, want t42", res.Thread)
	}
	if res.Token == nil || res.Token.Raw != "abc123" || res.Token.Engine != "claude" {
		t.Errorf("token = %+v, want claude abc123", res.Token)
	}
	if res.Token.Thread != "t42" {
		t.Errorf("unscoped token should adopt the default thread, got %s", res.Token.Thread)
	}
}

func TestResolveTextTakesPrecedenceOverReply(t *testing.T) {
	r := New(fakeExtractor{})
	res, err := r.Resolve("`claude --resume fromtext`", "`claude --resume fromreply`", "t1")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Token.Raw != "fromtext" {
		t.Errorf("token = %s, want fromtext", res.Token.Raw)
	}
}

func TestResolveNoTokenIsFreshConversation(t *testing.T) {
	r := New(fakeExtractor{})
	res, err := r.Resolve("hello there", "plain reply", "t9")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Token != nil || res.Thread != "t9" {
		t.Errorf("Resolve() = %+v, want fresh conversation on t9", res)
	}
}

func TestResolveScopedPicksEngineFromResumeLine(t *testing.T) {
	r := New(fakeExtractor{})
	text := "done\n`claude --resume abc`\n`thread:t3:abc`"
	res, err := r.Resolve(text, "", "t3")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Token.Engine != "claude" {
		t.Errorf("engine = %q, want claude", res.Token.Engine)
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		text string
		want *Command
	}{
		{"not a command", "hello", nil},
		{"bare slash", "/", nil},
		{"simple", "/cancel", &Command{Name: "cancel"}},
		{"with args", "/ralph fix the tests", &Command{Name: "ralph", Args: "fix the tests"}},
		{"botname suffix", "/help@tanuki_bot", &Command{Name: "help"}},
		{"multiline args", "/ralph fix this\nand that", &Command{Name: "ralph", Args: "fix this\nand that"}},
		{"uppercase normalized", "/CANCEL", &Command{Name: "cancel"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCommand(tt.text)
			if tt.want == nil {
				if got != nil {
					t.Errorf("ParseCommand(%q) = %+v, want nil", tt.text, got)
				}
				return
			}
			if got == nil || got.Name != tt.want.Name || got.Args != tt.want.Args {
				t.Errorf("ParseCommand(%q) = %+v, want %+v", tt.text, got, tt.want)
			}
		})
	}
}
