// File: internal/classify/classify_test.go
package classify

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {

	t.Run("should recognize the challenge page", func(t *testing.T) {
		sig := Classify(
			"https://secure.xserver.ne.jp/xapanel/myaccount/loginauth/index",
			"<html>新しい環境からのログインを検知しました</html>",
			DefaultRules,
		)
		assert.Equal(t, KindChallenge, sig.Kind)
		assert.Equal(t, "/xapanel/myaccount/loginauth/index", sig.MatchedURL)
	})

	t.Run("should recognize the code entry page", func(t *testing.T) {
		sig := Classify(
			"https://secure.xserver.ne.jp/xapanel/myaccount/loginauth/smssend",
			"メールアドレス宛にお送りした認証コードを入力してください",
			DefaultRules,
		)
		assert.Equal(t, KindCodeEntry, sig.Kind)
	})

	t.Run("should require both url and marker to match", func(t *testing.T) {
		// Right URL, wrong content.
		sig := Classify(
			"https://secure.xserver.ne.jp/xapanel/myaccount/loginauth/index",
			"<html>メンテナンス中です</html>",
			DefaultRules,
		)
		assert.Equal(t, KindUnknown, sig.Kind)

		// Right content, wrong URL.
		sig = Classify(
			"https://secure.xserver.ne.jp/somewhere/else",
			"新しい環境からのログイン",
			DefaultRules,
		)
		assert.Equal(t, KindUnknown, sig.Kind)
	})

	t.Run("should apply rules in order", func(t *testing.T) {
		// A page that satisfies two rules resolves to the earlier one.
		rules := []Rule{
			{URLSubstring: "/a", ContentMarker: "x", Kind: KindChallenge},
			{URLSubstring: "/a", ContentMarker: "x", Kind: KindLoginForm},
		}
		sig := Classify("https://host/a", "x", rules)
		assert.Equal(t, KindChallenge, sig.Kind)
	})

	t.Run("should skip rules with empty predicates", func(t *testing.T) {
		rules := []Rule{
			{URLSubstring: "", ContentMarker: "x", Kind: KindChallenge},
			{URLSubstring: "/a", ContentMarker: "", Kind: KindChallenge},
			{URLSubstring: "/a", ContentMarker: "x", Kind: KindPanelHome},
		}
		sig := Classify("https://host/a", "x", rules)
		assert.Equal(t, KindPanelHome, sig.Kind)
	})

	t.Run("should return unknown on no match", func(t *testing.T) {
		sig := Classify("https://host/nowhere", "nothing", DefaultRules)
		assert.Equal(t, KindUnknown, sig.Kind)
		assert.Empty(t, sig.MatchedURL)
		assert.Empty(t, sig.MatchedMarker)
	})
}

type stubPage struct {
	url     string
	content string
	err     error
}

func (p stubPage) CurrentURL(context.Context) (string, error)  { return p.url, p.err }
func (p stubPage) PageContent(context.Context) (string, error) { return p.content, p.err }

func TestDetect(t *testing.T) {

	t.Run("should classify the live page", func(t *testing.T) {
		page := stubPage{
			url:     "https://secure.xserver.ne.jp/xapanel/xmgame/index",
			content: "ようこそ ゲーム管理",
		}
		sig, err := Detect(context.Background(), page)
		require.NoError(t, err)
		assert.Equal(t, KindPanelHome, sig.Kind)
	})

	t.Run("should surface page read errors", func(t *testing.T) {
		page := stubPage{err: errors.New("target closed")}
		_, err := Detect(context.Background(), page)
		require.Error(t, err)
	})
}
