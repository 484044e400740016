// File: internal/classify/classify.go

// Package classify maps the current page of a browsing context onto a closed
// set of known page kinds using (URL-substring, content-marker) predicate
// pairs. Classification is a pure read: any settle-delay after navigation is
// the caller's responsibility.
package classify

import (
	"context"
	"strings"
)

// Kind enumerates the page states the workflow can react to.
type Kind string

const (
	// KindUnknown means no rule matched. The caller treats this as "proceed
	// as if no challenge", not as an error; sites may skip the challenge.
	KindUnknown Kind = "unknown"

	KindLoginForm    Kind = "login_form"
	KindChallenge    Kind = "challenge"
	KindCodeEntry    Kind = "code_entry"
	KindPanelHome    Kind = "panel_home"
	KindWebmailLogin Kind = "webmail_login"
	KindWebmailInbox Kind = "webmail_inbox"
)

// Rule is one classification triple. A page matches when its URL contains
// URLSubstring AND its content contains ContentMarker.
type Rule struct {
	URLSubstring  string
	ContentMarker string
	Kind          Kind
}

// Signature is a fresh classification result. It is never cached across
// navigations.
type Signature struct {
	Kind          Kind
	MatchedURL    string
	MatchedMarker string
}

// DefaultRules is the ordered rule list for the XServer GAME panel and the
// webmail frontend. Order matters: the first rule whose URL substring and
// content marker both match wins.
var DefaultRules = []Rule{
	{
		URLSubstring:  "/xapanel/myaccount/loginauth/smssend",
		ContentMarker: "メールアドレス宛にお送りした認証コードを入力してください",
		Kind:          KindCodeEntry,
	},
	{
		URLSubstring:  "/xapanel/myaccount/loginauth/index",
		ContentMarker: "新しい環境からのログイン",
		Kind:          KindChallenge,
	},
	{
		URLSubstring:  "/xapanel/xmgame/index",
		ContentMarker: "ゲーム管理",
		Kind:          KindPanelHome,
	},
	{
		URLSubstring:  "/xapanel/login/xmgame",
		ContentMarker: "ログインする",
		Kind:          KindLoginForm,
	},
	{
		URLSubstring:  "/email",
		ContentMarker: "account",
		Kind:          KindWebmailInbox,
	},
	{
		URLSubstring:  "/login",
		ContentMarker: "邮箱",
		Kind:          KindWebmailLogin,
	},
}

// Classify evaluates rules in order and returns the first full match, or a
// KindUnknown signature when nothing matches.
func Classify(url, content string, rules []Rule) Signature {
	for _, r := range rules {
		if r.URLSubstring == "" || r.ContentMarker == "" {
			continue
		}
		if strings.Contains(url, r.URLSubstring) && strings.Contains(content, r.ContentMarker) {
			return Signature{Kind: r.Kind, MatchedURL: r.URLSubstring, MatchedMarker: r.ContentMarker}
		}
	}
	return Signature{Kind: KindUnknown}
}

// PageReader is the minimal page surface Detect needs.
type PageReader interface {
	CurrentURL(ctx context.Context) (string, error)
	PageContent(ctx context.Context) (string, error)
}

// Detect reads the live page and classifies it against DefaultRules.
func Detect(ctx context.Context, page PageReader) (Signature, error) {
	url, err := page.CurrentURL(ctx)
	if err != nil {
		return Signature{}, err
	}
	content, err := page.PageContent(ctx)
	if err != nil {
		return Signature{}, err
	}
	return Classify(url, content, DefaultRules), nil
}
