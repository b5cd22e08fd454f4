// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizer は利用者が入力する自由記述（ルームのタイトル・出発地・目的地、表示名）から
// HTMLマークアップを除去し、プレーンテキストとして保存できる形にする。
// bluemondayのStrictPolicyで全タグを除去した後、エスケープされた文字参照を元に戻す。
// 文字参照を戻した結果にタグが現れる場合（&lt;b&gt; など）は、変化がなくなるまで繰り返す。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer は自由記述テキストのサニタイズ機能のインターフェース。
type TextSanitizer interface {
	// Sanitize はHTMLタグを除去し、前後の空白を取り除いたプレーンテキストを返す。
	// script/styleなどの要素は中身ごと除去される。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// maxSanitizePasses は除去と復元を繰り返す上限回数。
// 多重にエスケープされた入力でも各回で必ず短くなるので、通常は2〜3回で収束する。
const maxSanitizePasses = 8

// textSanitizer はTextSanitizerの実装。
// bluemondayのポリシーはゴルーチンセーフなので共有してよい。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerの新しいインスタンスを生成する。
func NewTextSanitizer() TextSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグを除去したプレーンテキストを返す。
func (s *textSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}
	out := raw
	for i := 0; i < maxSanitizePasses; i++ {
		next := strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(out)))
		if next == out {
			break
		}
		out = next
	}
	return out
}
