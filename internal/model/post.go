package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// updatedDateLayout はupdatedDateのJSON表現。ブラウザのDate#toJSONと同じミリ秒精度のUTC表記。
const updatedDateLayout = "2006-01-02T15:04:05.000Z07:00"

// 予約済みのフィールド名。Fieldsには格納しない（読めないupdatedDateを保持する場合を除く）。
const (
	FieldID          = "id"
	FieldUpdatedDate = "updatedDate"
)

// PostInput は作成・編集時に投稿者が入力するフィールド群。
// title, author, previewText, content, thumbnail 等を想定するが内容は解釈しない。
type PostInput map[string]any

// Post はブログ記事を表す。
// IDはリモートストアが採番したドキュメントキー、UpdatedDateはコンテナが作成・編集時に付与する。
type Post struct {
	ID          string
	Fields      map[string]any
	UpdatedDate time.Time
}

// NewPost は入力フィールドから記事を生成する。予約済みのキーは取り除く。
func NewPost(id string, input PostInput, updatedDate time.Time) Post {
	fields := make(map[string]any, len(input))
	for k, v := range input {
		if k == FieldID || k == FieldUpdatedDate {
			continue
		}
		fields[k] = v
	}
	return Post{ID: id, Fields: fields, UpdatedDate: updatedDate}
}

// Clone はFieldsのトップレベルを複製したコピーを返す。
func (p Post) Clone() Post {
	fields := make(map[string]any, len(p.Fields))
	for k, v := range p.Fields {
		fields[k] = v
	}
	return Post{ID: p.ID, Fields: fields, UpdatedDate: p.UpdatedDate}
}

// String は文字列フィールドを返す。存在しないか文字列でなければ空文字列。
func (p Post) String(key string) string {
	s, _ := p.Fields[key].(string)
	return s
}

// Title は記事タイトルを返す。
func (p Post) Title() string { return p.String("title") }

// Author は著者名を返す。
func (p Post) Author() string { return p.String("author") }

// PreviewText は一覧用の概要文を返す。
func (p Post) PreviewText() string { return p.String("previewText") }

// Content は本文HTMLを返す。
func (p Post) Content() string { return p.String("content") }

// Thumbnail はサムネイル画像URLを返す。
func (p Post) Thumbnail() string { return p.String("thumbnail") }

// Document はリモートストアへ送信するドキュメントを返す。IDは含めない。
func (p Post) Document() map[string]any {
	doc := make(map[string]any, len(p.Fields)+1)
	for k, v := range p.Fields {
		doc[k] = v
	}
	if !p.UpdatedDate.IsZero() {
		doc[FieldUpdatedDate] = p.UpdatedDate.UTC().Format(updatedDateLayout)
	}
	return doc
}

// MarshalJSON はフィールドを平坦化したJSONを出力する。
func (p Post) MarshalJSON() ([]byte, error) {
	doc := p.Document()
	if p.ID != "" {
		doc[FieldID] = p.ID
	}
	return json.Marshal(doc)
}

// UnmarshalJSON は平坦なJSONドキュメントを記事に変換する。
func (p *Post) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode post: %w", err)
	}
	post := PostFromDocument("", doc)
	if id, ok := doc[FieldID].(string); ok {
		post.ID = id
	}
	*p = post
	return nil
}

// PostFromDocument はリモートストアのドキュメントとキーから記事を組み立てる。
// キーがドキュメント内のidより優先される。
// updatedDateが日時として読めない場合はUpdatedDateをゼロ値のままにし、元の値をFieldsに残す。
// 値はそのまま保存し直され、次回の編集で現在時刻に置き換わる。
func PostFromDocument(key string, doc map[string]any) Post {
	post := NewPost(key, PostInput(doc), time.Time{})
	raw, ok := doc[FieldUpdatedDate]
	if !ok || raw == nil {
		return post
	}
	if s, ok := raw.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			post.UpdatedDate = t
			return post
		}
	}
	post.Fields[FieldUpdatedDate] = raw
	return post
}
