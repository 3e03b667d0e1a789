package domain

import (
	"fmt"
	"strings"
	"time"
)

// ContentKind tags what a Ref points at.
type ContentKind string

const (
	KindArticle ContentKind = "Article"
	KindComment ContentKind = "Comment"
	KindUser    ContentKind = "User"
)

func ParseContentKind(s string) (ContentKind, error) {
	switch strings.ToLower(s) {
	case "article", "articles":
		return KindArticle, nil
	case "comment", "comments":
		return KindComment, nil
	case "user", "users":
		return KindUser, nil
	default:
		return "", fmt.Errorf("unknown content kind %q", s)
	}
}

// Ref identifies a reactable or noteable entity.
type Ref struct {
	Kind ContentKind `json:"kind"`
	ID   int64       `json:"id"`
}

func ArticleRef(id int64) Ref { return Ref{Kind: KindArticle, ID: id} }
func CommentRef(id int64) Ref { return Ref{Kind: KindComment, ID: id} }
func UserRef(id int64) Ref    { return Ref{Kind: KindUser, ID: id} }

func (r Ref) String() string {
	return fmt.Sprintf("%s#%d", r.Kind, r.ID)
}

type Article struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	Title         string    `json:"title"`
	BodyMarkdown  string    `json:"bodyMarkdown"`
	ProcessedHTML string    `json:"processedHtml"`
	Published     bool      `json:"published"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (a Article) Text() string {
	return strings.TrimSpace(a.Title + "\n" + a.BodyMarkdown)
}

type Comment struct {
	ID            int64     `json:"id"`
	UserID        int64     `json:"userId"`
	BodyMarkdown  string    `json:"bodyMarkdown"`
	ProcessedHTML string    `json:"processedHtml"`
	CreatedAt     time.Time `json:"createdAt"`
}

func (c Comment) Text() string {
	return strings.TrimSpace(c.BodyMarkdown)
}
