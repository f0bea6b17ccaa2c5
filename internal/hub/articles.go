package hub

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"futurehub/internal/model"
)

// ArticleRepository presents the article collection with ownership semantics.
type ArticleRepository struct {
	articles *Collection[model.Article]
	appID    string
	scope    Scope

	// openMu orders Open and Close so the bound user and the mirror path
	// always change together.
	openMu sync.Mutex

	mu     sync.Mutex
	userID string
}

// NewArticleRepository creates a repository for appID. scope selects whether
// each user sees only their own articles or a collection shared by the app.
func NewArticleRepository(store RemoteStore, appID string, scope Scope, logger Logger) *ArticleRepository {
	return &ArticleRepository{
		articles: NewCollection(store, CollectionConfig[model.Article]{
			Name:     ArticlesCollection,
			Decode:   decodeArticle,
			Compare:  compareArticles,
			Validate: validateArticle,
		}, logger),
		appID: appID,
		scope: scope,
	}
}

// Open binds the repository to userID and opens the matching collection.
// An empty userID closes it.
func (r *ArticleRepository) Open(ctx context.Context, userID string) error {
	r.openMu.Lock()
	defer r.openMu.Unlock()

	r.mu.Lock()
	r.userID = userID
	r.mu.Unlock()
	return r.articles.Open(ctx, ScopedPath(r.scope, r.appID, userID, ArticlesCollection))
}

// Close releases the subscription.
func (r *ArticleRepository) Close() {
	r.openMu.Lock()
	defer r.openMu.Unlock()

	r.mu.Lock()
	r.userID = ""
	r.mu.Unlock()
	r.articles.Close()
}

// Collection exposes the underlying mirror for state and change notifications.
func (r *ArticleRepository) Collection() *Collection[model.Article] {
	return r.articles
}

// Articles returns the current mirror, newest first.
func (r *ArticleRepository) Articles() []model.Article {
	return r.articles.Items()
}

// SaveArticle stores a new article owned by the bound user and returns its id.
// The article shows up in the mirror once the store pushes the next snapshot.
func (r *ArticleRepository) SaveArticle(ctx context.Context, title, summary, category, rawURL string) (string, error) {
	uid := r.currentUser()
	if uid == "" {
		return "", ErrUnauthenticated
	}

	cat, err := model.ParseCategory(category)
	if err != nil {
		return "", &ValidationError{Field: "category", Reason: err.Error()}
	}

	return r.articles.Create(ctx, map[string]any{
		"title":         strings.TrimSpace(title),
		"summary":       strings.TrimSpace(summary),
		"category":      string(cat),
		"url":           strings.TrimSpace(rawURL),
		"savedByUserId": uid,
	})
}

// DeleteArticle removes an article saved by the bound user.
// Ownership is checked against the mirror and again by the store, which only
// deletes when savedByUserId still matches.
func (r *ArticleRepository) DeleteArticle(ctx context.Context, id string) error {
	uid := r.currentUser()
	if uid == "" {
		return ErrUnauthenticated
	}

	article, ok := r.find(id)
	if !ok {
		return ErrArticleNotFound
	}
	if !article.OwnedBy(uid) {
		return ErrNotOwner
	}

	err := r.articles.Delete(ctx, id, Equals("savedByUserId", uid))
	switch {
	case errors.Is(err, ErrConditionFailed):
		return ErrNotOwner
	case errors.Is(err, ErrNotFound):
		return ErrArticleNotFound
	}
	return err
}

// FilterByCategory returns the mirrored articles in category.
// CategoryAll or an empty category returns everything.
func (r *ArticleRepository) FilterByCategory(category model.Category) []model.Article {
	return FilterArticles(r.articles.Items(), category)
}

// FilterArticles is the pure projection behind FilterByCategory.
func FilterArticles(articles []model.Article, category model.Category) []model.Article {
	if category == "" || category == model.CategoryAll {
		return articles
	}
	out := make([]model.Article, 0, len(articles))
	for _, a := range articles {
		if a.Category == category {
			out = append(out, a)
		}
	}
	return out
}

// OwnedBy returns the mirrored articles saved by uid.
func (r *ArticleRepository) OwnedBy(uid string) []model.Article {
	var out []model.Article
	for _, a := range r.articles.Items() {
		if a.OwnedBy(uid) {
			out = append(out, a)
		}
	}
	return out
}

func (r *ArticleRepository) currentUser() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.userID
}

func (r *ArticleRepository) find(id string) (model.Article, bool) {
	for _, a := range r.articles.Items() {
		if a.ID == id {
			return a, true
		}
	}
	return model.Article{}, false
}

func decodeArticle(doc Document) (model.Article, error) {
	var a model.Article
	if err := requireString(doc.Fields, "title"); err != nil {
		return a, err
	}
	if err := requireString(doc.Fields, "url"); err != nil {
		return a, err
	}
	if err := decodeFields(doc.Fields, &a); err != nil {
		return a, err
	}
	a.ID = doc.ID
	cat, err := model.ParseCategory(string(a.Category))
	if err != nil {
		return a, err
	}
	a.Category = cat
	return a, nil
}

// compareArticles orders newest first; ties break on id so the order is stable
// across identical snapshots.
func compareArticles(a, b model.Article) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func validateArticle(fields map[string]any) error {
	title, _ := fields["title"].(string)
	if title == "" {
		return &ValidationError{Field: "title", Reason: "title is required"}
	}
	raw, _ := fields["url"].(string)
	if raw == "" {
		return &ValidationError{Field: "url", Reason: "url is required"}
	}
	u, err := url.ParseRequestURI(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ValidationError{Field: "url", Reason: fmt.Sprintf("%q is not an http(s) link", raw)}
	}
	if uid, _ := fields["savedByUserId"].(string); uid == "" {
		return &ValidationError{Field: "savedByUserId", Reason: "owner is required"}
	}
	return nil
}
