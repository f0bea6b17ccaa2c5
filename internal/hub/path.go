package hub

import "fmt"

// Collection names.
const (
	ArticlesCollection  = "articles"
	PollsCollection     = "polls"
	ResourcesCollection = "resources"
)

// UserCollectionPath returns the path of a collection owned by one user.
// It returns "" while either id is unknown, meaning "identity not ready".
func UserCollectionPath(appID, userID, collection string) string {
	if appID == "" || userID == "" {
		return ""
	}
	return fmt.Sprintf("/artifacts/%s/users/%s/%s", appID, userID, collection)
}

// PublicCollectionPath returns the path of a collection shared by every user of the app.
func PublicCollectionPath(appID, collection string) string {
	if appID == "" {
		return ""
	}
	return fmt.Sprintf("/artifacts/%s/public/data/%s", appID, collection)
}

// Scope selects which path convention a repository uses.
type Scope string

const (
	ScopeUser   Scope = "user"
	ScopePublic Scope = "public"
)

// ScopedPath resolves the path for collection under scope. Public collections
// are still only opened once a user is known, so an empty userID yields "".
func ScopedPath(scope Scope, appID, userID, collection string) string {
	if userID == "" {
		return ""
	}
	if scope == ScopePublic {
		return PublicCollectionPath(appID, collection)
	}
	return UserCollectionPath(appID, userID, collection)
}
