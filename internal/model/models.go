package model

import (
	"fmt"
	"strings"
	"time"
)

// User is the identity supplied by the identity source.
// An anonymous user has an empty Email.
type User struct {
	UID   string
	Email string
}

// Anonymous returns true if the user signed in without an email address.
func (u *User) Anonymous() bool {
	return u.Email == ""
}

// Name returns the display name: the local part of the email, or "Anonymous".
func (u *User) Name() string {
	if u.Email == "" {
		return "Anonymous"
	}
	name, _, _ := strings.Cut(u.Email, "@")
	return name
}

// Category classifies a saved article.
type Category string

const (
	CategoryAI         Category = "IA"
	CategoryRemote     Category = "Remoto"
	CategorySoftSkills Category = "SoftSkills"
	CategoryGeneral    Category = "Geral"

	// CategoryAll is the filter value that matches every category. It is never stored.
	CategoryAll Category = "Todos"
)

// Categories lists the storable categories in display order.
var Categories = []Category{CategoryAI, CategoryRemote, CategorySoftSkills, CategoryGeneral}

// ParseCategory validates s as a storable category.
// An empty string maps to CategoryGeneral.
func ParseCategory(s string) (Category, error) {
	if s == "" {
		return CategoryGeneral, nil
	}
	for _, c := range Categories {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown category: %q", s)
}

// Article is a link saved by a user.
type Article struct {
	ID            string    `mapstructure:"-"`
	Title         string    `mapstructure:"title"`
	Summary       string    `mapstructure:"summary"`
	Category      Category  `mapstructure:"category"`
	URL           string    `mapstructure:"url"`
	SavedByUserID string    `mapstructure:"savedByUserId"`
	CreatedAt     time.Time `mapstructure:"createdAt"`
}

// OwnedBy reports whether uid saved this article.
func (a *Article) OwnedBy(uid string) bool {
	return uid != "" && a.SavedByUserID == uid
}

// PollOption is one choice of a poll.
type PollOption struct {
	ID    string `mapstructure:"id"`
	Text  string `mapstructure:"text"`
	Votes int64  `mapstructure:"votes"`
}

// Poll is a shared question users vote on at most once.
type Poll struct {
	ID         string       `mapstructure:"-"`
	Question   string       `mapstructure:"question"`
	Options    []PollOption `mapstructure:"options"`
	TotalVotes int64        `mapstructure:"totalVotes"`
	VotedBy    []string     `mapstructure:"votedBy"`
	CreatedAt  time.Time    `mapstructure:"createdAt"`
}

// HasVoted reports whether uid appears in VotedBy.
func (p *Poll) HasVoted(uid string) bool {
	for _, v := range p.VotedBy {
		if v == uid {
			return true
		}
	}
	return false
}

// OptionIndex returns the position of the option with the given id, or -1.
func (p *Poll) OptionIndex(optionID string) int {
	for i := range p.Options {
		if p.Options[i].ID == optionID {
			return i
		}
	}
	return -1
}

// Consistent reports whether TotalVotes equals the sum of option votes
// and no option count is negative.
func (p *Poll) Consistent() bool {
	var sum int64
	for _, o := range p.Options {
		if o.Votes < 0 {
			return false
		}
		sum += o.Votes
	}
	return sum == p.TotalVotes
}

// Share returns the percentage of votes the option received.
// A poll without votes divides by one so every share is zero.
func (p *Poll) Share(o PollOption) float64 {
	total := p.TotalVotes
	if total <= 0 {
		total = 1
	}
	return float64(o.Votes) / float64(total) * 100
}

// Resource is a named inventory item kept per user.
type Resource struct {
	ID          string    `mapstructure:"-"`
	Name        string    `mapstructure:"name"`
	Description string    `mapstructure:"description"`
	Quantity    int64     `mapstructure:"quantity"`
	CreatedAt   time.Time `mapstructure:"createdAt"`
	UpdatedAt   time.Time `mapstructure:"updatedAt"`
}
