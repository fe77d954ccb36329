package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	// DefaultAvatarURL is used for profiles without an avatar.
	DefaultAvatarURL = "https://ionicframework.com/docs/img/demos/avatar.svg"

	// DefaultUsername is used when neither the profile nor the identity
	// carries a display name.
	DefaultUsername = "User"
)

// UserProfile is the signed-in user's profile record in users/{id}.
type UserProfile struct {
	ID              string          `json:"id"`
	Username        string          `json:"username"`
	Email           string          `json:"email"`
	AvatarURL       string          `json:"avatarUrl"`
	CreatedAt       time.Time       `json:"createdAt"`
	LastLoginAt     *time.Time      `json:"lastLoginAt,omitempty"`
	TotalCards      int             `json:"totalCards"`
	CollectionValue decimal.Decimal `json:"collectionValue"`
	TotalProfit     decimal.Decimal `json:"totalProfit"`
	IsAdmin         bool            `json:"isAdmin"`
	IsPublic        bool            `json:"isProfilPublic"`
	Friends         []string        `json:"friends"`
}

// Profile document fields.
const (
	FieldUsername        = "username"
	FieldEmail           = "email"
	FieldAvatarURL       = "avatarUrl"
	FieldCreatedAt       = "createdAt"
	FieldLastLoginAt     = "lastLoginAt"
	FieldTotalCards      = "totalCards"
	FieldCollectionValue = "collectionValue"
	FieldTotalProfit     = "totalProfit"
	FieldIsAdmin         = "isAdmin"
	FieldIsPublic        = "isProfilPublic"
	FieldFriends         = "friends"
)

// ToDocument encodes the profile without its id.
func (p *UserProfile) ToDocument() Document {
	friends := p.Friends
	if friends == nil {
		friends = []string{}
	}
	doc := Document{
		FieldUsername:        p.Username,
		FieldEmail:           p.Email,
		FieldAvatarURL:       p.AvatarURL,
		FieldCreatedAt:       p.CreatedAt,
		FieldTotalCards:      int64(p.TotalCards),
		FieldCollectionValue: p.CollectionValue,
		FieldTotalProfit:     p.TotalProfit,
		FieldIsAdmin:         p.IsAdmin,
		FieldIsPublic:        p.IsPublic,
		FieldFriends:         append([]string(nil), friends...),
	}
	putTime(doc, FieldLastLoginAt, p.LastLoginAt)
	return doc
}

// ProfileFromDocument decodes a users/{id} document.
func ProfileFromDocument(id string, doc Document) *UserProfile {
	p := &UserProfile{
		ID:          id,
		Username:    doc.String(FieldUsername),
		Email:       doc.String(FieldEmail),
		AvatarURL:   doc.String(FieldAvatarURL),
		LastLoginAt: doc.TimePtr(FieldLastLoginAt),
		TotalCards:  doc.Int(FieldTotalCards),
		Friends:     doc.Strings(FieldFriends),
	}
	p.CreatedAt, _ = doc.Time(FieldCreatedAt)
	p.CollectionValue, _ = doc.Decimal(FieldCollectionValue)
	p.TotalProfit, _ = doc.Decimal(FieldTotalProfit)
	p.IsAdmin, _ = doc.Bool(FieldIsAdmin)
	if public, ok := doc.Bool(FieldIsPublic); ok {
		p.IsPublic = public
	} else {
		p.IsPublic = true
	}
	if p.Friends == nil {
		p.Friends = []string{}
	}
	return p
}

// Clone returns a deep copy.
func (p *UserProfile) Clone() *UserProfile {
	if p == nil {
		return nil
	}
	c := *p
	c.Friends = append([]string{}, p.Friends...)
	if p.LastLoginAt != nil {
		t := *p.LastLoginAt
		c.LastLoginAt = &t
	}
	return &c
}

// HasFriend reports whether id is in the friend list.
func (p *UserProfile) HasFriend(id string) bool {
	for _, f := range p.Friends {
		if f == id {
			return true
		}
	}
	return false
}

// PublicProfile is the view of another user exposed by the friend directory.
type PublicProfile struct {
	ID              string          `json:"id"`
	Username        string          `json:"username"`
	AvatarURL       string          `json:"avatarUrl"`
	TotalCards      int             `json:"totalCards"`
	CollectionValue decimal.Decimal `json:"collectionValue"`
	TotalProfit     decimal.Decimal `json:"totalProfit"`
	IsPublic        bool            `json:"isProfilPublic"`
}

// Public strips private fields.
func (p *UserProfile) Public() PublicProfile {
	return PublicProfile{
		ID:              p.ID,
		Username:        p.Username,
		AvatarURL:       p.AvatarURL,
		TotalCards:      p.TotalCards,
		CollectionValue: p.CollectionValue,
		TotalProfit:     p.TotalProfit,
		IsPublic:        p.IsPublic,
	}
}

// ProfileUpdate carries the optional fields of an UpdateProfile call.
type ProfileUpdate struct {
	Username  *string `json:"username,omitempty" validate:"omitempty,notblank,max=64"`
	AvatarURL *string `json:"avatarUrl,omitempty" validate:"omitempty,min=1"`
}
