package service

import (
	"context"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/model"
	"cardfolio-api/internal/repository"
	"cardfolio-api/pkg/apierror"
)

// DefaultCollectionPreview is the number of cards shown for another user.
const DefaultCollectionPreview = 10

// DirectoryConfig sizes the profile lookup cache.
type DirectoryConfig struct {
	Size int
	TTL  time.Duration
}

// DefaultDirectoryConfig returns the default lookup cache settings.
func DefaultDirectoryConfig() DirectoryConfig {
	return DirectoryConfig{Size: 256, TTL: time.Minute}
}

// FriendDirectory looks up other users: search, friend details and public
// collections. Profile reads are kept in a short-lived LRU.
type FriendDirectory struct {
	repo    repository.DocumentStore
	profile *ProfileCache
	session Session
	lookups *expirable.LRU[string, *model.UserProfile]
	group   singleflight.Group
	log     *zap.Logger
}

// NewFriendDirectory creates a directory reading through repo.
func NewFriendDirectory(d Deps, profile *ProfileCache, cfg DirectoryConfig) *FriendDirectory {
	if cfg.Size <= 0 {
		cfg.Size = DefaultDirectoryConfig().Size
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultDirectoryConfig().TTL
	}
	return &FriendDirectory{
		repo:    d.Store,
		profile: profile,
		session: d.Session,
		lookups: expirable.NewLRU[string, *model.UserProfile](cfg.Size, nil, cfg.TTL),
		log:     logger.Named(d.Logger, "directory"),
	}
}

// SearchByEmail returns the users registered with exactly email.
func (d *FriendDirectory) SearchByEmail(ctx context.Context, email string) ([]model.PublicProfile, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return []model.PublicProfile{}, nil
	}
	recs, err := d.repo.Query(ctx, repository.UsersCollection, repository.Query{
		Filters: []repository.Filter{repository.Where(model.FieldEmail, repository.OpEqual, email)},
	})
	if err != nil {
		return nil, err
	}
	return d.publicProfiles(recs, nil), nil
}

// SearchByUsername returns the users whose name contains term, ignoring
// case.
func (d *FriendDirectory) SearchByUsername(ctx context.Context, term string) ([]model.PublicProfile, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return []model.PublicProfile{}, nil
	}
	recs, err := d.repo.Query(ctx, repository.UsersCollection, repository.Query{OrderBy: model.FieldUsername})
	if err != nil {
		return nil, err
	}
	return d.publicProfiles(recs, func(p *model.UserProfile) bool {
		return strings.Contains(strings.ToLower(p.Username), term)
	}), nil
}

func (d *FriendDirectory) publicProfiles(recs []repository.Record, keep func(p *model.UserProfile) bool) []model.PublicProfile {
	out := make([]model.PublicProfile, 0, len(recs))
	for _, r := range recs {
		p := withDefaults(model.ProfileFromDocument(r.ID, r.Data))
		if keep != nil && !keep(p) {
			continue
		}
		d.lookups.Add(p.ID, p)
		out = append(out, p.Public())
	}
	return out
}

// Friends returns the profiles of the signed-in user's friends. Friends whose
// profile no longer exists are skipped.
func (d *FriendDirectory) Friends(ctx context.Context) ([]model.PublicProfile, error) {
	me, err := d.profile.Get(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.PublicProfile, 0, len(me.Friends))
	for _, id := range me.Friends {
		p, err := d.lookup(ctx, id)
		if err != nil {
			if !isNotFound(err) {
				d.log.Warn("failed to load friend", zap.String("friend_id", id), zap.Error(err))
			}
			continue
		}
		out = append(out, p.Public())
	}
	return out, nil
}

// User returns the public profile of id.
func (d *FriendDirectory) User(ctx context.Context, id string) (model.PublicProfile, error) {
	p, err := d.lookup(ctx, id)
	if err != nil {
		return model.PublicProfile{}, err
	}
	return p.Public(), nil
}

// Collection returns up to limit of id's most recently added cards. Private
// profiles are refused.
func (d *FriendDirectory) Collection(ctx context.Context, id string, limit int) ([]model.InventoryItem, error) {
	if limit <= 0 {
		limit = DefaultCollectionPreview
	}
	p, err := d.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.IsPublic && id != d.session.CurrentUserID() {
		return nil, apierror.Forbidden("this profile is private")
	}

	recs, err := d.repo.Query(ctx, repository.CardsCollection(id), repository.Query{
		OrderBy:    model.FieldAddedDate,
		Descending: true,
		Limit:      limit,
	})
	if err != nil {
		return nil, err
	}
	items := make([]model.InventoryItem, 0, len(recs))
	for _, r := range recs {
		items = append(items, model.InventoryItemFromDocument(r.ID, r.Data))
	}
	return items, nil
}

// Invalidate drops id from the lookup cache.
func (d *FriendDirectory) Invalidate(id string) {
	d.lookups.Remove(id)
}

func (d *FriendDirectory) lookup(ctx context.Context, id string) (*model.UserProfile, error) {
	if p, ok := d.lookups.Get(id); ok {
		return p, nil
	}
	v, err, _ := d.group.Do(id, func() (interface{}, error) {
		doc, err := d.repo.Read(ctx, repository.UsersCollection, id)
		if err != nil {
			return nil, err
		}
		if doc == nil {
			e := apierror.NotFound("user not found")
			e.Cause = repository.ErrNotFound
			return nil, e
		}
		p := withDefaults(model.ProfileFromDocument(id, doc))
		d.lookups.Add(id, p)
		return p, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.UserProfile), nil
}

// withDefaults fills the display fields of a profile that were never set.
func withDefaults(p *model.UserProfile) *model.UserProfile {
	if p.Username == "" {
		p.Username = model.DefaultUsername
	}
	if p.AvatarURL == "" {
		p.AvatarURL = model.DefaultAvatarURL
	}
	return p
}
