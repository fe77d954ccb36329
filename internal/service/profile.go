package service

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cardfolio-api/internal/cache"
	"cardfolio-api/internal/logger"
	"cardfolio-api/internal/model"
	"cardfolio-api/internal/repository"
	"cardfolio-api/internal/stream"
	"cardfolio-api/internal/validate"
	"cardfolio-api/pkg/apierror"
)

// ProfileCache owns the signed-in user's profile. Mutations are written to
// the store first and only reflected in the cache once the write succeeded.
type ProfileCache struct {
	store    *cache.Store[*model.UserProfile]
	repo     repository.DocumentStore
	session  Session
	validate *validate.Validator
	log      *zap.Logger
	now      func() time.Time
	bind     binding
}

// NewProfileCache creates an empty profile cache.
func NewProfileCache(d Deps) *ProfileCache {
	d = d.withDefaults()
	c := &ProfileCache{
		repo:     d.Store,
		session:  d.Session,
		validate: d.Validator,
		log:      logger.Named(d.Logger, "profile"),
		now:      d.Now,
	}
	c.store = cache.New(cache.Config[*model.UserProfile]{
		Name:         "profile",
		Fetch:        c.fetch,
		Equal:        stream.SamePointer[model.UserProfile],
		FetchTimeout: d.FetchTimeout,
		Accept:       activeOwner(d.Session),
		Logger:       d.Logger,
		Metrics:      d.Metrics,
	})
	return c
}

// Store exposes the underlying cache.
func (c *ProfileCache) Store() *cache.Store[*model.UserProfile] { return c.store }

// Start follows the session: every sign-in stamps the login time and loads
// the profile, sign-out clears it.
func (c *ProfileCache) Start(ctx context.Context) {
	c.bind.start(ctx, c.session, c.store.Clear, func(ctx context.Context, uid string) {
		c.RecordLogin(ctx, uid)
		c.store.GetData(ctx, uid)
	})
}

// Stop detaches from the session.
func (c *ProfileCache) Stop() { c.bind.stop() }

// Get returns the signed-in user's profile, loading it if needed.
func (c *ProfileCache) Get(ctx context.Context) (*model.UserProfile, error) {
	uid, err := currentUser(c.session)
	if err != nil {
		return nil, err
	}
	p := c.store.GetData(ctx, uid).Value()
	if p == nil || p.ID != uid {
		if err := ctx.Err(); err != nil {
			return nil, apierror.Classify(err)
		}
		return nil, apierror.Cache("profile unavailable", nil)
	}
	return p, nil
}

// Reload fetches the profile again.
func (c *ProfileCache) Reload(ctx context.Context) error {
	return c.store.Reload(ctx)
}

func (c *ProfileCache) fetch(ctx context.Context, uid string) (*model.UserProfile, error) {
	doc, err := c.repo.Read(ctx, repository.UsersCollection, uid)
	if err != nil {
		return nil, err
	}

	ident := c.identityFor(uid)
	now := c.now()

	if doc == nil {
		p := defaultProfile(uid, ident, now)
		if err := c.repo.Put(ctx, repository.UsersCollection, uid, p.ToDocument()); err != nil {
			return nil, err
		}
		c.log.Info("created profile", zap.String("user_id", uid))
		return p, nil
	}

	if patch := backfill(doc, ident, now); len(patch) > 0 {
		if err := c.repo.Update(ctx, repository.UsersCollection, uid, patch); err != nil {
			return nil, err
		}
		for k, v := range patch {
			doc[k] = v
		}
		c.log.Info("backfilled profile", zap.String("user_id", uid), zap.Int("fields", len(patch)))
	}
	return model.ProfileFromDocument(uid, doc), nil
}

func (c *ProfileCache) identityFor(uid string) model.Identity {
	if id, ok := c.session.Identity(); ok && id.UserID == uid {
		return id
	}
	return model.Identity{UserID: uid}
}

func defaultProfile(uid string, ident model.Identity, now time.Time) *model.UserProfile {
	name := ident.DisplayName
	if name == "" {
		name = model.DefaultUsername
	}
	avatar := ident.PhotoURL
	if avatar == "" {
		avatar = model.DefaultAvatarURL
	}
	return &model.UserProfile{
		ID:              uid,
		Username:        name,
		Email:           ident.Email,
		AvatarURL:       avatar,
		CreatedAt:       now,
		LastLoginAt:     &now,
		CollectionValue: decimal.Zero,
		TotalProfit:     decimal.Zero,
		IsPublic:        true,
		Friends:         []string{},
	}
}

// backfill returns the fields a legacy profile document is missing.
func backfill(doc model.Document, ident model.Identity, now time.Time) model.Document {
	defaults := defaultProfile(ident.UserID, ident, now)
	patch := model.Document{}

	missingString := func(key, fallback string) {
		if doc.String(key) == "" && (fallback != "" || !doc.Has(key)) {
			patch[key] = fallback
		}
	}
	missingString(model.FieldUsername, defaults.Username)
	missingString(model.FieldEmail, defaults.Email)
	missingString(model.FieldAvatarURL, defaults.AvatarURL)

	if !doc.Has(model.FieldCreatedAt) {
		patch[model.FieldCreatedAt] = now
	}
	if !doc.Has(model.FieldTotalCards) {
		patch[model.FieldTotalCards] = int64(0)
	}
	if !doc.Has(model.FieldCollectionValue) {
		patch[model.FieldCollectionValue] = decimal.Zero
	}
	if !doc.Has(model.FieldTotalProfit) {
		patch[model.FieldTotalProfit] = decimal.Zero
	}
	if !doc.Has(model.FieldIsPublic) {
		patch[model.FieldIsPublic] = true
	}
	return patch
}

// RecordLogin stamps the last login time of an existing profile. Failures
// are logged only.
func (c *ProfileCache) RecordLogin(ctx context.Context, uid string) {
	now := c.now()
	err := c.repo.Update(ctx, repository.UsersCollection, uid, model.Document{model.FieldLastLoginAt: now})
	if err != nil {
		if !isNotFound(err) {
			c.log.Warn("failed to record login", zap.String("user_id", uid), zap.Error(err))
		}
		return
	}
	c.patch(uid, func(p *model.UserProfile) { p.LastLoginAt = &now })
}

// UpdateProfile changes the display name and/or avatar.
func (c *ProfileCache) UpdateProfile(ctx context.Context, upd model.ProfileUpdate) error {
	if err := c.validate.Struct(upd); err != nil {
		return err
	}
	doc := model.Document{}
	if upd.Username != nil {
		doc[model.FieldUsername] = strings.TrimSpace(*upd.Username)
	}
	if upd.AvatarURL != nil {
		doc[model.FieldAvatarURL] = *upd.AvatarURL
	}
	if len(doc) == 0 {
		return nil
	}
	return c.write(ctx, doc, func(p *model.UserProfile) {
		if upd.Username != nil {
			p.Username = doc.String(model.FieldUsername)
		}
		if upd.AvatarURL != nil {
			p.AvatarURL = *upd.AvatarURL
		}
	})
}

// UpdateStats stores the collection aggregates. Negative inputs are clamped
// to zero.
func (c *ProfileCache) UpdateStats(ctx context.Context, totalCards int, collectionValue decimal.Decimal) error {
	if totalCards < 0 {
		totalCards = 0
	}
	if collectionValue.IsNegative() {
		collectionValue = decimal.Zero
	}
	doc := model.Document{
		model.FieldTotalCards:      int64(totalCards),
		model.FieldCollectionValue: collectionValue,
	}
	return c.write(ctx, doc, func(p *model.UserProfile) {
		p.TotalCards = totalCards
		p.CollectionValue = collectionValue
	})
}

// UpdateAvatar replaces the avatar. A blank url is rejected.
func (c *ProfileCache) UpdateAvatar(ctx context.Context, url string) error {
	if err := c.validate.Var(model.FieldAvatarURL, url, "required,notblank"); err != nil {
		return err
	}
	return c.write(ctx, model.Document{model.FieldAvatarURL: url}, func(p *model.UserProfile) {
		p.AvatarURL = url
	})
}

// UpdateVisibility makes the profile public or private to other users.
func (c *ProfileCache) UpdateVisibility(ctx context.Context, public bool) error {
	return c.write(ctx, model.Document{model.FieldIsPublic: public}, func(p *model.UserProfile) {
		p.IsPublic = public
	})
}

// UpdateCumulativeProfit adds delta to the running profit total.
func (c *ProfileCache) UpdateCumulativeProfit(ctx context.Context, delta decimal.Decimal) error {
	uid, err := currentUser(c.session)
	if err != nil {
		return err
	}
	current, err := c.currentProfit(ctx, uid)
	if err != nil {
		return err
	}
	total := current.Add(delta)
	return c.writeFor(ctx, uid, model.Document{model.FieldTotalProfit: total}, func(p *model.UserProfile) {
		p.TotalProfit = total
	})
}

// SetTotalProfit overwrites the running profit total.
func (c *ProfileCache) SetTotalProfit(ctx context.Context, total decimal.Decimal) error {
	return c.write(ctx, model.Document{model.FieldTotalProfit: total}, func(p *model.UserProfile) {
		p.TotalProfit = total
	})
}

func (c *ProfileCache) currentProfit(ctx context.Context, uid string) (decimal.Decimal, error) {
	if p := c.store.Value(); p != nil && p.ID == uid && c.store.Owner() == uid {
		return p.TotalProfit, nil
	}
	doc, err := c.repo.Read(ctx, repository.UsersCollection, uid)
	if err != nil {
		return decimal.Zero, err
	}
	if doc == nil {
		return decimal.Zero, repository.ErrNotFound
	}
	total, _ := doc.Decimal(model.FieldTotalProfit)
	return total, nil
}

// AddFriend adds friendID to the friend list. The friend's own record is not
// touched.
func (c *ProfileCache) AddFriend(ctx context.Context, friendID string) error {
	uid, err := currentUser(c.session)
	if err != nil {
		return err
	}
	if err := c.validate.Var("friendId", friendID, "required,notblank"); err != nil {
		return err
	}
	if friendID == uid {
		return apierror.BadRequest("cannot add yourself as a friend")
	}
	return c.writeFor(ctx, uid, model.Document{model.FieldFriends: repository.ArrayUnion{friendID}}, func(p *model.UserProfile) {
		if !p.HasFriend(friendID) {
			p.Friends = append(p.Friends, friendID)
		}
	})
}

// RemoveFriend removes friendID from the friend list. Removing an id that is
// not a friend does nothing.
func (c *ProfileCache) RemoveFriend(ctx context.Context, friendID string) error {
	uid, err := currentUser(c.session)
	if err != nil {
		return err
	}
	if p := c.store.Value(); p != nil && c.store.Owner() == uid && !p.HasFriend(friendID) {
		return nil
	}
	return c.writeFor(ctx, uid, model.Document{model.FieldFriends: repository.ArrayRemove{friendID}}, func(p *model.UserProfile) {
		kept := make([]string, 0, len(p.Friends))
		for _, f := range p.Friends {
			if f != friendID {
				kept = append(kept, f)
			}
		}
		p.Friends = kept
	})
}

// write stores doc for the signed-in user, then applies fn to a copy of the
// cached profile.
func (c *ProfileCache) write(ctx context.Context, doc model.Document, fn func(p *model.UserProfile)) error {
	uid, err := currentUser(c.session)
	if err != nil {
		return err
	}
	return c.writeFor(ctx, uid, doc, fn)
}

func (c *ProfileCache) writeFor(ctx context.Context, uid string, doc model.Document, fn func(p *model.UserProfile)) error {
	if err := c.repo.Update(ctx, repository.UsersCollection, uid, doc); err != nil {
		c.log.Warn("profile write failed", zap.String("user_id", uid), zap.Error(err))
		return err
	}
	c.patch(uid, fn)
	return nil
}

func (c *ProfileCache) patch(uid string, fn func(p *model.UserProfile)) {
	c.store.MutateOwned(uid, func(cur *model.UserProfile) *model.UserProfile {
		if cur == nil {
			return nil
		}
		next := cur.Clone()
		fn(next)
		return next
	})
}
