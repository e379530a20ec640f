package engine

import (
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sujalbistaa/classhub/internal/identity"
	"github.com/sujalbistaa/classhub/internal/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// a single in-memory connection, shared by all goroutines
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func createAnnouncement(t *testing.T, db *gorm.DB, reactions, views bool) models.Announcement {
	t.Helper()
	ann := models.Announcement{
		Title:           "Field trip",
		Content:         "Bring lunch",
		Priority:        models.PriorityMedium,
		IsActive:        true,
		EnableReactions: reactions,
		EnableViews:     views,
	}
	require.NoError(t, db.Create(&ann).Error)
	return ann
}

func createUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()
	user := models.User{
		Name:               name,
		Email:              name + "@example.com",
		Password:           "x",
		Role:               models.RoleMember,
		RegistrationStatus: models.StatusApproved,
		IsActive:           true,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func anonIdentity(fingerprint string) identity.Resolved {
	return identity.Resolved{
		Type:            identity.TypeAnonymous,
		Identifier:      fingerprint,
		FingerprintHash: fingerprint,
		IPAddress:       "1.2.3.4",
		UserAgent:       "X",
	}
}

func visitorIdentity(visitorID, fingerprint string) identity.Resolved {
	return identity.Resolved{
		Type:            identity.TypeVisitor,
		Identifier:      visitorID,
		VisitorID:       &visitorID,
		FingerprintHash: fingerprint,
		IPAddress:       "1.2.3.4",
		UserAgent:       "X",
	}
}

func authIdentity(userID uint, visitorID, fingerprint string) identity.Resolved {
	id := identity.Resolved{
		Type:            identity.TypeAuthenticated,
		Identifier:      "user",
		UserID:          &userID,
		FingerprintHash: fingerprint,
		IPAddress:       "1.2.3.4",
		UserAgent:       "X",
	}
	if visitorID != "" {
		id.VisitorID = &visitorID
	}
	return id
}

func countsAsMap(counts []ReactionCount) map[string]int64 {
	m := make(map[string]int64, len(counts))
	for _, c := range counts {
		m[c.Type] = c.Count
	}
	return m
}

func TestAddReactionReplacesForSameIdentity(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)

	_, counts, err := e.AddReaction(ann.ID, "love", anonIdentity("fp-1"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"love": 1}, countsAsMap(counts))

	_, counts, err = e.AddReaction(ann.ID, "like", anonIdentity("fp-1"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"like": 1}, countsAsMap(counts))

	var total int64
	require.NoError(t, db.Model(&models.Reaction{}).Where("announcement_id = ?", ann.ID).Count(&total).Error)
	assert.EqualValues(t, 1, total, "re-reacting must never add a second record")
}

func TestAddReactionDistinctIdentities(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)

	_, _, err := e.AddReaction(ann.ID, "love", anonIdentity("fp-1"))
	require.NoError(t, err)
	_, counts, err := e.AddReaction(ann.ID, "like", anonIdentity("fp-1"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"like": 1}, countsAsMap(counts))

	_, counts, err = e.AddReaction(ann.ID, "love", anonIdentity("fp-2"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"like": 1, "love": 1}, countsAsMap(counts))
}

func TestAddReactionNotFound(t *testing.T) {
	db := newTestDB(t)
	e := New(db)

	_, _, err := e.AddReaction("missing", "love", anonIdentity("fp-1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAddReactionDisabled(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, false, true)

	_, _, err := e.AddReaction(ann.ID, "love", anonIdentity("fp-1"))
	assert.ErrorIs(t, err, ErrReactionsDisabled)

	var total int64
	require.NoError(t, db.Model(&models.Reaction{}).Count(&total).Error)
	assert.Zero(t, total)
}

func TestAddReactionBackfillsOnIdentityUpgrade(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)
	user := createUser(t, db, "nina")

	rec, _, err := e.AddReaction(ann.ID, "love", visitorIdentity("vis-1", "fp-1"))
	require.NoError(t, err)
	require.Nil(t, rec.UserID)

	// same browser, now logged in
	rec2, counts, err := e.AddReaction(ann.ID, "haha", authIdentity(user.ID, "vis-1", "fp-1"))
	require.NoError(t, err)

	assert.Equal(t, rec.ID, rec2.ID, "existing record must be reused, not duplicated")
	require.NotNil(t, rec2.UserID)
	assert.Equal(t, user.ID, *rec2.UserID)
	assert.Equal(t, map[string]int64{"haha": 1}, countsAsMap(counts))
}

func TestAddReactionNeverOverwritesPopulatedKeys(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)
	alice := createUser(t, db, "alice")
	bob := createUser(t, db, "bob")

	_, _, err := e.AddReaction(ann.ID, "love", authIdentity(alice.ID, "vis-1", "fp-1"))
	require.NoError(t, err)

	// Bob on a different browser: different userID, no shared keys, so a
	// fresh record.
	_, counts, err := e.AddReaction(ann.ID, "wow", authIdentity(bob.ID, "vis-2", "fp-2"))
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"love": 1, "wow": 1}, countsAsMap(counts))

	var rec models.Reaction
	require.NoError(t, db.Where("announcement_id = ? AND user_id = ?", ann.ID, alice.ID).First(&rec).Error)
	assert.Equal(t, "love", rec.ReactionType)
}

func TestRemoveReactionIsNoopWithoutRecord(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)

	_, _, err := e.AddReaction(ann.ID, "love", anonIdentity("fp-1"))
	require.NoError(t, err)

	counts, err := e.RemoveReaction(ann.ID, 999)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"love": 1}, countsAsMap(counts))
}

func TestRemoveReaction(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)
	user := createUser(t, db, "nina")

	_, _, err := e.AddReaction(ann.ID, "love", authIdentity(user.ID, "", "fp-1"))
	require.NoError(t, err)

	counts, err := e.RemoveReaction(ann.ID, user.ID)
	require.NoError(t, err)
	assert.Empty(t, countsAsMap(counts))
}

func TestRecordViewOncePerIdentity(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)

	isNew, count, err := e.RecordView(ann.ID, anonIdentity("fp-1"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, 1, count)

	isNew, count, err = e.RecordView(ann.ID, anonIdentity("fp-1"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, 1, count)

	isNew, count, err = e.RecordView(ann.ID, anonIdentity("fp-2"))
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, 2, count)
}

func TestRecordViewDisabled(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, false)

	isNew, count, err := e.RecordView(ann.ID, anonIdentity("fp-1"))
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Zero(t, count)

	var total int64
	require.NoError(t, db.Model(&models.View{}).Count(&total).Error)
	assert.Zero(t, total, "disabled views must not create records")
}

func TestRecordViewNotFound(t *testing.T) {
	db := newTestDB(t)
	e := New(db)

	_, _, err := e.RecordView("missing", anonIdentity("fp-1"))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordViewBackfillsUserID(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)
	user := createUser(t, db, "nina")

	isNew, _, err := e.RecordView(ann.ID, visitorIdentity("vis-1", "fp-1"))
	require.NoError(t, err)
	require.True(t, isNew)

	isNew, count, err := e.RecordView(ann.ID, authIdentity(user.ID, "vis-1", "fp-1"))
	require.NoError(t, err)
	assert.False(t, isNew, "the earlier visitor view must be reused")
	assert.Equal(t, 1, count)

	var view models.View
	require.NoError(t, db.Where("announcement_id = ?", ann.ID).First(&view).Error)
	require.NotNil(t, view.UserID)
	assert.Equal(t, user.ID, *view.UserID)
}

func TestRecordViewConcurrentDuplicates(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)

	const workers = 10
	var wg sync.WaitGroup
	newViews := make(chan bool, workers)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			isNew, _, err := e.RecordView(ann.ID, anonIdentity("fp-1"))
			assert.NoError(t, err)
			newViews <- isNew
		}()
	}
	wg.Wait()
	close(newViews)

	var firsts int
	for isNew := range newViews {
		if isNew {
			firsts++
		}
	}
	assert.Equal(t, 1, firsts, "only one concurrent duplicate may count as new")

	var got models.Announcement
	require.NoError(t, db.First(&got, "id = ?", ann.ID).Error)
	assert.Equal(t, 1, got.ViewCount)
}

func TestViewers(t *testing.T) {
	db := newTestDB(t)
	e := New(db)
	ann := createAnnouncement(t, db, true, true)
	user := createUser(t, db, "nina")

	_, _, err := e.RecordView(ann.ID, authIdentity(user.ID, "", "fp-1"))
	require.NoError(t, err)
	_, _, err = e.RecordView(ann.ID, anonIdentity("fp-2"))
	require.NoError(t, err)

	viewers, err := e.Viewers(ann.ID)
	require.NoError(t, err)
	require.Len(t, viewers, 2)

	var named int
	for _, v := range viewers {
		if v.Name != nil {
			named++
			assert.Equal(t, "nina", *v.Name)
		}
	}
	assert.Equal(t, 1, named)
}
