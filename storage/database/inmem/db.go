// Package inmemdb implements the repositories in memory. It backs the tests and the "inmem" database engine.
package inmemdb

import (
	"context"
	"sync"

	"github.com/caffeinepub/diploma-smart-study-hub/core/gallery"
	"github.com/caffeinepub/diploma-smart-study-hub/core/lesson"
	"github.com/caffeinepub/diploma-smart-study-hub/core/payment"
	"github.com/caffeinepub/diploma-smart-study-hub/core/profile"
	"github.com/caffeinepub/diploma-smart-study-hub/core/subscription"
	"github.com/caffeinepub/diploma-smart-study-hub/core/user"
	"github.com/caffeinepub/diploma-smart-study-hub/core/withdrawal"
)

type DB struct {
	mutex sync.RWMutex

	users         map[string]*user.User
	settings      map[string]string
	profiles      map[string]*profile.UserProfile
	subscriptions map[string]*subscription.Subscription
	intents       map[string]*payment.Intent
	payments      map[string]*payment.PaymentRecord
	withdrawals   map[string]*withdrawal.Request
	galleries     map[string]*gallery.Gallery
	media         map[string]*gallery.Media
	lessons       map[string]*lesson.Lesson
	files         map[string]*lesson.File
	progress      map[progressKey]*lesson.Progress
}

type progressKey struct {
	userID   string
	lessonID string
}

func Open() *DB {
	db := new(DB)
	db.reset()
	return db
}

func (db *DB) reset() {
	db.users = make(map[string]*user.User)
	db.settings = make(map[string]string)
	db.profiles = make(map[string]*profile.UserProfile)
	db.subscriptions = make(map[string]*subscription.Subscription)
	db.intents = make(map[string]*payment.Intent)
	db.payments = make(map[string]*payment.PaymentRecord)
	db.withdrawals = make(map[string]*withdrawal.Request)
	db.galleries = make(map[string]*gallery.Gallery)
	db.media = make(map[string]*gallery.Media)
	db.lessons = make(map[string]*lesson.Lesson)
	db.files = make(map[string]*lesson.File)
	db.progress = make(map[progressKey]*lesson.Progress)
}

// Reset empties all the tables.
func (db *DB) Reset() {
	db.mutex.Lock()
	defer db.mutex.Unlock()
	db.reset()
}

func (db *DB) PingContext(context.Context) error { return nil }
func (db *DB) Close() error                      { return nil }
