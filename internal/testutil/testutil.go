package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/d60-Lab/trustcore/internal/model"
	"github.com/d60-Lab/trustcore/pkg/database"
)

// NewDB 内存 sqlite，单连接保证同一测试内看到同一个库
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Clock 可手动推进的时钟
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock() *Clock {
	return &Clock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// UserOption 调整测试用户字段
type UserOption func(*model.User)

func WithReputation(score int) UserOption { return func(u *model.User) { u.Reputation = score } }
func Expert() UserOption                  { return func(u *model.User) { u.IsExpert = true } }
func Admin() UserOption                   { return func(u *model.User) { u.IsAdmin = true } }
func ExpertsOnlyInbox() UserOption        { return func(u *model.User) { u.ExpertsOnlyInbox = true } }
func Banned() UserOption                  { return func(u *model.User) { u.MessagingBanned = true } }
func Deactivated() UserOption             { return func(u *model.User) { u.Deactivated = true } }
func SuspendedUntil(at time.Time) UserOption {
	return func(u *model.User) { u.SuspendedUntil = &at }
}

// CreateUser 写入一个用户
func CreateUser(t testing.TB, db *gorm.DB, name string, opts ...UserOption) *model.User {
	t.Helper()
	u := &model.User{
		ID:       uuid.New().String(),
		Username: name,
		Email:    name + "@example.com",
		Tier:     1,
	}
	for _, o := range opts {
		o(u)
	}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateContent 直接落库一条内容（绕过审核）
func CreateContent(t testing.TB, db *gorm.DB, authorID string, kind model.ContentKind, body string) *model.Content {
	t.Helper()
	c := &model.Content{
		ID:       uuid.New().String(),
		AuthorID: authorID,
		Kind:     kind,
		Body:     body,
	}
	require.NoError(t, db.Create(c).Error)
	return c
}
