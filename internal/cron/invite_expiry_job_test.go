package cron

import (
	"context"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/receipts"
	"github.com/mvalderrama/shopflow-backend/internal/users"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

type stubCleaner struct {
	calls []uuid.UUID
}

func (c *stubCleaner) CleanupChannel(ctx context.Context, orderID uuid.UUID) error {
	c.calls = append(c.calls, orderID)
	return nil
}

type stubGateway struct {
	messages []string
	deletes  []int64
	delErr   error
}

func (g *stubGateway) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	g.messages = append(g.messages, text)
	return int64(len(g.messages)), nil
}

func (g *stubGateway) SendPhoto(ctx context.Context, chatID int64, fileID, caption string) (int64, error) {
	return 0, nil
}

func (g *stubGateway) CreateInviteLink(ctx context.Context, params messaging.InviteLinkParams) (string, error) {
	return "", nil
}

func (g *stubGateway) RevokeInviteLink(ctx context.Context, channelID int64, link string) error {
	return nil
}

func (g *stubGateway) BanMember(ctx context.Context, channelID, userChatID int64) error { return nil }

func (g *stubGateway) UnbanMember(ctx context.Context, channelID, userChatID int64) error { return nil }

func (g *stubGateway) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	if g.delErr != nil {
		return g.delErr
	}
	g.deletes = append(g.deletes, messageID)
	return nil
}

func setupCronTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)

	statements := []string{
		`CREATE TABLE IF NOT EXISTS users (
  id TEXT PRIMARY KEY,
  chat_id INTEGER NOT NULL,
  name TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'buyer',
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS orders (
  id TEXT PRIMARY KEY,
  order_number INTEGER,
  user_id TEXT NOT NULL,
  cart_id TEXT,
  subtotal_cents INTEGER NOT NULL,
  discount_cents INTEGER NOT NULL DEFAULT 0,
  total_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'AWAITING_APPROVAL',
  invite_link TEXT,
  invite_sent_at DATETIME,
  invite_expires_at DATETIME,
  channel_message_id INTEGER,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS order_events (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  actor_type TEXT NOT NULL,
  actor_id TEXT,
  type TEXT NOT NULL,
  payload TEXT,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS receipts (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  user_id TEXT NOT NULL,
  file_id TEXT NOT NULL,
  note TEXT,
  status TEXT NOT NULL DEFAULT 'PENDING',
  reviewed_by TEXT,
  reviewed_at DATETIME,
  created_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS scheduled_tasks (
  id TEXT PRIMARY KEY,
  type TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  due_at DATETIME NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  payload TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`,
		`CREATE TABLE IF NOT EXISTS carts (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'ACTIVE',
  created_at DATETIME,
  updated_at DATETIME
);`,
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func seedExpiredOrder(t *testing.T, db *gorm.DB, status enums.OrderStatus, expiresAt time.Time) (*models.User, *models.Order) {
	t.Helper()
	buyer := &models.User{ID: uuid.New(), ChatID: 900, Name: "Buyer", Role: enums.MemberRoleBuyer}
	require.NoError(t, db.Create(buyer).Error)
	link := "https://t.me/+expired"
	order := &models.Order{
		ID:              uuid.New(),
		OrderNumber:     11,
		UserID:          buyer.ID,
		SubtotalCents:   2000,
		TotalCents:      2000,
		Status:          status,
		InviteLink:      &link,
		InviteExpiresAt: &expiresAt,
	}
	require.NoError(t, db.Create(order).Error)
	return buyer, order
}

func newInviteExpiryJob(t *testing.T, db *gorm.DB, cleaner *stubCleaner, gateway *stubGateway) Job {
	t.Helper()
	job, err := NewInviteExpiryJob(InviteExpiryJobParams{
		Logger:   testLogger(),
		DB:       gormTxRunner{db: db},
		Orders:   orders.NewRepository(db),
		Receipts: receipts.NewRepository(db),
		Users:    users.NewRepository(db),
		Cleaner:  cleaner,
		Gateway:  gateway,
	})
	require.NoError(t, err)
	return job
}

func TestInviteExpiryJob_cancelsLapsedOrders(t *testing.T) {
	db := setupCronTestDB(t)
	cleaner := &stubCleaner{}
	gateway := &stubGateway{}
	job := newInviteExpiryJob(t, db, cleaner, gateway)

	_, order := seedExpiredOrder(t, db, enums.OrderStatusInviteSent, time.Now().UTC().Add(-time.Hour))

	require.NoError(t, job.Run(context.Background()))

	var reloaded models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Equal(t, enums.OrderStatusCancelled, reloaded.Status)

	var events []models.OrderEvent
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventInviteExpired, events[0].Type)
	assert.Equal(t, enums.ActorTypeSystem, events[0].ActorType)

	require.Len(t, cleaner.calls, 1)
	assert.Equal(t, order.ID, cleaner.calls[0])
	assert.NotEmpty(t, gateway.messages)

	// A second sweep finds nothing; cancelled orders are out of scope.
	require.NoError(t, job.Run(context.Background()))
	require.NoError(t, db.Where("order_id = ?", order.ID).Find(&events).Error)
	assert.Len(t, events, 1)
	assert.Len(t, cleaner.calls, 1)
}

func TestInviteExpiryJob_skipsOrdersWithPendingReceipt(t *testing.T) {
	db := setupCronTestDB(t)
	cleaner := &stubCleaner{}
	gateway := &stubGateway{}
	job := newInviteExpiryJob(t, db, cleaner, gateway)

	buyer, order := seedExpiredOrder(t, db, enums.OrderStatusAwaitingReceipt, time.Now().UTC().Add(-time.Hour))
	receipt := &models.Receipt{
		ID:      uuid.New(),
		OrderID: order.ID,
		UserID:  buyer.ID,
		FileID:  "photo",
		Status:  enums.ReceiptStatusPending,
	}
	require.NoError(t, db.Create(receipt).Error)

	require.NoError(t, job.Run(context.Background()))

	var reloaded models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Equal(t, enums.OrderStatusAwaitingReceipt, reloaded.Status)
	assert.Empty(t, cleaner.calls)

	var count int64
	require.NoError(t, db.Model(&models.OrderEvent{}).Where("order_id = ?", order.ID).Count(&count).Error)
	assert.Zero(t, count)
}

func TestInviteExpiryJob_ignoresUnexpiredInvites(t *testing.T) {
	db := setupCronTestDB(t)
	cleaner := &stubCleaner{}
	gateway := &stubGateway{}
	job := newInviteExpiryJob(t, db, cleaner, gateway)

	_, order := seedExpiredOrder(t, db, enums.OrderStatusInviteSent, time.Now().UTC().Add(time.Hour))

	require.NoError(t, job.Run(context.Background()))

	var reloaded models.Order
	require.NoError(t, db.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Equal(t, enums.OrderStatusInviteSent, reloaded.Status)
	assert.Empty(t, cleaner.calls)
}
