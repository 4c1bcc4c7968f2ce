package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mvalderrama/shopflow-backend/internal/orders"
	"github.com/mvalderrama/shopflow-backend/internal/settings"
	"github.com/mvalderrama/shopflow-backend/internal/tasks"
	"github.com/mvalderrama/shopflow-backend/internal/users"
	"github.com/mvalderrama/shopflow-backend/pkg/config"
	"github.com/mvalderrama/shopflow-backend/pkg/db/models"
	"github.com/mvalderrama/shopflow-backend/pkg/enums"
	pkgerrors "github.com/mvalderrama/shopflow-backend/pkg/errors"
	"github.com/mvalderrama/shopflow-backend/pkg/logger"
	"github.com/mvalderrama/shopflow-backend/pkg/messaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type sentMessage struct {
	chatID int64
	text   string
}

type stubGateway struct {
	inviteLink string
	inviteErr  error
	sendErr    error
	photoErr   error

	messages    []sentMessage
	photos      []sentMessage
	inviteCalls []messaging.InviteLinkParams
	deletes     int
	revokes     int
	bans        int
	unbans      int
}

func (g *stubGateway) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	if g.sendErr != nil {
		return 0, g.sendErr
	}
	g.messages = append(g.messages, sentMessage{chatID: chatID, text: text})
	return int64(100 + len(g.messages)), nil
}

func (g *stubGateway) SendPhoto(ctx context.Context, chatID int64, fileID string, caption string) (int64, error) {
	if g.photoErr != nil {
		return 0, g.photoErr
	}
	g.photos = append(g.photos, sentMessage{chatID: chatID, text: caption})
	return int64(200 + len(g.photos)), nil
}

func (g *stubGateway) CreateInviteLink(ctx context.Context, params messaging.InviteLinkParams) (string, error) {
	g.inviteCalls = append(g.inviteCalls, params)
	if g.inviteErr != nil {
		return "", g.inviteErr
	}
	return g.inviteLink, nil
}

func (g *stubGateway) RevokeInviteLink(ctx context.Context, channelID int64, link string) error {
	g.revokes++
	return nil
}

func (g *stubGateway) BanMember(ctx context.Context, channelID int64, userChatID int64) error {
	g.bans++
	return nil
}

func (g *stubGateway) UnbanMember(ctx context.Context, channelID int64, userChatID int64) error {
	g.unbans++
	return nil
}

func (g *stubGateway) DeleteMessage(ctx context.Context, chatID int64, messageID int64) error {
	g.deletes++
	return nil
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func setupPaymentsTestDB(t *testing.T) *gorm.DB {
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
		`CREATE TABLE IF NOT EXISTS order_items (
  id TEXT PRIMARY KEY,
  order_id TEXT NOT NULL,
  product_id TEXT NOT NULL,
  qty INTEGER NOT NULL,
  unit_price_cents INTEGER NOT NULL,
  total_cents INTEGER NOT NULL,
  created_at DATETIME
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
		`CREATE TABLE IF NOT EXISTS settings (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updated_at DATETIME
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
	}
	for _, stmt := range statements {
		require.NoError(t, db.Exec(stmt).Error)
	}
	return db
}

type paymentsFixture struct {
	db      *gorm.DB
	svc     Service
	gateway *stubGateway
}

func newPaymentsFixture(t *testing.T, gateway *stubGateway, paymentsCfg config.PaymentsConfig) paymentsFixture {
	t.Helper()

	db := setupPaymentsTestDB(t)
	logg := logger.New(logger.Options{ServiceName: "payments-test", Output: io.Discard})

	settingsSvc, err := settings.NewService(settings.NewRepository(db), paymentsCfg)
	require.NoError(t, err)

	svc, err := NewService(Params{
		Tx:       gormTxRunner{db: db},
		Orders:   orders.NewRepository(db),
		Users:    users.NewRepository(db),
		Tasks:    tasks.NewRepository(db),
		Settings: settingsSvc,
		Gateway:  gateway,
		Logger:   logg,
	})
	require.NoError(t, err)
	return paymentsFixture{db: db, svc: svc, gateway: gateway}
}

func createBuyer(t *testing.T, db *gorm.DB, chatID int64) *models.User {
	t.Helper()
	user := &models.User{ID: uuid.New(), ChatID: chatID, Name: "Buyer", Role: enums.MemberRoleBuyer}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createOrderInStatus(t *testing.T, db *gorm.DB, userID uuid.UUID, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		OrderNumber:   42,
		UserID:        userID,
		SubtotalCents: 3000,
		DiscountCents: 300,
		TotalCents:    2700,
		Status:        status,
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func eventTypes(t *testing.T, db *gorm.DB, orderID uuid.UUID) []enums.OrderEventType {
	t.Helper()
	var events []models.OrderEvent
	require.NoError(t, db.Where("order_id = ?", orderID).Order("created_at ASC").Find(&events).Error)
	types := make([]enums.OrderEventType, 0, len(events))
	for _, event := range events {
		types = append(types, event.Type)
	}
	return types
}

func TestApprove_channelHappyPath(t *testing.T) {
	gateway := &stubGateway{inviteLink: "https://t.me/+invite"}
	fx := newPaymentsFixture(t, gateway, config.PaymentsConfig{
		CheckoutChannelID:    "-100555",
		InviteExpiryMinutes:  60,
		DefaultPaymentMethod: "channel",
	})

	buyer := createBuyer(t, fx.db, 777)
	order := createOrderInStatus(t, fx.db, buyer.ID, enums.OrderStatusAwaitingApproval)

	manager := uuid.New()
	result, err := fx.svc.Approve(context.Background(), order.ID, orders.ManagerActor(manager))
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, enums.OrderStatusInviteSent, result.Status)
	assert.Equal(t, "https://t.me/+invite", result.InviteLink)

	var reloaded models.Order
	require.NoError(t, fx.db.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Equal(t, enums.OrderStatusInviteSent, reloaded.Status)
	require.NotNil(t, reloaded.InviteLink)
	assert.Equal(t, "https://t.me/+invite", *reloaded.InviteLink)
	require.NotNil(t, reloaded.InviteExpiresAt)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), *reloaded.InviteExpiresAt, time.Minute)
	require.NotNil(t, reloaded.ChannelMessageID)

	require.Len(t, gateway.inviteCalls, 1)
	assert.Equal(t, int64(-100555), gateway.inviteCalls[0].ChannelID)
	assert.Equal(t, 1, gateway.inviteCalls[0].MemberLimit)
	assert.Equal(t, "order-42", gateway.inviteCalls[0].Name)

	types := eventTypes(t, fx.db, order.ID)
	assert.Contains(t, types, enums.EventOrderApproved)
	assert.Contains(t, types, enums.EventInviteSent)
}

func TestApprove_channelNotConfiguredFallsBack(t *testing.T) {
	gateway := &stubGateway{}
	fx := newPaymentsFixture(t, gateway, config.PaymentsConfig{
		InviteExpiryMinutes:  60,
		DefaultPaymentMethod: "channel",
	})

	buyer := createBuyer(t, fx.db, 777)
	order := createOrderInStatus(t, fx.db, buyer.ID, enums.OrderStatusAwaitingApproval)

	result, err := fx.svc.Approve(context.Background(), order.ID, orders.ManagerActor(uuid.New()))
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, enums.OrderStatusAwaitingReceipt, result.Status)

	var reloaded models.Order
	require.NoError(t, fx.db.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Equal(t, enums.OrderStatusAwaitingReceipt, reloaded.Status)
	assert.Nil(t, reloaded.InviteLink)

	types := eventTypes(t, fx.db, order.ID)
	assert.Contains(t, types, enums.EventOrderApproved)
	assert.Contains(t, types, enums.EventApprovalFallbackDirect)
	assert.Empty(t, gateway.inviteCalls)

	// The fallback delivers directly, so the instructions message gets the
	// same scheduled deletion as the direct method.
	assert.NotZero(t, result.DirectMessageID)
	var scheduled []models.ScheduledTask
	require.NoError(t, fx.db.Find(&scheduled).Error)
	require.Len(t, scheduled, 1)
	assert.Equal(t, enums.TaskDeleteMessage, scheduled[0].Type)
	assert.WithinDuration(t, time.Now().UTC().Add(time.Hour), scheduled[0].DueAt, time.Minute)
}

func TestApprove_inviteFailureLeavesOrderApproved(t *testing.T) {
	gateway := &stubGateway{inviteErr: errors.New("not enough rights")}
	fx := newPaymentsFixture(t, gateway, config.PaymentsConfig{
		CheckoutChannelID:    "-100555",
		InviteExpiryMinutes:  60,
		DefaultPaymentMethod: "channel",
	})

	buyer := createBuyer(t, fx.db, 777)
	order := createOrderInStatus(t, fx.db, buyer.ID, enums.OrderStatusAwaitingApproval)

	result, err := fx.svc.Approve(context.Background(), order.ID, orders.ManagerActor(uuid.New()))
	require.NoError(t, err)
	assert.False(t, result.Advanced)
	assert.Equal(t, enums.OrderStatusApproved, result.Status)

	var reloaded models.Order
	require.NoError(t, fx.db.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Equal(t, enums.OrderStatusApproved, reloaded.Status)
	assert.Nil(t, reloaded.InviteLink)

	types := eventTypes(t, fx.db, order.ID)
	assert.Contains(t, types, enums.EventOrderApproved)
	assert.Contains(t, types, enums.EventInviteCreationFailed)
	assert.NotContains(t, types, enums.EventInviteSent)

	// The channel instructions posted before the invite attempt must not
	// linger; a later retry posts fresh ones.
	assert.Equal(t, 1, gateway.deletes)
}

func TestApprove_directMethodSchedulesCleanup(t *testing.T) {
	gateway := &stubGateway{}
	fx := newPaymentsFixture(t, gateway, config.PaymentsConfig{
		InviteExpiryMinutes:  30,
		DefaultPaymentMethod: "direct",
	})

	buyer := createBuyer(t, fx.db, 777)
	order := createOrderInStatus(t, fx.db, buyer.ID, enums.OrderStatusAwaitingApproval)

	result, err := fx.svc.Approve(context.Background(), order.ID, orders.ManagerActor(uuid.New()))
	require.NoError(t, err)
	assert.True(t, result.Advanced)
	assert.Equal(t, enums.OrderStatusAwaitingReceipt, result.Status)
	assert.NotZero(t, result.DirectMessageID)

	var reloaded models.Order
	require.NoError(t, fx.db.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Equal(t, enums.OrderStatusAwaitingReceipt, reloaded.Status)

	var scheduled []models.ScheduledTask
	require.NoError(t, fx.db.Find(&scheduled).Error)
	require.Len(t, scheduled, 1)
	assert.Equal(t, enums.TaskDeleteMessage, scheduled[0].Type)
	assert.Equal(t, enums.TaskStatusPending, scheduled[0].Status)
	assert.WithinDuration(t, time.Now().UTC().Add(30*time.Minute), scheduled[0].DueAt, time.Minute)
}

func TestApprove_rejectsWrongState(t *testing.T) {
	gateway := &stubGateway{}
	fx := newPaymentsFixture(t, gateway, config.PaymentsConfig{DefaultPaymentMethod: "direct", InviteExpiryMinutes: 60})

	buyer := createBuyer(t, fx.db, 777)
	order := createOrderInStatus(t, fx.db, buyer.ID, enums.OrderStatusPaid)

	_, err := fx.svc.Approve(context.Background(), order.ID, orders.ManagerActor(uuid.New()))
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeStateConflict, typed.Code())

	_, err = fx.svc.Approve(context.Background(), uuid.New(), orders.ManagerActor(uuid.New()))
	typed = pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeNotFound, typed.Code())
}

func TestReject_cancelsAndNotifies(t *testing.T) {
	gateway := &stubGateway{}
	fx := newPaymentsFixture(t, gateway, config.PaymentsConfig{DefaultPaymentMethod: "direct", InviteExpiryMinutes: 60})

	buyer := createBuyer(t, fx.db, 777)
	order := createOrderInStatus(t, fx.db, buyer.ID, enums.OrderStatusAwaitingApproval)

	err := fx.svc.Reject(context.Background(), order.ID, orders.ManagerActor(uuid.New()), "out of stock")
	require.NoError(t, err)

	var reloaded models.Order
	require.NoError(t, fx.db.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Equal(t, enums.OrderStatusCancelled, reloaded.Status)

	types := eventTypes(t, fx.db, order.ID)
	assert.Contains(t, types, enums.EventOrderRejected)
	require.NotEmpty(t, gateway.messages)
	assert.Equal(t, int64(777), gateway.messages[len(gateway.messages)-1].chatID)
}

func TestCleanupChannel_idempotent(t *testing.T) {
	gateway := &stubGateway{}
	fx := newPaymentsFixture(t, gateway, config.PaymentsConfig{
		CheckoutChannelID:    "-100555",
		InviteExpiryMinutes:  60,
		DefaultPaymentMethod: "channel",
	})

	buyer := createBuyer(t, fx.db, 777)
	order := createOrderInStatus(t, fx.db, buyer.ID, enums.OrderStatusAwaitingReceipt)
	link := "https://t.me/+invite"
	messageID := int64(204)
	now := time.Now().UTC()
	require.NoError(t, fx.db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(map[string]any{
		"invite_link":        link,
		"channel_message_id": messageID,
		"invite_sent_at":     now.Add(-time.Hour),
		"invite_expires_at":  now,
	}).Error)

	require.NoError(t, fx.svc.CleanupChannel(context.Background(), order.ID))
	assert.Equal(t, 1, gateway.deletes)
	assert.Equal(t, 1, gateway.revokes)
	assert.Equal(t, 1, gateway.bans)
	assert.Equal(t, 1, gateway.unbans)

	var reloaded models.Order
	require.NoError(t, fx.db.Where("id = ?", order.ID).First(&reloaded).Error)
	assert.Nil(t, reloaded.InviteLink)
	assert.Nil(t, reloaded.ChannelMessageID)
	assert.Nil(t, reloaded.InviteSentAt)
	assert.Nil(t, reloaded.InviteExpiresAt)

	// Second invocation has nothing left to do.
	require.NoError(t, fx.svc.CleanupChannel(context.Background(), order.ID))
	assert.Equal(t, 1, gateway.deletes)
	assert.Equal(t, 1, gateway.revokes)
	assert.Equal(t, 1, gateway.bans)
}
