package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ticketloom/ticketloom-backend/pkg/db/models"
	"github.com/ticketloom/ticketloom-backend/pkg/enums"
	pkgerrors "github.com/ticketloom/ticketloom-backend/pkg/errors"
	"github.com/ticketloom/ticketloom-backend/pkg/outbox/payloads"
	paginationpkg "github.com/ticketloom/ticketloom-backend/pkg/pagination"
)

type fakeRepository struct {
	created       []*models.Notification
	listFn        func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error)
	markReadFn    func(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error)
	markAllReadFn func(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error)
	countUnreadFn func(ctx context.Context, userID uuid.UUID) (int64, error)
}

func (f *fakeRepository) WithTx(tx *gorm.DB) Repository {
	return f
}

func (f *fakeRepository) Create(ctx context.Context, notification *models.Notification) error {
	f.created = append(f.created, notification)
	return nil
}

func (f *fakeRepository) List(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
	if f.listFn != nil {
		return f.listFn(ctx, params)
	}
	return nil, nil, nil
}

func (f *fakeRepository) MarkRead(ctx context.Context, userID, notificationID uuid.UUID, now time.Time) (notificationMarkResult, error) {
	if f.markReadFn != nil {
		return f.markReadFn(ctx, userID, notificationID, now)
	}
	return notificationMarkResult{}, nil
}

func (f *fakeRepository) MarkAllRead(ctx context.Context, userID uuid.UUID, now time.Time) (int64, error) {
	if f.markAllReadFn != nil {
		return f.markAllReadFn(ctx, userID, now)
	}
	return 0, nil
}

func (f *fakeRepository) CountUnread(ctx context.Context, userID uuid.UUID) (int64, error) {
	if f.countUnreadFn != nil {
		return f.countUnreadFn(ctx, userID)
	}
	return 0, nil
}

func newServiceWithRepo(repo Repository) Service {
	svc, _ := NewService(repo)
	return svc
}

func TestService_ListNotifications(t *testing.T) {
	first := models.Notification{ID: uuid.New(), CreatedAt: time.Now().Add(-time.Hour)}
	second := models.Notification{ID: uuid.New(), CreatedAt: time.Now()}

	repo := &fakeRepository{
		listFn: func(ctx context.Context, params listNotificationsParams) ([]models.Notification, *paginationpkg.Cursor, error) {
			if params.Limit != paginationpkg.LimitWithBuffer(1) {
				t.Fatalf("unexpected limit %d", params.Limit)
			}
			return []models.Notification{first}, &paginationpkg.Cursor{CreatedAt: second.CreatedAt, ID: second.ID}, nil
		},
	}

	svc := newServiceWithRepo(repo)
	result, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Limit: 1})
	if err != nil {
		t.Fatalf("unexpected list error: %v", err)
	}
	if len(result.Items) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(result.Items))
	}
	if result.Cursor == "" {
		t.Fatal("expected cursor for next page")
	}
	decoded, err := paginationpkg.ParseCursor(result.Cursor)
	if err != nil {
		t.Fatalf("unexpected cursor error: %v", err)
	}
	if decoded.ID != second.ID {
		t.Fatalf("unexpected cursor id %s", decoded.ID)
	}
}

func TestService_ListRejectsBadCursor(t *testing.T) {
	svc := newServiceWithRepo(&fakeRepository{})

	_, err := svc.List(context.Background(), ListParams{UserID: uuid.New(), Cursor: "not-base64"})
	if !pkgerrors.HasCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestService_MarkRead(t *testing.T) {
	userID := uuid.New()
	notificationID := uuid.New()

	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, gotUser, gotNotification uuid.UUID, now time.Time) (notificationMarkResult, error) {
			if gotUser != userID || gotNotification != notificationID {
				t.Fatalf("unexpected args %s %s", gotUser, gotNotification)
			}
			return notificationMarkResult{Updated: true, Found: true}, nil
		},
	}

	svc := newServiceWithRepo(repo)
	if err := svc.MarkRead(context.Background(), userID, notificationID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_MarkReadNotFound(t *testing.T) {
	repo := &fakeRepository{
		markReadFn: func(ctx context.Context, _, _ uuid.UUID, _ time.Time) (notificationMarkResult, error) {
			return notificationMarkResult{}, nil
		},
	}

	svc := newServiceWithRepo(repo)
	err := svc.MarkRead(context.Background(), uuid.New(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestService_MarkAllReadPropagatesErrors(t *testing.T) {
	repo := &fakeRepository{
		markAllReadFn: func(ctx context.Context, _ uuid.UUID, _ time.Time) (int64, error) {
			return 0, errors.New("boom")
		},
	}

	svc := newServiceWithRepo(repo)
	_, err := svc.MarkAllRead(context.Background(), uuid.New())
	if !pkgerrors.HasCode(err, pkgerrors.CodeDependency) {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestBuildWaitlistOfferNotification(t *testing.T) {
	userID := uuid.New()
	eventID := uuid.New()
	data, err := json.Marshal(payloads.WaitlistNotifiedEvent{
		EntryID:   uuid.New(),
		EventID:   eventID,
		TierID:    uuid.New(),
		UserID:    userID,
		Quantity:  2,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		Type:      enums.NotificationWaitlistOffer,
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	notification, err := buildWaitlistOffer(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notification.UserID != userID {
		t.Fatalf("unexpected user %s", notification.UserID)
	}
	if notification.Type != enums.NotificationWaitlistOffer {
		t.Fatalf("unexpected type %s", notification.Type)
	}
	if notification.Link == nil || *notification.Link != "/events/"+eventID.String() {
		t.Fatalf("unexpected link %v", notification.Link)
	}
}

func TestBuilderRejectsMissingUser(t *testing.T) {
	data, err := json.Marshal(payloads.OrderConfirmedEvent{
		OrderID:     uuid.New(),
		OrderNumber: "TL-20260831-ABCD1234",
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}

	if _, err := buildOrderConfirmed(data); err == nil {
		t.Fatal("expected error for missing user id")
	}
}

func TestBuilderCoverageMatchesNotificationTypes(t *testing.T) {
	// every event the registry routes to the notification topic must map
	for _, eventType := range []enums.OutboxEventType{
		enums.EventOrderConfirmed,
		enums.EventOrderCancelled,
		enums.EventOrderExpired,
		enums.EventOrderRefunded,
		enums.EventWaitlistNotified,
		enums.EventTicketTransferred,
	} {
		if _, ok := notificationBuilders[eventType]; !ok {
			t.Fatalf("no builder for %s", eventType)
		}
	}
}
