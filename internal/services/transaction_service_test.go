package services

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"poupa/internal/amqp"
	"poupa/internal/core"
	applog "poupa/internal/log"
	"poupa/internal/ports/mocks"

	"github.com/golang/mock/gomock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *applog.Logger {
	return applog.NewWithWriter(applog.DefaultConfig(), io.Discard)
}

func validInput() core.TransactionInput {
	return core.TransactionInput{
		Name:          " Mercado ",
		Amount:        decimal.RequireFromString("10.005"),
		Type:          core.Expense,
		Category:      core.CategoryFood,
		PaymentMethod: core.PaymentPix,
		Date:          time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC),
	}
}

func TestTransactionService_Create(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockTransactionStore(ctrl)
	publisher := mocks.NewMockEventPublisher(ctrl)
	svc := NewTransactionService(store, publisher, quietLogger())

	var notified []string
	svc.OnChange(func(_ context.Context, userID string) { notified = append(notified, userID) })

	store.EXPECT().
		Create(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx core.Transaction) (core.Transaction, error) {
			assert.Equal(t, "Mercado", tx.Name)
			assert.Equal(t, "u1", tx.UserID)
			assert.True(t, tx.Amount.Equal(decimal.RequireFromString("10.01")))
			tx.ID = "tx-1"
			return tx, nil
		})
	publisher.EXPECT().PublishTransactionEvent(gomock.Any(), "u1", "tx-1", amqp.ActionCreated).Return(nil)

	created, err := svc.Create(context.Background(), "u1", validInput())
	require.NoError(t, err)
	assert.Equal(t, "tx-1", created.ID)
	assert.Equal(t, []string{"u1"}, notified)
}

func TestTransactionService_CreateRejectsInvalidInput(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	svc := NewTransactionService(mocks.NewMockTransactionStore(ctrl), nil, quietLogger())

	in := validInput()
	in.Amount = decimal.NewFromInt(-1)
	in.Category = "PETS"

	_, err := svc.Create(context.Background(), "u1", in)
	var verr *core.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, "min", verr.Fields["amount"])
	assert.Equal(t, "oneof", verr.Fields["category"])

	_, err = svc.Create(context.Background(), "", validInput())
	assert.True(t, errors.Is(err, core.ErrMissingUser))
}

func TestTransactionService_PublishFailureDoesNotFailWrite(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockTransactionStore(ctrl)
	publisher := mocks.NewMockEventPublisher(ctrl)
	svc := NewTransactionService(store, publisher, quietLogger())

	store.EXPECT().Delete(gomock.Any(), "u1", "tx-1").Return(nil)
	publisher.EXPECT().
		PublishTransactionEvent(gomock.Any(), "u1", "tx-1", amqp.ActionDeleted).
		Return(amqp.ErrCircuitOpen)

	assert.NoError(t, svc.Delete(context.Background(), "u1", "tx-1"))
}

func TestTransactionService_Update(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockTransactionStore(ctrl)
	svc := NewTransactionService(store, nil, quietLogger())
	now := time.Date(2025, 2, 11, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	current := validInput().ToTransaction("u1")
	current.ID = "tx-1"
	current.CreatedAt = now.Add(-24 * time.Hour)

	newAmount := decimal.RequireFromString("42")
	store.EXPECT().Get(gomock.Any(), "u1", "tx-1").Return(current, nil)
	store.EXPECT().
		Update(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, tx core.Transaction) error {
			assert.True(t, tx.Amount.Equal(newAmount))
			assert.Equal(t, now, tx.UpdatedAt)
			assert.Equal(t, current.CreatedAt, tx.CreatedAt)
			return nil
		})

	updated, err := svc.Update(context.Background(), "u1", "tx-1", core.TransactionPatch{Amount: &newAmount})
	require.NoError(t, err)
	assert.Equal(t, now, updated.UpdatedAt)
}

func TestTransactionService_UpdateNotFound(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockTransactionStore(ctrl)
	svc := NewTransactionService(store, nil, quietLogger())

	name := "Feira"
	store.EXPECT().Get(gomock.Any(), "u1", "missing").Return(core.Transaction{}, core.ErrNotFound)

	_, err := svc.Update(context.Background(), "u1", "missing", core.TransactionPatch{Name: &name})
	assert.True(t, errors.Is(err, core.ErrNotFound))
}

func TestTransactionService_DeleteByName(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockTransactionStore(ctrl)
	svc := NewTransactionService(store, nil, quietLogger())

	found := core.Transaction{ID: "tx-9", Name: "Uber", UserID: "u1"}
	gomock.InOrder(
		store.EXPECT().FindLatestByName(gomock.Any(), "u1", "uber").Return(found, nil),
		store.EXPECT().Delete(gomock.Any(), "u1", "tx-9").Return(nil),
	)

	got, err := svc.DeleteByName(context.Background(), "u1", "uber")
	require.NoError(t, err)
	assert.Equal(t, "tx-9", got.ID)

	_, err = svc.DeleteByName(context.Background(), "u1", "  ")
	assert.True(t, errors.Is(err, core.ErrEmptyName))
}

func TestTransactionService_ListWrapsStorageErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockTransactionStore(ctrl)
	svc := NewTransactionService(store, nil, quietLogger())

	store.EXPECT().List(gomock.Any(), "u1", core.DateRange{}).Return(nil, errors.New("disk I/O error"))

	_, err := svc.List(context.Background(), "u1", core.DateRange{})
	assert.True(t, errors.Is(err, core.ErrStorageUnavailable))
	assert.Equal(t, "failed to load transactions: disk I/O error", err.Error())
}
