package service_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tarafreight/syncqueue/pkg/core"
	"github.com/tarafreight/syncqueue/pkg/security"
	"github.com/tarafreight/syncqueue/pkg/service"
	"github.com/tarafreight/syncqueue/pkg/storage"
)

var dbCounter atomic.Int64

func setupLocal(t *testing.T) *service.Local {
	t.Helper()
	n := dbCounter.Add(1)
	dbPath := fmt.Sprintf("/tmp/syncqueue_service_test_%d_%d.db", os.Getpid(), n)
	t.Cleanup(func() {
		_ = os.Remove(dbPath)
	})

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	store := storage.NewGormStorage(db)
	require.NoError(t, store.Migrate(context.Background()))
	return service.NewLocal(store)
}

func descriptor(entityType, action string) core.Descriptor {
	payload, _ := json.Marshal(map[string]string{"k": "v"})
	return core.Descriptor{EntityType: entityType, Action: action, Payload: payload}
}

func TestCreateEntry_RoundTrip(t *testing.T) {
	svc := setupLocal(t)
	ctx := context.Background()

	entityID := "42"
	d := descriptor("SHIPMENT", "ACCEPT_ASSIGNMENT")
	d.EntityID = &entityID

	entry, err := svc.CreateEntry(ctx, d)
	require.NoError(t, err)
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, core.StatusPending, entry.Status)

	listed, err := svc.ListEntries(ctx, core.StatusPending, 50)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, entry.ID, listed[0].ID)
	require.NotNil(t, listed[0].EntityID)
	assert.Equal(t, "42", *listed[0].EntityID)
}

func TestCreateEntry_Validation(t *testing.T) {
	svc := setupLocal(t)
	ctx := context.Background()

	_, err := svc.CreateEntry(ctx, descriptor("", "ACCEPT_ASSIGNMENT"))
	assert.ErrorIs(t, err, core.ErrInvalidEntityType)

	_, err = svc.CreateEntry(ctx, descriptor("SHIPMENT", ""))
	assert.ErrorIs(t, err, core.ErrInvalidAction)

	_, err = svc.CreateEntry(ctx, descriptor("not a tag!", "ACCEPT_ASSIGNMENT"))
	assert.ErrorIs(t, err, core.ErrInvalidEntityType)

	big := descriptor("SHIPMENT", "ACCEPT_ASSIGNMENT")
	big.Payload = json.RawMessage(fmt.Sprintf(`{"blob":%q}`, bytes.Repeat([]byte("x"), security.MaxPayloadSize)))
	_, err = svc.CreateEntry(ctx, big)
	assert.ErrorIs(t, err, core.ErrPayloadTooLarge)
}

func TestCreateEntry_DedupeKey(t *testing.T) {
	svc := setupLocal(t)
	ctx := context.Background()

	d := descriptor("SHIPMENT", "ACCEPT_ASSIGNMENT")
	d.DedupeKey = "key-1"
	_, err := svc.CreateEntry(ctx, d)
	require.NoError(t, err)

	_, err = svc.CreateEntry(ctx, d)
	assert.ErrorIs(t, err, core.ErrDuplicateEntry)
}

func TestListEntries_InvalidStatus(t *testing.T) {
	svc := setupLocal(t)

	_, err := svc.ListEntries(context.Background(), core.Status("BOGUS"), 50)
	assert.ErrorIs(t, err, core.ErrInvalidStatus)
}

func TestPatchEntry_Transitions(t *testing.T) {
	svc := setupLocal(t)
	ctx := context.Background()

	entry, err := svc.CreateEntry(ctx, descriptor("SHIPMENT", "ACCEPT_ASSIGNMENT"))
	require.NoError(t, err)

	note := "Manually discarded"
	discarded, err := svc.PatchEntry(ctx, entry.ID, core.Patch{Status: core.StatusError, ErrorMessage: &note})
	require.NoError(t, err)
	assert.Equal(t, core.StatusError, discarded.Status)
	require.NotNil(t, discarded.ErrorMessage)
	assert.Equal(t, note, *discarded.ErrorMessage)

	retried, err := svc.PatchEntry(ctx, entry.ID, core.Patch{Status: core.StatusPending})
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, retried.Status)
	assert.Nil(t, retried.ErrorMessage)
}

func TestPatchEntry_InvalidStatus(t *testing.T) {
	svc := setupLocal(t)

	_, err := svc.PatchEntry(context.Background(), "1", core.Patch{Status: core.Status("BOGUS")})
	assert.ErrorIs(t, err, core.ErrInvalidStatus)
}
