package accessory

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/caseta-bridge/internal/infrastructure/database"
	"github.com/nerrad567/caseta-bridge/internal/leap"
	_ "github.com/nerrad567/caseta-bridge/migrations"
)

func picoDevice() leap.Device {
	return leap.Device{
		Href:               "/device/5",
		Name:               "Pico",
		FullyQualifiedName: []string{"Kitchen", "Pico"},
		SerialNumber:       71234567,
		ModelNumber:        "PJ2-3BRL-GWH-L01",
		DeviceType:         "Pico3ButtonRaiseLower",
		AssociatedArea:     &leap.Href{Href: "/area/3"},
		ButtonGroups:       []leap.Href{{Href: "/buttongroup/2"}},
	}
}

func setupRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	db, err := database.Open(database.Config{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.Migrate(context.Background()))
	return NewSQLiteRepository(db.DB)
}

func TestIdentityFor(t *testing.T) {
	a := IdentityFor(71234567)
	assert.Equal(t, a, IdentityFor(71234567), "identity must be deterministic")
	assert.NotEqual(t, a, IdentityFor(71234568))

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
}

func TestNew(t *testing.T) {
	a := New(picoDevice(), "032E7E88")

	assert.Equal(t, IdentityFor(71234567), a.ID)
	assert.Equal(t, "Kitchen Pico", a.DisplayName)
	assert.Equal(t, "032E7E88", a.Context.HubID)
	assert.NoError(t, a.Validate())
}

func TestAccessory_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Accessory)
	}{
		{"empty id", func(a *Accessory) { a.ID = "" }},
		{"non uuid id", func(a *Accessory) { a.ID = "pico-1" }},
		{"empty hub", func(a *Accessory) { a.Context.HubID = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(picoDevice(), "032E7E88")
			tt.mutate(a)
			assert.ErrorIs(t, a.Validate(), ErrInvalid)
		})
	}
}

func TestAccessory_CloneIsDeep(t *testing.T) {
	a := New(picoDevice(), "032E7E88")
	c := a.Clone()

	c.Context.Device.FullyQualifiedName[0] = "Hall"
	c.Context.Device.AssociatedArea.Href = "/area/9"

	assert.Equal(t, "Kitchen", a.Context.Device.FullyQualifiedName[0])
	assert.Equal(t, "/area/3", a.Context.Device.AssociatedArea.Href)
}

func TestContextCodec_PreservesDeviceRecord(t *testing.T) {
	original := Context{Device: picoDevice(), HubID: "032E7E88"}

	blob, err := EncodeContext(original)
	require.NoError(t, err)
	decoded, err := DecodeContext(blob)
	require.NoError(t, err)

	assert.Equal(t, original, decoded)
	assert.Nil(t, decoded.Device.LocalZones, "absent slices stay absent")

	again, err := EncodeContext(decoded)
	require.NoError(t, err)
	assert.Equal(t, blob, again, "encoding is canonical")
}

func TestDecodeContext_Garbage(t *testing.T) {
	_, err := DecodeContext([]byte{0xff, 0x00})
	assert.True(t, errors.Is(err, ErrContextCodec))
}

func TestSQLiteRepository_SaveGetDelete(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	a := New(picoDevice(), "032E7E88")

	require.NoError(t, repo.Save(ctx, a))
	assert.False(t, a.CreatedAt.IsZero())

	got, err := repo.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.DisplayName, got.DisplayName)
	assert.Equal(t, a.Context, got.Context)
	assert.True(t, a.CreatedAt.Equal(got.CreatedAt))

	require.NoError(t, repo.Delete(ctx, a.ID))
	_, err = repo.Get(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, repo.Delete(ctx, a.ID), ErrNotFound)
}

func TestSQLiteRepository_SaveUpdatesInPlace(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()
	a := New(picoDevice(), "032E7E88")
	require.NoError(t, repo.Save(ctx, a))
	created := a.CreatedAt

	a.DisplayName = "Hall Pico"
	a.Context.Device.FullyQualifiedName = []string{"Hall", "Pico"}
	require.NoError(t, repo.Save(ctx, a))

	all, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "Hall Pico", all[0].DisplayName)
	assert.Equal(t, []string{"Hall", "Pico"}, all[0].Context.Device.FullyQualifiedName)
	assert.True(t, created.Equal(all[0].CreatedAt))
}

func TestSQLiteRepository_ListByHub(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	d2 := picoDevice()
	d2.SerialNumber = 2
	require.NoError(t, repo.Save(ctx, New(picoDevice(), "HUB1")))
	require.NoError(t, repo.Save(ctx, New(d2, "HUB2")))

	hub2, err := repo.ListByHub(ctx, "HUB2")
	require.NoError(t, err)
	require.Len(t, hub2, 1)
	assert.Equal(t, IdentityFor(2), hub2[0].ID)
}

func TestSQLiteRepository_RejectsInvalid(t *testing.T) {
	repo := setupRepo(t)
	err := repo.Save(context.Background(), &Accessory{ID: IdentityFor(1)})
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestStore_CacheAndCopies(t *testing.T) {
	repo := setupRepo(t)
	ctx := context.Background()

	seeded := New(picoDevice(), "HUB1")
	require.NoError(t, repo.Save(ctx, seeded))

	store := NewStore(repo)
	require.NoError(t, store.Load(ctx))
	assert.Equal(t, 1, store.Count())

	got, ok := store.Get(seeded.ID)
	require.True(t, ok)
	got.DisplayName = "mutated"

	again, _ := store.Get(seeded.ID)
	assert.Equal(t, "Kitchen Pico", again.DisplayName, "cache must not be mutated through a copy")

	_, ok = store.Get(IdentityFor(999))
	assert.False(t, ok)
}

func TestStore_SaveAndDelete(t *testing.T) {
	store := NewStore(setupRepo(t))
	ctx := context.Background()

	d2 := picoDevice()
	d2.SerialNumber = 2
	d2.FullyQualifiedName = []string{"Attic", "Pico"}
	require.NoError(t, store.Save(ctx, New(picoDevice(), "HUB1")))
	require.NoError(t, store.Save(ctx, New(d2, "HUB1")))

	list := store.List()
	require.Len(t, list, 2)
	assert.Equal(t, "Attic Pico", list[0].DisplayName)
	assert.Len(t, store.ListByHub("HUB1"), 2)
	assert.Empty(t, store.ListByHub("HUB2"))

	require.NoError(t, store.Delete(ctx, IdentityFor(2)))
	require.NoError(t, store.Delete(ctx, IdentityFor(2)), "deleting twice is not an error")
	assert.Equal(t, 1, store.Count())
}
