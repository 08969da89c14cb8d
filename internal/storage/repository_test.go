package storage

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	devicedomain "github.com/nexus-iot/server/internal/domain/device"
	"github.com/nexus-iot/server/internal/model"
)

func backends(t *testing.T) map[string]devicedomain.Repository {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	memSQLite, err := NewSQLite(ctx, MemoryDSN, logger)
	if err != nil {
		t.Fatalf("open in-memory sqlite: %v", err)
	}
	fileSQLite, err := NewSQLite(ctx, filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("open file sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = memSQLite.Close()
		_ = fileSQLite.Close()
	})
	return map[string]devicedomain.Repository{
		"memory":        NewMemory(),
		"sqlite-memory": memSQLite,
		"sqlite-file":   fileSQLite,
	}
}

func testDevice(id string, deviceType model.DeviceType, status model.DeviceStatus) model.Device {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	location := "Living Room"
	return model.Device{
		ID:           id,
		Name:         "Device " + id,
		Type:         deviceType,
		Status:       status,
		Location:     &location,
		Metadata:     model.Metadata{"state": "off", "speed": 2},
		LastActivity: now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestRepositoryInsertRejectsDuplicateID(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.Insert(ctx, testDevice("d1", model.DeviceTypeFan, model.DeviceStatusOnline)); err != nil {
				t.Fatalf("first insert: %v", err)
			}
			err := repo.Insert(ctx, testDevice("d1", model.DeviceTypeLight, model.DeviceStatusOnline))
			if !errors.Is(err, devicedomain.ErrDeviceConflict) {
				t.Fatalf("second insert error = %v, want ErrDeviceConflict", err)
			}
			got, err := repo.Get(ctx, "d1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Type != model.DeviceTypeFan {
				t.Fatalf("type = %q, want first fan record", got.Type)
			}
		})
	}
}

func TestRepositoryGetUnknownReturnsNotFound(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := repo.Get(context.Background(), "missing")
			if !errors.Is(err, devicedomain.ErrDeviceNotFound) {
				t.Fatalf("get error = %v, want ErrDeviceNotFound", err)
			}
		})
	}
}

func TestRepositoryRoundTripsFields(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			in := testDevice("d1", model.DeviceTypeFan, model.DeviceStatusOnline)
			if err := repo.Insert(ctx, in); err != nil {
				t.Fatalf("insert: %v", err)
			}
			got, err := repo.Get(ctx, "d1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Name != in.Name || got.Status != in.Status || got.Type != in.Type {
				t.Fatalf("got %+v, want %+v", got, in)
			}
			if got.Location == nil || *got.Location != "Living Room" {
				t.Fatalf("location = %v, want Living Room", got.Location)
			}
			if !got.CreatedAt.Equal(in.CreatedAt) || !got.LastActivity.Equal(in.LastActivity) {
				t.Fatalf("timestamps not preserved: %+v", got)
			}
			if got.Metadata.String("state", "") != "off" {
				t.Fatalf("metadata state = %v, want off", got.Metadata["state"])
			}
			if got.Metadata.Number("speed", 0) != 2 {
				t.Fatalf("metadata speed = %v, want 2", got.Metadata["speed"])
			}
		})
	}
}

func TestRepositorySaveAndDelete(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := repo.Save(ctx, testDevice("ghost", model.DeviceTypeFan, model.DeviceStatusOnline)); !errors.Is(err, devicedomain.ErrDeviceNotFound) {
				t.Fatalf("save unknown error = %v, want ErrDeviceNotFound", err)
			}

			device := testDevice("d1", model.DeviceTypeFan, model.DeviceStatusOnline)
			if err := repo.Insert(ctx, device); err != nil {
				t.Fatalf("insert: %v", err)
			}
			device.Status = model.DeviceStatusMaintenance
			device.Location = nil
			if err := repo.Save(ctx, device); err != nil {
				t.Fatalf("save: %v", err)
			}
			got, err := repo.Get(ctx, "d1")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			if got.Status != model.DeviceStatusMaintenance || got.Location != nil {
				t.Fatalf("saved device = %+v", got)
			}

			existed, err := repo.Delete(ctx, "d1")
			if err != nil || !existed {
				t.Fatalf("delete = (%v, %v), want (true, nil)", existed, err)
			}
			existed, err = repo.Delete(ctx, "d1")
			if err != nil || existed {
				t.Fatalf("second delete = (%v, %v), want (false, nil)", existed, err)
			}
		})
	}
}

func TestRepositoryListFiltersAndSorts(t *testing.T) {
	for name, repo := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			seed := []model.Device{
				testDevice("c", model.DeviceTypeFan, model.DeviceStatusOffline),
				testDevice("a", model.DeviceTypeFan, model.DeviceStatusOnline),
				testDevice("b", model.DeviceTypeLight, model.DeviceStatusOnline),
			}
			for _, device := range seed {
				if err := repo.Insert(ctx, device); err != nil {
					t.Fatalf("insert %s: %v", device.ID, err)
				}
			}

			all, err := repo.List(ctx, devicedomain.ListFilter{})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(all) != 3 || all[0].ID != "a" || all[1].ID != "b" || all[2].ID != "c" {
				t.Fatalf("unexpected list order: %+v", all)
			}

			fans, err := repo.List(ctx, devicedomain.ListFilter{Type: model.DeviceTypeFan})
			if err != nil {
				t.Fatalf("list fans: %v", err)
			}
			if len(fans) != 2 {
				t.Fatalf("expected 2 fans, got %d", len(fans))
			}

			online, err := repo.List(ctx, devicedomain.ListFilter{Status: model.DeviceStatusOnline})
			if err != nil {
				t.Fatalf("list online: %v", err)
			}
			if len(online) != 2 || online[0].ID != "a" || online[1].ID != "b" {
				t.Fatalf("unexpected online devices: %+v", online)
			}
		})
	}
}

func TestMemoryRepositoryDoesNotAliasMetadata(t *testing.T) {
	ctx := context.Background()
	repo := NewMemory()
	device := testDevice("d1", model.DeviceTypeFan, model.DeviceStatusOnline)
	if err := repo.Insert(ctx, device); err != nil {
		t.Fatalf("insert: %v", err)
	}
	device.Metadata["state"] = "on"

	got, err := repo.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.Metadata["speed"] = 5

	again, err := repo.Get(ctx, "d1")
	if err != nil {
		t.Fatalf("get again: %v", err)
	}
	if again.Metadata.String("state", "") != "off" || again.Metadata.Number("speed", 0) != 2 {
		t.Fatalf("stored metadata mutated: %+v", again.Metadata)
	}
}
