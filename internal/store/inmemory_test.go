package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInMemorySaveGetDelete(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	doc := SessionDoc{
		ID:            "abcd1234-ef56-7890-abcd-ef1234567890",
		HostID:        "host",
		Title:         "Test",
		AdmissionMode: "auto",
		IsActive:      true,
		CreatedAt:     time.Now(),
	}
	if err := s.SaveSession(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetSession(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Title != "Test" || got.HostID != "host" {
		t.Fatalf("doc = %+v", got)
	}

	if err := s.DeleteSession(ctx, doc.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetSession(ctx, doc.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete: err = %v, want ErrNotFound", err)
	}
	// Deleting a missing doc is a no-op.
	if err := s.DeleteSession(ctx, doc.ID); err != nil {
		t.Fatalf("double delete: %v", err)
	}
}

func TestInMemoryUpdateParticipants(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()

	if err := s.UpdateParticipants(ctx, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: err = %v, want ErrNotFound", err)
	}

	doc := SessionDoc{ID: "abcd1234-ef56-7890-abcd-ef1234567890"}
	if err := s.SaveSession(ctx, doc); err != nil {
		t.Fatalf("save: %v", err)
	}
	parts := []ParticipantDoc{{ConnectionID: "c1", Role: "creator", DeviceType: "webcam", JoinedAt: time.Now()}}
	if err := s.UpdateParticipants(ctx, doc.ID, parts); err != nil {
		t.Fatalf("update: %v", err)
	}
	got, err := s.GetSession(ctx, doc.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Participants) != 1 || got.Participants[0].ConnectionID != "c1" {
		t.Fatalf("participants = %+v", got.Participants)
	}
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	s, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	defer s.Close()
	if _, ok := s.(*InMemoryStore); !ok {
		t.Fatalf("store type = %T, want *InMemoryStore", s)
	}
}
