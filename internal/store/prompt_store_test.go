package store_test

import (
	"database/sql"
	"errors"
	"testing"

	"github.com/jaehyun-ko/newsight/internal/store"
	"github.com/jaehyun-ko/newsight/internal/testutil"
)

func TestCreatePromptFirstBecomesActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	first, err := s.CreatePrompt("strict", "Judge {title}")
	if err != nil {
		t.Fatalf("CreatePrompt failed: %v", err)
	}
	if !first.Active {
		t.Error("The first prompt should be active")
	}

	second, err := s.CreatePrompt("lenient", "Skim {title}")
	if err != nil {
		t.Fatalf("CreatePrompt failed: %v", err)
	}
	if second.Active {
		t.Error("A second prompt must not become active on creation")
	}

	active, err := s.GetActivePrompt()
	if err != nil {
		t.Fatalf("GetActivePrompt failed: %v", err)
	}
	if active.ID != first.ID {
		t.Errorf("Expected %s active, got %s", first.ID, active.ID)
	}
}

func TestCreatePromptValidation(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	if _, err := s.CreatePrompt("", "template"); err == nil {
		t.Error("Expected an error for an empty name")
	}
	if _, err := s.CreatePrompt("name", "   "); err == nil {
		t.Error("Expected an error for a blank template")
	}
}

func TestGetActivePromptWhenNoneStored(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	if _, err := s.GetActivePrompt(); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows, got %v", err)
	}
}

func TestActivatePromptSwitches(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	first, _ := s.CreatePrompt("a", "ta")
	second, _ := s.CreatePrompt("b", "tb")

	if err := s.ActivatePrompt(second.ID); err != nil {
		t.Fatalf("ActivatePrompt failed: %v", err)
	}

	active, err := s.GetActivePrompt()
	if err != nil {
		t.Fatalf("GetActivePrompt failed: %v", err)
	}
	if active.ID != second.ID {
		t.Errorf("Expected %s active, got %s", second.ID, active.ID)
	}

	old, _ := s.GetPrompt(first.ID)
	if old.Active {
		t.Error("The former active prompt should be cleared")
	}
}

func TestUpdatePrompt(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	p, _ := s.CreatePrompt("a", "ta")
	if err := s.UpdatePrompt(p.ID, "renamed", "new template"); err != nil {
		t.Fatalf("UpdatePrompt failed: %v", err)
	}

	got, err := s.GetPrompt(p.ID)
	if err != nil {
		t.Fatalf("GetPrompt failed: %v", err)
	}
	if got.Name != "renamed" || got.Template != "new template" {
		t.Errorf("Update not persisted: %+v", got)
	}

	if err := s.UpdatePrompt("nonexistent", "n", "t"); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows for an unknown id, got %v", err)
	}
}

func TestDeleteActivePromptLeavesNoneActive(t *testing.T) {
	db := testutil.SetupTestDB(t)
	s := store.New(db)

	p, _ := s.CreatePrompt("only", "t")
	if err := s.DeletePrompt(p.ID); err != nil {
		t.Fatalf("DeletePrompt failed: %v", err)
	}

	if _, err := s.GetActivePrompt(); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected no active prompt after deletion, got %v", err)
	}
	if err := s.DeletePrompt(p.ID); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("Expected sql.ErrNoRows deleting twice, got %v", err)
	}
}
