package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"cep-pipeline/pkg/transform"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := Open(filepath.Join(t.TempDir(), "base_enderecos.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })

	if err := s.Init(true); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return s
}

func sampleAddresses() []transform.Address {
	return []transform.Address{
		{CEP: "01001000", Logradouro: "Praça da Sé", Bairro: "Sé", Localidade: "São Paulo", UF: "SP"},
		{CEP: "20040030", Logradouro: "Rua da Assembleia", Localidade: "Rio de Janeiro", UF: "RJ"},
	}
}

func TestStore_InsertAddresses(t *testing.T) {
	s := openTestStore(t)

	inserted, skipped, err := s.InsertAddresses(sampleAddresses())
	if err != nil {
		t.Fatalf("InsertAddresses() error = %v", err)
	}
	if inserted != 2 || skipped != 0 {
		t.Errorf("InsertAddresses() = %d inserted, %d skipped, want 2/0", inserted, skipped)
	}

	count, err := s.CountAddresses()
	if err != nil {
		t.Fatalf("CountAddresses() error = %v", err)
	}
	if count != 2 {
		t.Errorf("CountAddresses() = %d, want 2", count)
	}
}

func TestStore_InsertSkipsExistingCEPs(t *testing.T) {
	s := openTestStore(t)

	if _, _, err := s.InsertAddresses(sampleAddresses()); err != nil {
		t.Fatalf("First insert error = %v", err)
	}

	more := append(sampleAddresses(), transform.Address{
		CEP: "70040010", Logradouro: "SBN Quadra 1", Localidade: "Brasília", UF: "DF",
	})

	inserted, skipped, err := s.InsertAddresses(more)
	if err != nil {
		t.Fatalf("Second insert error = %v", err)
	}
	if inserted != 1 || skipped != 2 {
		t.Errorf("Second insert = %d inserted, %d skipped, want 1/2", inserted, skipped)
	}
}

func TestStore_InitResetDropsAddresses(t *testing.T) {
	s := openTestStore(t)

	if _, _, err := s.InsertAddresses(sampleAddresses()); err != nil {
		t.Fatalf("InsertAddresses() error = %v", err)
	}

	if err := s.Init(true); err != nil {
		t.Fatalf("Init(reset) error = %v", err)
	}

	count, err := s.CountAddresses()
	if err != nil {
		t.Fatalf("CountAddresses() error = %v", err)
	}
	if count != 0 {
		t.Errorf("CountAddresses() after reset = %d, want 0", count)
	}
}

func TestStore_InsertEmpty(t *testing.T) {
	s := openTestStore(t)

	inserted, skipped, err := s.InsertAddresses(nil)
	if err != nil {
		t.Fatalf("InsertAddresses(nil) error = %v", err)
	}
	if inserted != 0 || skipped != 0 {
		t.Errorf("InsertAddresses(nil) = %d/%d, want 0/0", inserted, skipped)
	}
}

func TestStore_RecordRunSurvivesReset(t *testing.T) {
	s := openTestStore(t)

	run := RunSummary{
		ID:         uuid.NewString(),
		Mode:       "offline",
		Keys:       120,
		Succeeded:  100,
		Failed:     20,
		Inserted:   100,
		StartedAt:  time.Now().Add(-time.Minute),
		FinishedAt: time.Now(),
	}

	if err := s.RecordRun(run); err != nil {
		t.Fatalf("RecordRun() error = %v", err)
	}

	// Reset drops addresses but keeps run history.
	if err := s.Init(true); err != nil {
		t.Fatalf("Init(reset) error = %v", err)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM runs WHERE id = ?`, run.ID).Scan(&count); err != nil {
		t.Fatalf("Query runs error = %v", err)
	}
	if count != 1 {
		t.Errorf("Run row count = %d, want 1", count)
	}
}
