package export

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cep-pipeline/pkg/transform"
	"cep-pipeline/pkg/viacep"
)

func sampleAddresses() []transform.Address {
	return []transform.Address{
		{CEP: "01001000", Logradouro: "Praça da Sé", Localidade: "São Paulo", UF: "SP"},
		{CEP: "20040030", Logradouro: "Rua da Assembleia", Localidade: "Rio de Janeiro", UF: "RJ"},
	}
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()

	if err := WriteJSON(sampleAddresses(), dir); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, JSONFile))
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}

	var decoded []transform.Address
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Export is not valid JSON: %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("Export holds %d records, want 2", len(decoded))
	}
	if decoded[0].Logradouro != "Praça da Sé" {
		t.Errorf("logradouro = %q, want %q", decoded[0].Logradouro, "Praça da Sé")
	}
}

func TestWriteJSON_EmptySkips(t *testing.T) {
	dir := t.TempDir()

	if err := WriteJSON(nil, dir); err != nil {
		t.Fatalf("WriteJSON(nil) error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, JSONFile)); !os.IsNotExist(err) {
		t.Error("Empty export should not create a file")
	}
}

func TestWriteJSON_ReplacesPreviousExport(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, JSONFile)
	if err := os.WriteFile(path, []byte("stale"), 0o644); err != nil {
		t.Fatalf("Failed to seed stale export: %v", err)
	}

	if err := WriteJSON(sampleAddresses(), dir); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "stale") {
		t.Error("Previous export content survived")
	}
}

func TestWriteXML(t *testing.T) {
	dir := t.TempDir()

	if err := WriteXML(sampleAddresses(), dir); err != nil {
		t.Fatalf("WriteXML() error = %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, XMLFile))
	if err != nil {
		t.Fatalf("Failed to read export: %v", err)
	}

	var decoded enderecos
	if err := xml.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Export is not valid XML: %v", err)
	}
	if len(decoded.Addresses) != 2 {
		t.Fatalf("Export holds %d records, want 2", len(decoded.Addresses))
	}
	if !strings.Contains(string(data), "<enderecos>") || !strings.Contains(string(data), "<endereco>") {
		t.Error("XML export missing expected element names")
	}
}

func TestWriteFailureCSV(t *testing.T) {
	dir := t.TempDir()

	failed := []viacep.Failure{
		{
			CEP:       "99999999",
			Category:  viacep.CategoryNotFound,
			Message:   "CEP does not exist",
			Attempts:  1,
			Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			CEP:       "11111111",
			Category:  viacep.CategoryExhaustedRetries,
			Message:   "retries exhausted after 3 attempts: HTTP 500",
			Attempts:  3,
			Timestamp: time.Date(2025, 6, 1, 12, 1, 0, 0, time.UTC),
		},
	}

	if err := WriteFailureCSV(failed, dir); err != nil {
		t.Fatalf("WriteFailureCSV() error = %v", err)
	}

	f, err := os.Open(filepath.Join(dir, FailureCSVFile))
	if err != nil {
		t.Fatalf("Failed to open export: %v", err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("Export is not valid CSV: %v", err)
	}

	if len(records) != 3 { // header + 2 rows
		t.Fatalf("CSV holds %d rows, want 3", len(records))
	}
	if records[0][0] != "cep" || records[0][1] != "categoria" {
		t.Errorf("Unexpected header: %v", records[0])
	}
	if records[1][1] != "not_found" {
		t.Errorf("Category column = %q, want not_found", records[1][1])
	}
	if records[2][3] != "3" {
		t.Errorf("Attempts column = %q, want 3", records[2][3])
	}
}
