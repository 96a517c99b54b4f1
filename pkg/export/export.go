// Package export writes the pipeline's outputs: the normalized address
// base as JSON and XML, and the failure log as CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"cep-pipeline/pkg/transform"
	"cep-pipeline/pkg/viacep"
)

// Output file names inside the output directory.
const (
	JSONFile       = "enderecos.json"
	XMLFile        = "enderecos.xml"
	FailureCSVFile = "cep_erro.csv"
)

// enderecos is the XML document root wrapping the address rows.
type enderecos struct {
	XMLName   xml.Name            `xml:"enderecos"`
	Addresses []transform.Address `xml:"endereco"`
}

// WriteJSON exports addresses as an indented JSON array.
func WriteJSON(addresses []transform.Address, outputDir string) error {
	if len(addresses) == 0 {
		log.Info().Msg("No addresses to export - skipping JSON")
		return nil
	}

	path := filepath.Join(outputDir, JSONFile)
	if err := prepareTarget(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(addresses, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal addresses: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write JSON export: %w", err)
	}

	log.Info().
		Int("records", len(addresses)).
		Str("path", path).
		Msg("JSON export complete")
	return nil
}

// WriteXML exports addresses under an <enderecos> root with one
// <endereco> element per record.
func WriteXML(addresses []transform.Address, outputDir string) error {
	if len(addresses) == 0 {
		log.Info().Msg("No addresses to export - skipping XML")
		return nil
	}

	path := filepath.Join(outputDir, XMLFile)
	if err := prepareTarget(path); err != nil {
		return err
	}

	data, err := xml.MarshalIndent(enderecos{Addresses: addresses}, "", "    ")
	if err != nil {
		return fmt.Errorf("marshal addresses: %w", err)
	}

	content := append([]byte(xml.Header), data...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return fmt.Errorf("write XML export: %w", err)
	}

	log.Info().
		Int("records", len(addresses)).
		Str("path", path).
		Msg("XML export complete")
	return nil
}

// WriteFailureCSV exports the failed partition with enough context for
// offline categorization.
func WriteFailureCSV(failed []viacep.Failure, outputDir string) error {
	if len(failed) == 0 {
		log.Info().Msg("No failures to export - skipping CSV")
		return nil
	}

	path := filepath.Join(outputDir, FailureCSVFile)
	if err := prepareTarget(path); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create failure CSV: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"cep", "categoria", "mensagem", "tentativas", "data_erro"}); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, failure := range failed {
		record := []string{
			failure.CEP,
			string(failure.Category),
			failure.Message,
			fmt.Sprintf("%d", failure.Attempts),
			failure.Timestamp.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush failure CSV: %w", err)
	}

	log.Info().
		Int("records", len(failed)).
		Str("path", path).
		Msg("Failure CSV export complete")
	return nil
}

// prepareTarget ensures the output directory exists and removes a
// previous export at path, so each run starts clean.
func prepareTarget(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	if _, err := os.Stat(path); err == nil {
		if err := os.Remove(path); err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Could not remove previous export")
		}
	}
	return nil
}
