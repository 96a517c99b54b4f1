// Package keys loads, normalizes, and samples the input CEP list.
package keys

import (
	"archive/zip"
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/rs/zerolog/log"

	"cep-pipeline/pkg/viacep"
)

// Load reads the CEP column from a TSV file (plain or inside a .zip
// archive), normalizes and deduplicates the codes, and returns a
// seeded random sample of sampleSize entries. If the file holds fewer
// CEPs than requested, all of them are returned with a warning.
func Load(path string, sampleSize int, seed int64) ([]string, error) {
	reader, closeFn, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer closeFn()

	ceps, err := readCEPColumn(reader)
	if err != nil {
		return nil, fmt.Errorf("read CEP list: %w", err)
	}

	if len(ceps) == 0 {
		return nil, fmt.Errorf("no valid CEPs found in %s", path)
	}

	if len(ceps) <= sampleSize {
		if len(ceps) < sampleSize {
			log.Warn().
				Int("requested", sampleSize).
				Int("available", len(ceps)).
				Msg("Sample larger than available CEPs - returning all")
		}
		return ceps, nil
	}

	return sample(ceps, sampleSize, seed), nil
}

// openInput opens the TSV, unwrapping a single-entry zip archive when
// the path ends in .zip.
func openInput(path string) (io.Reader, func(), error) {
	if !strings.HasSuffix(path, ".zip") {
		f, err := os.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open input file: %w", err)
		}
		return f, func() { f.Close() }, nil
	}

	archive, err := zip.OpenReader(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input archive: %w", err)
	}

	if len(archive.File) == 0 {
		archive.Close()
		return nil, nil, fmt.Errorf("input archive %s is empty", path)
	}

	entry, err := archive.File[0].Open()
	if err != nil {
		archive.Close()
		return nil, nil, fmt.Errorf("open archive entry: %w", err)
	}

	return entry, func() {
		entry.Close()
		archive.Close()
	}, nil
}

// readCEPColumn scans a TSV stream for the 'cep' column, normalizing
// each value and dropping malformed or duplicate entries while
// preserving first-seen order.
func readCEPColumn(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("input is empty")
	}

	header := strings.Split(scanner.Text(), "\t")
	cepColumn := -1
	for i, name := range header {
		if strings.TrimSpace(strings.ToLower(name)) == "cep" {
			cepColumn = i
			break
		}
	}
	if cepColumn < 0 {
		return nil, fmt.Errorf("input has no 'cep' column")
	}

	var (
		ceps      []string
		seen      = make(map[string]struct{})
		malformed int
	)

	for scanner.Scan() {
		fields := strings.Split(scanner.Text(), "\t")
		if cepColumn >= len(fields) {
			continue
		}

		cep, ok := viacep.NormalizeCEP(fields[cepColumn])
		if !ok {
			malformed++
			continue
		}

		if _, dup := seen[cep]; dup {
			continue
		}
		seen[cep] = struct{}{}
		ceps = append(ceps, cep)
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if malformed > 0 {
		log.Warn().
			Int("malformed", malformed).
			Msg("Dropped malformed CEPs from input")
	}

	return ceps, nil
}

// sample draws n entries without replacement using a seeded shuffle,
// so the same seed always yields the same sample.
func sample(ceps []string, n int, seed int64) []string {
	shuffled := make([]string, len(ceps))
	copy(shuffled, ceps)

	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	return shuffled[:n]
}
