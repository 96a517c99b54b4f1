package transform

import (
	"github.com/rs/zerolog/log"

	"cep-pipeline/pkg/viacep"
)

// Normalize expands successful fetch outcomes into Address records.
func Normalize(succeeded []viacep.Success) []Address {
	addresses := make([]Address, 0, len(succeeded))
	for _, s := range succeeded {
		addresses = append(addresses, addressFromFields(s.CEP, s.Fields))
	}
	return addresses
}

// Validate removes duplicate CEPs (keeping the first occurrence,
// warning when duplicates disagree) and flags suspicious records:
// empty logradouro and UF codes that are not two characters.
func Validate(addresses []Address) []Address {
	validated := make([]Address, 0, len(addresses))
	firstByCEP := make(map[string]Address)

	duplicates := 0
	for _, addr := range addresses {
		first, seen := firstByCEP[addr.CEP]
		if seen {
			duplicates++
			if !sameData(first, addr) {
				log.Warn().
					Str("cep", addr.CEP).
					Msg("Duplicate CEP with inconsistent data - keeping first occurrence")
			}
			continue
		}
		firstByCEP[addr.CEP] = addr
		validated = append(validated, addr)
	}

	if duplicates > 0 {
		log.Warn().
			Int("duplicates", duplicates).
			Msg("Removed duplicate CEP records")
	}

	emptyLogradouro := 0
	invalidUF := 0
	for _, addr := range validated {
		if addr.Logradouro == "" {
			emptyLogradouro++
		}
		if addr.UF != "" && len([]rune(addr.UF)) != 2 {
			invalidUF++
		}
	}

	if emptyLogradouro > 0 {
		log.Warn().
			Int("records", emptyLogradouro).
			Msg("Records with empty logradouro")
	}
	if invalidUF > 0 {
		log.Warn().
			Int("records", invalidUF).
			Msg("Records with invalid UF code")
	}

	return validated
}
