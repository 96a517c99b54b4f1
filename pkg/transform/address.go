// Package transform normalizes and validates successfully fetched
// address records before persistence and export.
package transform

import (
	"encoding/xml"
	"strings"
)

// Address is the normalized ViaCEP address record, mirroring the
// columns of the enderecos table.
type Address struct {
	XMLName     xml.Name `json:"-" xml:"endereco"`
	CEP         string   `json:"cep" xml:"cep"`
	Logradouro  string   `json:"logradouro" xml:"logradouro"`
	Complemento string   `json:"complemento" xml:"complemento"`
	Unidade     string   `json:"unidade" xml:"unidade"`
	Bairro      string   `json:"bairro" xml:"bairro"`
	Localidade  string   `json:"localidade" xml:"localidade"`
	UF          string   `json:"uf" xml:"uf"`
	Estado      string   `json:"estado" xml:"estado"`
	Regiao      string   `json:"regiao" xml:"regiao"`
	IBGE        string   `json:"ibge" xml:"ibge"`
	GIA         string   `json:"gia" xml:"gia"`
	DDD         string   `json:"ddd" xml:"ddd"`
	SIAFI       string   `json:"siafi" xml:"siafi"`
}

// addressFromFields maps raw payload fields onto an Address, keyed by
// the canonical CEP rather than the service's formatted one. Blank-only
// values are collapsed to empty strings.
func addressFromFields(cep string, fields map[string]string) Address {
	get := func(key string) string {
		return strings.TrimSpace(fields[key])
	}

	return Address{
		CEP:         cep,
		Logradouro:  get("logradouro"),
		Complemento: get("complemento"),
		Unidade:     get("unidade"),
		Bairro:      get("bairro"),
		Localidade:  get("localidade"),
		UF:          get("uf"),
		Estado:      get("estado"),
		Regiao:      get("regiao"),
		IBGE:        get("ibge"),
		GIA:         get("gia"),
		DDD:         get("ddd"),
		SIAFI:       get("siafi"),
	}
}

// sameData reports whether two addresses carry identical data apart
// from the CEP itself.
func sameData(a, b Address) bool {
	a.CEP, b.CEP = "", ""
	a.XMLName, b.XMLName = xml.Name{}, xml.Name{}
	return a == b
}
