package export

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/V4T54L/weblog-etl/internal/domain"
)

const (
	LocaleDefault = "default"
	LocalePtBR    = "pt-BR"
)

// Schema maps column keys to display names.
type Schema struct {
	Locale string
	names  map[string]string
}

var builtin = map[string]map[string]string{
	LocalePtBR: {
		"ip":           "Ip",
		"date":         "Data",
		"method":       "Metodo",
		"url":          "URL",
		"protocol":     "Protocolo",
		"status":       "Codigo_Status",
		"is_mobile":    "E_Mobile",
		"is_tablet":    "E_Tablet",
		"is_pc":        "E_Pc",
		"is_bot":       "E_Bot",
		"browser":      "Navegador",
		"os":           "Sistema_Operacional",
		"continent":    "Continente",
		"country":      "Pais",
		"country_code": "Codigo_Pais",
		"region_name":  "Regiao",
		"city":         "Cidade",
		"lat":          "Latitude",
		"lon":          "Longitude",
		"isp":          "Isp",
		"org":          "Organizacao",
		"as":           "As",
		"proxy":        "Proxy",
		"hosting":      "Hospedagem",
		"query":        "Consulta",
	},
}

// NewSchema returns a built-in schema. The default locale keeps the keys.
func NewSchema(locale string) (Schema, error) {
	if locale == "" || strings.EqualFold(locale, LocaleDefault) {
		return Schema{Locale: LocaleDefault, names: map[string]string{}}, nil
	}
	for name, names := range builtin {
		if strings.EqualFold(name, locale) {
			copied := make(map[string]string, len(names))
			for k, v := range names {
				copied[k] = v
			}
			return Schema{Locale: name, names: copied}, nil
		}
	}
	return Schema{}, fmt.Errorf("unknown column locale %q", locale)
}

// schemaFile is the YAML shape of a column names override.
//
//	locale: pt-BR
//	columns:
//	  ip: Endereco
type schemaFile struct {
	Locale  string            `yaml:"locale"`
	Columns map[string]string `yaml:"columns"`
}

// LoadSchema reads a YAML override. Its columns replace the display names of
// the locale it names, or of fallback when it names none.
func LoadSchema(path, fallback string) (Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Schema{}, fmt.Errorf("failed to read column names file %s: %w", path, err)
	}
	var f schemaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return Schema{}, fmt.Errorf("failed to parse column names file %s: %w", path, err)
	}
	locale := f.Locale
	if locale == "" {
		locale = fallback
	}
	s, err := NewSchema(locale)
	if err != nil {
		return Schema{}, err
	}
	known := make(map[string]bool, len(domain.Columns))
	for _, c := range domain.Columns {
		known[c] = true
	}
	for key, name := range f.Columns {
		if !known[key] {
			return Schema{}, fmt.Errorf("column names file %s: unknown column %q", path, key)
		}
		if strings.TrimSpace(name) == "" {
			return Schema{}, fmt.Errorf("column names file %s: empty name for %q", path, key)
		}
		s.names[key] = name
	}
	return s, nil
}

// Name returns the display name of key.
func (s Schema) Name(key string) string {
	if n, ok := s.names[key]; ok {
		return n
	}
	return key
}

// Header returns the display names of domain.Columns, in order.
func (s Schema) Header() []string {
	out := make([]string, len(domain.Columns))
	for i, c := range domain.Columns {
		out[i] = s.Name(c)
	}
	return out
}
