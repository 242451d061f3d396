package report

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/zombor/petty-cash/internal/ledger"
)

type storeSeed struct {
	Stores []struct {
		Name       string `yaml:"name"`
		Manager    string `yaml:"manager"`
		TaxID      string `yaml:"tax_id"`
		PixKey     string `yaml:"pix_key"`
		Department string `yaml:"department"`
		FixedFund  string `yaml:"fixed_fund"`
	} `yaml:"stores"`
}

// ParseStoreSeed reads a YAML list of stores. Funds may be written as
// "500", "500.00" or "R$ 1.500,00".
func ParseStoreSeed(data []byte) ([]Store, error) {
	var seed storeSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("parsing store seed: %w", err)
	}

	stores := make([]Store, 0, len(seed.Stores))
	for _, s := range seed.Stores {
		stores = append(stores, Store{
			Name:       s.Name,
			Manager:    s.Manager,
			TaxID:      s.TaxID,
			PixKey:     s.PixKey,
			Department: s.Department,
			FixedFund:  ledger.ParseMoney(s.FixedFund),
		})
	}
	return stores, nil
}

// LoadStoreSeed reads the stores seed file at path
func LoadStoreSeed(path string) ([]Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading store seed: %w", err)
	}
	return ParseStoreSeed(data)
}
