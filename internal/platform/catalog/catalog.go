// Package catalog loads the hospital's master data (suppliers, charges and
// the medicine formulary) from a YAML file.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

type Supplier struct {
	Name          string `yaml:"name"`
	ContactPerson string `yaml:"contact_person"`
	Phone         string `yaml:"phone"`
	Email         string `yaml:"email"`
	Address       string `yaml:"address"`
	GSTIN         string `yaml:"gstin"`
}

type Charge struct {
	Code     string  `yaml:"code"`
	Name     string  `yaml:"name"`
	Category string  `yaml:"category"`
	Amount   float64 `yaml:"amount"`
}

// Medicine is a formulary entry. OpeningStock, when set, is booked as a
// stock-in from Supplier.
type Medicine struct {
	Name         string  `yaml:"name"`
	GenericName  string  `yaml:"generic_name"`
	Form         string  `yaml:"form"`
	Strength     string  `yaml:"strength"`
	Unit         string  `yaml:"unit"`
	UnitPrice    float64 `yaml:"unit_price"`
	ReorderLevel int     `yaml:"reorder_level"`
	OpeningStock float64 `yaml:"opening_stock"`
	Supplier     string  `yaml:"supplier"`
}

// Key identifies a medicine the way the formulary does: name plus strength.
func (m Medicine) Key() string {
	return strings.ToLower(strings.TrimSpace(m.Name) + "|" + strings.TrimSpace(m.Strength))
}

type File struct {
	Suppliers []Supplier `yaml:"suppliers"`
	Charges   []Charge   `yaml:"charges"`
	Medicines []Medicine `yaml:"medicines"`
}

// Parse decodes and checks a catalog. Unknown keys are rejected so typos
// do not silently drop data.
func Parse(r io.Reader) (*File, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f File
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("catalog is empty")
		}
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	if err := f.check(); err != nil {
		return nil, err
	}
	return &f, nil
}

func Load(path string) (*File, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return Parse(fh)
}

func (f *File) check() error {
	suppliers := make(map[string]bool)
	for i, s := range f.Suppliers {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" {
			return fmt.Errorf("suppliers[%d]: name is required", i)
		}
		if suppliers[name] {
			return fmt.Errorf("suppliers[%d]: duplicate supplier %q", i, s.Name)
		}
		suppliers[name] = true
	}

	codes := make(map[string]bool)
	for i, c := range f.Charges {
		code := strings.ToUpper(strings.TrimSpace(c.Code))
		if code == "" || strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("charges[%d]: code and name are required", i)
		}
		if codes[code] {
			return fmt.Errorf("charges[%d]: duplicate code %q", i, c.Code)
		}
		codes[code] = true
	}

	medicines := make(map[string]bool)
	for i, m := range f.Medicines {
		if strings.TrimSpace(m.Name) == "" {
			return fmt.Errorf("medicines[%d]: name is required", i)
		}
		if medicines[m.Key()] {
			return fmt.Errorf("medicines[%d]: duplicate medicine %q %q", i, m.Name, m.Strength)
		}
		medicines[m.Key()] = true
		if m.OpeningStock < 0 {
			return fmt.Errorf("medicines[%d]: opening_stock must not be negative", i)
		}
		if m.Supplier != "" && !suppliers[strings.ToLower(strings.TrimSpace(m.Supplier))] {
			return fmt.Errorf("medicines[%d]: supplier %q is not listed under suppliers", i, m.Supplier)
		}
	}
	return nil
}

// Store persists catalog entries. Each Add reports false when the entry
// already exists and was left untouched.
type Store interface {
	AddSupplier(ctx context.Context, s Supplier) (bool, error)
	AddCharge(ctx context.Context, c Charge) (bool, error)
	AddMedicine(ctx context.Context, m Medicine) (bool, error)
}

type Counts struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

func (c *Counts) add(created bool) {
	if created {
		c.Created++
	} else {
		c.Skipped++
	}
}

type Result struct {
	Suppliers Counts `json:"suppliers"`
	Charges   Counts `json:"charges"`
	Medicines Counts `json:"medicines"`
}

// Import writes suppliers first so medicines can reference them. It stops
// at the first error; entries written before it stay.
func Import(ctx context.Context, store Store, f *File, logger zerolog.Logger) (*Result, error) {
	res := &Result{}
	for _, s := range f.Suppliers {
		created, err := store.AddSupplier(ctx, s)
		if err != nil {
			return res, fmt.Errorf("supplier %q: %w", s.Name, err)
		}
		res.Suppliers.add(created)
	}
	for _, c := range f.Charges {
		created, err := store.AddCharge(ctx, c)
		if err != nil {
			return res, fmt.Errorf("charge %q: %w", c.Code, err)
		}
		res.Charges.add(created)
	}
	for _, m := range f.Medicines {
		created, err := store.AddMedicine(ctx, m)
		if err != nil {
			return res, fmt.Errorf("medicine %q: %w", strings.TrimSpace(m.Name+" "+m.Strength), err)
		}
		res.Medicines.add(created)
	}
	logger.Info().
		Int("suppliers", res.Suppliers.Created).
		Int("charges", res.Charges.Created).
		Int("medicines", res.Medicines.Created).
		Int("skipped", res.Suppliers.Skipped+res.Charges.Skipped+res.Medicines.Skipped).
		Msg("catalog imported")
	return res, nil
}
