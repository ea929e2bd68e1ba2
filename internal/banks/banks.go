// Package banks holds the bank profiles the simulator can impersonate.
// The built-in catalogue can be extended or overridden from a YAML file.
package banks

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"

	"pangalink/entity"
)

var ErrUnknownBank = errors.New("unknown bank")

// Registry is a read-only set of bank profiles keyed by bank key.
type Registry struct {
	banks map[string]*entity.Bank
}

type catalogue struct {
	Banks []entity.Bank `yaml:"banks" json:"banks"`
}

// Default returns the built-in catalogue.
func Default() *Registry {
	r := &Registry{banks: make(map[string]*entity.Bank)}
	for _, bank := range builtin() {
		b := bank
		r.banks[b.Key] = &b
	}
	return r
}

// Load reads bank profiles from path on top of the built-in catalogue.
// A profile with an existing key replaces the built-in one.
func Load(path string) (*Registry, error) {
	r := Default()
	if path == "" {
		return r, nil
	}
	var c catalogue
	if err := cleanenv.ReadConfig(path, &c); err != nil {
		return nil, fmt.Errorf("read banks %s: %w", path, err)
	}
	for i := range c.Banks {
		bank := c.Banks[i]
		bank.Key = strings.ToLower(strings.TrimSpace(bank.Key))
		if err := check(&bank); err != nil {
			return nil, err
		}
		r.banks[bank.Key] = &bank
	}
	return r, nil
}

func check(bank *entity.Bank) error {
	if bank.Key == "" {
		return errors.New("bank profile without key")
	}
	switch bank.Type {
	case entity.FamilyIPizza, entity.FamilySolo, entity.FamilyAAB, entity.FamilySamlink, entity.FamilyEC:
	default:
		return fmt.Errorf("bank %s: unsupported type %q", bank.Key, bank.Type)
	}
	if bank.DefaultCharset == "" {
		return fmt.Errorf("bank %s: default charset is not set", bank.Key)
	}
	return nil
}

// Get looks a profile up by key, case-insensitively.
func (r *Registry) Get(key string) (*entity.Bank, error) {
	bank, ok := r.banks[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBank, key)
	}
	return bank, nil
}

// List returns every profile sorted by key.
func (r *Registry) List() []*entity.Bank {
	list := make([]*entity.Bank, 0, len(r.banks))
	for _, bank := range r.banks {
		list = append(list, bank)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i].Key < list[j].Key
	})
	return list
}
