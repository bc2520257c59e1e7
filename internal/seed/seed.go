// Package seed loads a starting catalog and staff roster from JSON. Catalog
// and employee maintenance have no HTTP surface, so a fresh deployment gets
// its data here.
package seed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ariefcatur/go-pos-ledger/internal/ledger"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Item struct {
	Name  string          `json:"name" validate:"required,max=128"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock" validate:"gte=0,lte=2147483647"`
}

type Employee struct {
	Username      string          `json:"username" validate:"required,min=3,max=64"`
	Password      string          `json:"password" validate:"required,min=4,max=72"`
	Role          string          `json:"role" validate:"omitempty,oneof=cashier manager admin"`
	WeeklyPayment decimal.Decimal `json:"weekly_payment"`
}

type Seed struct {
	Items     []Item     `json:"items" validate:"dive"`
	Employees []Employee `json:"employees" validate:"dive"`
}

// Catalog is the write side of a ledger store used only for seeding.
type Catalog interface {
	Items(ctx context.Context) ([]ledger.MenuItem, error)
	CreateItem(ctx context.Context, name string, price decimal.Decimal, stock int) (int64, error)
	CreateEmployee(ctx context.Context, userID int64, weekly decimal.Decimal) (int64, error)
}

// Registrar creates a login and returns its user id. auth.Authority.Register
// satisfies it.
type Registrar func(ctx context.Context, username, password, role string) (int64, error)

// Read decodes and validates a seed document.
func Read(r io.Reader) (Seed, error) {
	var s Seed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}
	if err := validator.New().Struct(s); err != nil {
		return Seed{}, fmt.Errorf("validate seed: %w", err)
	}
	for _, it := range s.Items {
		if it.Price.IsNegative() {
			return Seed{}, fmt.Errorf("validate seed: item %q has negative price", it.Name)
		}
	}
	for _, e := range s.Employees {
		if e.WeeklyPayment.IsNegative() {
			return Seed{}, fmt.Errorf("validate seed: employee %q has negative weekly payment", e.Username)
		}
	}
	return s, nil
}

// ReadFile is Read on a path.
func ReadFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return Seed{}, err
	}
	defer f.Close()
	return Read(f)
}

// Result counts what Apply created.
type Result struct {
	Items     int
	Employees int
}

// Apply writes s into the store. Items are only created into an empty
// catalog, and employees whose username is taken are skipped, so applying
// the same seed on every start is safe.
func Apply(ctx context.Context, cat Catalog, register Registrar, s Seed, log logrus.FieldLogger) (Result, error) {
	var res Result

	existing, err := cat.Items(ctx)
	if err != nil {
		return res, fmt.Errorf("list items: %w", err)
	}
	if len(existing) == 0 {
		for _, it := range s.Items {
			if _, err := cat.CreateItem(ctx, it.Name, it.Price, it.Stock); err != nil {
				return res, fmt.Errorf("create item %q: %w", it.Name, err)
			}
			res.Items++
		}
	} else if len(s.Items) > 0 {
		log.WithField("existing", len(existing)).Info("catalog not empty, seed items skipped")
	}

	for _, e := range s.Employees {
		uid, err := register(ctx, e.Username, e.Password, e.Role)
		if errors.Is(err, ledger.ErrUserExists) {
			log.WithField("username", e.Username).Info("user exists, seed employee skipped")
			continue
		}
		if err != nil {
			return res, fmt.Errorf("register %q: %w", e.Username, err)
		}
		if _, err := cat.CreateEmployee(ctx, uid, e.WeeklyPayment); err != nil {
			return res, fmt.Errorf("create employee %q: %w", e.Username, err)
		}
		res.Employees++
	}
	return res, nil
}
