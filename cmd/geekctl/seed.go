package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ashureev/geek-intake/internal/domain"
	"github.com/ashureev/geek-intake/internal/store"
)

// fixture is the YAML seed file layout.
type fixture struct {
	Categories    []domain.Category    `yaml:"categories"`
	Subcategories []domain.Subcategory `yaml:"subcategories"`
	Brands        []domain.Brand       `yaml:"brands"`
	Providers     []domain.Provider    `yaml:"providers"`
	Users         []domain.User        `yaml:"users"`
}

type seedCounts struct {
	categories, subcategories, brands, providers, users int
}

func loadFixture(r io.Reader) (*fixture, error) {
	var f fixture
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("decode fixture: %w", err)
	}
	return &f, nil
}

// seed upserts everything in f. Categories go first so subcategories and
// brands can refer to them.
func seed(ctx context.Context, s store.Repository, f *fixture) (seedCounts, error) {
	var n seedCounts
	for i := range f.Categories {
		if err := s.UpsertCategory(ctx, &f.Categories[i]); err != nil {
			return n, fmt.Errorf("category %q: %w", f.Categories[i].Slug, err)
		}
		n.categories++
	}
	for i := range f.Subcategories {
		if err := s.UpsertSubcategory(ctx, &f.Subcategories[i]); err != nil {
			return n, fmt.Errorf("subcategory %q: %w", f.Subcategories[i].Slug, err)
		}
		n.subcategories++
	}
	for i := range f.Brands {
		if err := s.UpsertBrand(ctx, &f.Brands[i]); err != nil {
			return n, fmt.Errorf("brand %q: %w", f.Brands[i].Slug, err)
		}
		n.brands++
	}
	for i := range f.Providers {
		if err := s.UpsertProvider(ctx, &f.Providers[i]); err != nil {
			return n, fmt.Errorf("provider %q: %w", f.Providers[i].ID, err)
		}
		n.providers++
	}
	for i := range f.Users {
		if err := s.UpsertUser(ctx, &f.Users[i]); err != nil {
			return n, fmt.Errorf("user %q: %w", f.Users[i].ID, err)
		}
		n.users++
	}
	return n, nil
}

func newSeedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed FILE.yaml",
		Short: "Load categories, brands, providers and users from a YAML fixture",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()

			f, err := loadFixture(file)
			if err != nil {
				return err
			}

			s, err := openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := seed(cmd.Context(), s, f)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "seeded %d categories, %d subcategories, %d brands, %d providers, %d users\n",
				n.categories, n.subcategories, n.brands, n.providers, n.users)
			return nil
		},
	}
}
