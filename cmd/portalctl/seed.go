package main

import (
	"fmt"
	"net/mail"
	"os"
	"strings"

	"github.com/jobboard/campaign-portal/internal/repositories"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Tenants []seedTenant `yaml:"tenants"`
}

type seedTenant struct {
	Slug     string       `yaml:"slug"`
	Name     string       `yaml:"name"`
	Domain   string       `yaml:"domain"`
	CSUsers  []seedPerson `yaml:"cs_users"`
	Agencies []seedPerson `yaml:"agencies"`
}

type seedPerson struct {
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}

func parseSeed(data []byte) (*seedFile, error) {
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	if len(f.Tenants) == 0 {
		return nil, fmt.Errorf("seed file has no tenants")
	}

	for i := range f.Tenants {
		t := &f.Tenants[i]
		t.Slug = strings.ToLower(strings.TrimSpace(t.Slug))
		t.Domain = strings.ToLower(strings.TrimSpace(t.Domain))
		if t.Slug == "" || t.Domain == "" || t.Name == "" {
			return nil, fmt.Errorf("tenant %d: slug, name and domain are required", i+1)
		}
		for _, list := range [][]seedPerson{t.CSUsers, t.Agencies} {
			for j := range list {
				addr, err := mail.ParseAddress(list[j].Email)
				if err != nil {
					return nil, fmt.Errorf("tenant %s: invalid email %q", t.Slug, list[j].Email)
				}
				list[j].Email = strings.ToLower(addr.Address)
				if list[j].Name == "" {
					list[j].Name = list[j].Email
				}
			}
		}
	}
	return &f, nil
}

var seedCmd = &cobra.Command{
	Use:   "seed <file.yaml>",
	Short: "Create or update tenants, cs users and agencies",
	Args:  cobra.ExactArgs(1),
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	f, err := parseSeed(data)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	e, cleanup, err := connect(ctx, false)
	if err != nil {
		return err
	}
	defer cleanup()

	tenants := repositories.NewTenantRepo(e.pool)
	users := repositories.NewUserRepo(e.pool)
	agencies := repositories.NewAgencyRepo(e.pool)

	for _, st := range f.Tenants {
		t, err := tenants.Upsert(ctx, st.Slug, st.Name, st.Domain)
		if err != nil {
			return fmt.Errorf("upsert tenant %s: %w", st.Slug, err)
		}
		for _, u := range st.CSUsers {
			if _, err := users.Upsert(ctx, t.ID, u.Email, u.Name); err != nil {
				return fmt.Errorf("upsert cs user %s: %w", u.Email, err)
			}
		}
		for _, a := range st.Agencies {
			if _, err := agencies.Upsert(ctx, t.ID, a.Name, a.Email); err != nil {
				return fmt.Errorf("upsert agency %s: %w", a.Email, err)
			}
		}
		e.log.Info("tenant seeded",
			zap.String("slug", t.Slug),
			zap.Int("cs_users", len(st.CSUsers)),
			zap.Int("agencies", len(st.Agencies)))
	}
	return nil
}
