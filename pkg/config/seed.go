package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meridianhq/aegis/pkg/directory"
)

// Seed describes groups and users to provision at startup. Applying a
// seed is idempotent: entries that already exist are skipped.
type Seed struct {
	Groups []SeedGroup `yaml:"groups"`
	Users  []SeedUser  `yaml:"users"`
}

// SeedGroup mirrors directory.CreateGroupRequest in YAML form.
type SeedGroup struct {
	ID          string     `yaml:"id"`
	Name        string     `yaml:"name"`
	Description string     `yaml:"description"`
	Permissions []string   `yaml:"permissions"`
	AutoAssign  bool       `yaml:"auto_assign"`
	Rules       []SeedRule `yaml:"rules"`
}

// SeedRule mirrors directory.Rule in YAML form.
type SeedRule struct {
	Field string `yaml:"field"`
	Op    string `yaml:"op"`
	Value string `yaml:"value"`
}

// SeedUser provisions an initial account, keyed by email.
type SeedUser struct {
	Email          string `yaml:"email"`
	FullName       string `yaml:"full_name"`
	Role           string `yaml:"role"`
	Tier           string `yaml:"tier"`
	SessionTimeout string `yaml:"session_timeout"`
}

// ParseSeed decodes a YAML seed document.
func ParseSeed(data []byte) (*Seed, error) {
	var s Seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i, g := range s.Groups {
		if g.ID == "" {
			return nil, fmt.Errorf("seed group %d: id is required", i)
		}
		if g.Name == "" {
			return nil, fmt.Errorf("seed group %q: name is required", g.ID)
		}
	}
	for i, u := range s.Users {
		if u.Email == "" {
			return nil, fmt.Errorf("seed user %d: email is required", i)
		}
	}
	return &s, nil
}

// LoadSeed reads and parses a seed file.
func LoadSeed(path string) (*Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(data)
}

// Seeder is the engine surface seed application needs.
type Seeder interface {
	GetGroup(id string) (*directory.Group, bool)
	CreateGroup(ctx context.Context, req directory.CreateGroupRequest) (*directory.Group, error)
	GetUsers(filter directory.ListFilter) directory.ListResult
	CreateUser(ctx context.Context, req directory.CreateUserRequest) (*directory.User, error)
}

// Apply provisions the seed's groups and users, skipping any that
// already exist. It returns how many records were created.
func (s *Seed) Apply(ctx context.Context, target Seeder) (int, error) {
	created := 0
	for _, g := range s.Groups {
		if _, exists := target.GetGroup(g.ID); exists {
			continue
		}
		rules := make([]directory.Rule, len(g.Rules))
		for i, r := range g.Rules {
			rules[i] = directory.Rule{
				Field: directory.RuleField(r.Field),
				Op:    directory.RuleOp(r.Op),
				Value: r.Value,
			}
		}
		_, err := target.CreateGroup(ctx, directory.CreateGroupRequest{
			ID:          g.ID,
			Name:        g.Name,
			Description: g.Description,
			Permissions: g.Permissions,
			AutoAssign:  g.AutoAssign,
			Rules:       rules,
		})
		if err != nil {
			return created, fmt.Errorf("seed group %q: %w", g.ID, err)
		}
		created++
	}

	for _, u := range s.Users {
		// Search is a substring match over email and name; require an
		// exact email hit before skipping.
		existing := target.GetUsers(directory.ListFilter{Search: u.Email})
		if seedUserExists(existing.Users, u.Email) {
			continue
		}
		var timeout time.Duration
		if u.SessionTimeout != "" {
			d, err := time.ParseDuration(u.SessionTimeout)
			if err != nil {
				return created, fmt.Errorf("seed user %q: bad session timeout: %w", u.Email, err)
			}
			timeout = d
		}
		_, err := target.CreateUser(ctx, directory.CreateUserRequest{
			Email:          u.Email,
			FullName:       u.FullName,
			Role:           directory.Role(u.Role),
			Tier:           directory.SubscriptionTier(u.Tier),
			SessionTimeout: timeout,
		})
		if err != nil {
			return created, fmt.Errorf("seed user %q: %w", u.Email, err)
		}
		created++
	}
	return created, nil
}

func seedUserExists(users []*directory.User, email string) bool {
	for _, u := range users {
		if strings.EqualFold(u.Email, email) {
			return true
		}
	}
	return false
}
