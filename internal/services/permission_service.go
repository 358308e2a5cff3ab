package services

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"

	"github.com/Wikid82/warden/internal/store"
)

//go:embed rbac_model.conf
var rbacModel string

//go:embed rbac_policy.csv
var rbacPolicy string

var (
	ErrUserNotFound = errors.New("user not found")
	ErrUserDisabled = errors.New("user disabled")
)

// ownSuffix marks a capability limited to the actor's own records.
const ownSuffix = ":own"

// PermissionService answers role-based permission questions from a fixed
// role table.
type PermissionService struct {
	users    store.UserRepository
	enforcer *casbin.SyncedEnforcer
}

func NewPermissionService(users store.UserRepository) (*PermissionService, error) {
	m, err := model.NewModelFromString(rbacModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load rbac model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, fmt.Errorf("failed to create rbac enforcer: %w", err)
	}
	if err := loadPolicy(enforcer, rbacPolicy); err != nil {
		return nil, err
	}
	return &PermissionService{users: users, enforcer: enforcer}, nil
}

func loadPolicy(enforcer *casbin.SyncedEnforcer, policy string) error {
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		if len(parts) != 4 || parts[0] != "p" {
			return fmt.Errorf("malformed rbac policy line: %q", line)
		}
		if _, err := enforcer.AddPolicy(parts[1], parts[2], parts[3]); err != nil {
			return fmt.Errorf("failed to add policy %v: %w", parts[1:], err)
		}
	}
	return nil
}

// GetUserRole returns the role of an enabled user.
func (s *PermissionService) GetUserRole(ctx context.Context, actorID string) (string, error) {
	u, err := s.users.GetByUUID(ctx, actorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("lookup user: %w", err)
	}
	if !u.Enabled {
		return "", ErrUserDisabled
	}
	return u.Role, nil
}

// HasPermission reports whether actorID may perform action on resource.
// Unknown or disabled actors have no permissions.
func (s *PermissionService) HasPermission(ctx context.Context, actorID, resource, action string) (bool, error) {
	role, err := s.GetUserRole(ctx, actorID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrUserDisabled) {
			return false, nil
		}
		return false, err
	}
	return s.RoleAllows(role, resource, action)
}

// RoleAllows checks the role table directly. Holding resource:action:own
// grants resource:action.
func (s *PermissionService) RoleAllows(role, resource, action string) (bool, error) {
	if role == "" {
		return false, nil
	}
	ok, err := s.enforcer.Enforce(role, resource, action)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	if ok || strings.HasSuffix(action, ownSuffix) {
		return ok, nil
	}
	ok, err = s.enforcer.Enforce(role, resource, action+ownSuffix)
	if err != nil {
		return false, fmt.Errorf("enforcement failed: %w", err)
	}
	return ok, nil
}

// Permissions lists "resource:action" capabilities held by role.
func (s *PermissionService) Permissions(role string) ([]string, error) {
	rules, err := s.enforcer.GetFilteredPolicy(0, role)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rules))
	for _, r := range rules {
		if len(r) >= 3 {
			out = append(out, r[1]+":"+r[2])
		}
	}
	return out, nil
}
