package bastion

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"gopkg.in/yaml.v3"

	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

//go:embed catalog/default.yaml
var defaultCatalog []byte

// Catalog is a seed set of permissions and roles. Roles are created in
// order, so a parent must appear before its children.
type Catalog struct {
	// System marks every entry as a system entry that cannot be deleted.
	System      bool                `yaml:"system"`
	Permissions []CatalogPermission `yaml:"permissions"`
	Roles       []CatalogRole       `yaml:"roles"`
}

// CatalogPermission is a permission entry of a Catalog.
type CatalogPermission struct {
	Name         string                  `yaml:"name"`
	ResourceType permission.ResourceType `yaml:"resource_type"`
	Action       permission.Action       `yaml:"action"`
	Description  string                  `yaml:"description"`
	Category     string                  `yaml:"category"`
}

// CatalogRole is a role entry of a Catalog.
type CatalogRole struct {
	Name        string         `yaml:"name"`
	DisplayName string         `yaml:"display_name"`
	Description string         `yaml:"description"`
	Parent      string         `yaml:"parent"`
	Grants      []CatalogGrant `yaml:"grants"`
}

// CatalogGrant is a grant of a CatalogRole. In YAML it is either a bare
// permission name, which grants with scope all, or a mapping.
type CatalogGrant struct {
	Permission string         `yaml:"permission"`
	Scope      grant.Scope    `yaml:"scope"`
	Deny       bool           `yaml:"deny"`
	Conditions map[string]any `yaml:"conditions"`
}

// UnmarshalYAML accepts the bare-name shorthand.
func (g *CatalogGrant) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		g.Permission = node.Value
		return nil
	}
	type plain CatalogGrant
	return node.Decode((*plain)(g))
}

// ParseCatalog decodes a YAML catalog.
func ParseCatalog(r io.Reader) (*Catalog, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var c Catalog
	if err := dec.Decode(&c); err != nil {
		return nil, fmt.Errorf("bastion: parse catalog: %w", err)
	}
	return &c, nil
}

// DefaultCatalog returns the built-in system catalog: the user, project,
// asset, model and system permissions and the super_admin, admin,
// project_manager, content_creator, reviewer and client roles.
func DefaultCatalog() *Catalog {
	c, err := ParseCatalog(bytes.NewReader(defaultCatalog))
	if err != nil {
		panic(err)
	}
	return c
}

// Bootstrap seeds the catalog. It is idempotent: existing permissions and
// roles are kept and only missing grants are added. It then requires an
// active system role with an unconditional system.manage allow, without
// which no other role could be administered.
func (e *Engine) Bootstrap(ctx context.Context, c *Catalog) error {
	if c == nil {
		c = DefaultCatalog()
	}

	perms := make(map[string]*permission.Permission, len(c.Permissions))
	for _, cp := range c.Permissions {
		p, err := e.ensurePermission(ctx, cp, c.System)
		if err != nil {
			return err
		}
		perms[p.Name] = p
	}

	roles := make(map[string]*role.Role, len(c.Roles))
	for _, cr := range c.Roles {
		r, err := e.ensureRole(ctx, cr, c.System, roles)
		if err != nil {
			return err
		}
		roles[r.Name] = r

		for _, cg := range cr.Grants {
			p, ok := perms[cg.Permission]
			if !ok {
				p, err = e.store.GetPermissionByName(ctx, cg.Permission)
				if err != nil {
					return fmt.Errorf("bastion: bootstrap: role %s grant %s: %w", cr.Name, cg.Permission, storeErr(err, ErrPermissionNotFound))
				}
				perms[p.Name] = p
			}
			if err := e.ensureGrant(ctx, r, p, cg); err != nil {
				return fmt.Errorf("bastion: bootstrap: role %s grant %s: %w", cr.Name, cg.Permission, err)
			}
		}
	}

	return e.VerifySuperRole(ctx)
}

// VerifySuperRole returns ErrNoSuperRole unless some active system role
// holds an unconditional, scope all allow on system.manage.
func (e *Engine) VerifySuperRole(ctx context.Context) error {
	p, err := e.store.GetPermissionFor(ctx, permission.ResourceSystem, permission.ActionManage)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoSuperRole
	}
	if err != nil {
		return fmt.Errorf("bastion: verify super role: %w: %w", ErrPersistence, err)
	}
	yes := true
	systemRoles, err := e.store.ListRoles(ctx, &role.ListFilter{IsSystem: &yes, IsActive: &yes})
	if err != nil {
		return fmt.Errorf("bastion: verify super role: %w: %w", ErrPersistence, err)
	}
	if len(systemRoles) == 0 {
		return ErrNoSuperRole
	}
	ids := make([]id.RoleID, 0, len(systemRoles))
	for _, r := range systemRoles {
		ids = append(ids, r.ID)
	}
	grants, err := e.store.ListActiveGrants(ctx, ids, p.ID, e.clock.Now())
	if err != nil {
		return fmt.Errorf("bastion: verify super role: %w: %w", ErrPersistence, err)
	}
	for _, g := range grants {
		if g.IsGranted && g.Scope == grant.ScopeAll && len(g.Conditions) == 0 && g.ExpiresAt == nil {
			return nil
		}
	}
	return ErrNoSuperRole
}

func (e *Engine) ensurePermission(ctx context.Context, cp CatalogPermission, system bool) (*permission.Permission, error) {
	name := cp.Name
	if name == "" {
		name = string(cp.ResourceType) + "." + string(cp.Action)
	}
	p, err := e.store.GetPermissionByName(ctx, name)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("bastion: bootstrap: permission %s: %w: %w", name, ErrPersistence, err)
	}
	category := cp.Category
	if category == "" && system {
		category = "system"
	}
	p, err = e.CreatePermission(ctx, PermissionInput{
		Name:         name,
		Description:  cp.Description,
		ResourceType: cp.ResourceType,
		Action:       cp.Action,
		Category:     category,
		IsSystem:     system,
	})
	if err != nil {
		return nil, fmt.Errorf("bastion: bootstrap: %w", err)
	}
	e.logger.Debug("bastion: seeded permission", slog.String("name", p.Name))
	return p, nil
}

func (e *Engine) ensureRole(ctx context.Context, cr CatalogRole, system bool, seen map[string]*role.Role) (*role.Role, error) {
	r, err := e.store.GetRoleByName(ctx, cr.Name)
	if err == nil {
		return r, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("bastion: bootstrap: role %s: %w: %w", cr.Name, ErrPersistence, err)
	}

	in := RoleInput{
		Name:        cr.Name,
		DisplayName: cr.DisplayName,
		Description: cr.Description,
		Type:        role.TypeCustom,
		IsSystem:    system,
	}
	if system {
		in.Type = role.TypeSystem
	}
	if cr.Parent != "" {
		parent, ok := seen[cr.Parent]
		if !ok {
			parent, err = e.store.GetRoleByName(ctx, cr.Parent)
			if err != nil {
				return nil, fmt.Errorf("bastion: bootstrap: role %s parent %s: %w", cr.Name, cr.Parent, storeErr(err, ErrRoleNotFound))
			}
		}
		pid := parent.ID
		in.ParentID = &pid
	}
	r, err = e.CreateRole(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("bastion: bootstrap: %w", err)
	}
	e.logger.Debug("bastion: seeded role", slog.String("name", r.Name))
	return r, nil
}

// ensureGrant adds the grant unless the role already has an effective
// grant of the permission with the same scope.
func (e *Engine) ensureGrant(ctx context.Context, r *role.Role, p *permission.Permission, cg CatalogGrant) error {
	scope := cg.Scope
	if scope == "" {
		scope = grant.ScopeAll
	}
	current, err := e.store.ListActiveGrants(ctx, []id.RoleID{r.ID}, p.ID, e.clock.Now())
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	for _, g := range current {
		if g.Scope == scope {
			return nil
		}
	}
	_, err = e.GrantPermissionToRole(ctx, GrantInput{
		RoleID:       r.ID,
		PermissionID: p.ID,
		Scope:        scope,
		Conditions:   cg.Conditions,
		IsGranted:    !cg.Deny,
	})
	return err
}
