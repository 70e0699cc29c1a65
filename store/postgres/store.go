// Package postgres provides a PostgreSQL implementation of the Bastion
// composite store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a PostgreSQL implementation of the composite Bastion store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("bastion: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("bastion: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// classify maps driver errors onto the store sentinels.
func classify(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("bastion: %s: %w", op, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("bastion: %s: %s: %w", op, pgErr.ConstraintName, store.ErrConflict)
	}
	return fmt.Errorf("bastion: %s: %w", op, err)
}

type rowsAffected interface {
	RowsAffected() (int64, error)
}

// mustAffect turns a zero-row update or delete into ErrNotFound.
func mustAffect(op string, res rowsAffected) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("bastion: %s rows: %w", op, err)
	}
	if n == 0 {
		return fmt.Errorf("bastion: %s: %w", op, store.ErrNotFound)
	}
	return nil
}

func idStrings(ids []id.RoleID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	if _, err := s.pgdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		return classify("create role", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	m := new(roleModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", roleID.String()).Scan(ctx); err != nil {
		return nil, classify("get role "+roleID.String(), err)
	}
	return roleFromModel(m), nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*role.Role, error) {
	m := new(roleModel)
	if err := s.pgdb.NewSelect(m).Where("name = ?", name).Scan(ctx); err != nil {
		return nil, classify("get role by name", err)
	}
	return roleFromModel(m), nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	res, err := s.pgdb.NewUpdate(roleToModel(r)).WherePK().Exec(ctx)
	if err != nil {
		return classify("update role", err)
	}
	return mustAffect("update role", res)
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	res, err := s.pgdb.NewDelete((*roleModel)(nil)).
		Where("id = ?", roleID.String()).Exec(ctx)
	if err != nil {
		return classify("delete role", err)
	}
	return mustAffect("delete role", res)
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.Type != "" {
			q = q.Where("role_type = ?", string(filter.Type))
		}
		if filter.OrganizationID != "" {
			q = q.Where("organization_id = ?", filter.OrganizationID)
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if filter.ParentID != nil {
			q = q.Where("parent_id = ?", filter.ParentID.String())
		}
		if filter.Search != "" {
			q = q.Where("(name ILIKE ? OR display_name ILIKE ?)", "%"+filter.Search+"%", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list roles", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountRoles(ctx context.Context, filter *role.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*roleModel)(nil))
	if filter != nil {
		if filter.Type != "" {
			q = q.Where("role_type = ?", string(filter.Type))
		}
		if filter.OrganizationID != "" {
			q = q.Where("organization_id = ?", filter.OrganizationID)
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.IsActive != nil {
			q = q.Where("is_active = ?", *filter.IsActive)
		}
		if filter.ParentID != nil {
			q = q.Where("parent_id = ?", filter.ParentID.String())
		}
		if filter.Search != "" {
			q = q.Where("(name ILIKE ? OR display_name ILIKE ?)", "%"+filter.Search+"%", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, classify("count roles", err)
	}
	return count, nil
}

func (s *Store) ListChildRoles(ctx context.Context, parentID id.RoleID) ([]*role.Role, error) {
	var models []roleModel
	err := s.pgdb.NewSelect(&models).
		Where("parent_id = ?", parentID.String()).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify("list child roles", err)
	}
	result := make([]*role.Role, len(models))
	for i := range models {
		result[i] = roleFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Permission operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	if _, err := s.pgdb.NewInsert(permissionToModel(p)).Exec(ctx); err != nil {
		return classify("create permission", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	m := new(permissionModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", permID.String()).Scan(ctx); err != nil {
		return nil, classify("get permission "+permID.String(), err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) GetPermissionByName(ctx context.Context, name string) (*permission.Permission, error) {
	m := new(permissionModel)
	if err := s.pgdb.NewSelect(m).Where("name = ?", name).Scan(ctx); err != nil {
		return nil, classify("get permission by name", err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) GetPermissionFor(ctx context.Context, resourceType permission.ResourceType, action permission.Action) (*permission.Permission, error) {
	m := new(permissionModel)
	err := s.pgdb.NewSelect(m).
		Where("resource_type = ?", string(resourceType)).
		Where("action = ?", string(action)).
		Scan(ctx)
	if err != nil {
		return nil, classify("get permission for "+string(resourceType)+"."+string(action), err)
	}
	return permissionFromModel(m), nil
}

func (s *Store) UpdatePermission(ctx context.Context, p *permission.Permission) error {
	res, err := s.pgdb.NewUpdate(permissionToModel(p)).WherePK().Exec(ctx)
	if err != nil {
		return classify("update permission", err)
	}
	return mustAffect("update permission", res)
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	res, err := s.pgdb.NewDelete((*permissionModel)(nil)).
		Where("id = ?", permID.String()).Exec(ctx)
	if err != nil {
		return classify("delete permission", err)
	}
	return mustAffect("delete permission", res)
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.pgdb.NewSelect(&models).OrderExpr("name ASC")
	if filter != nil {
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", string(filter.ResourceType))
		}
		if filter.Action != "" {
			q = q.Where("action = ?", string(filter.Action))
		}
		if filter.Category != "" {
			q = q.Where("category = ?", filter.Category)
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.Search != "" {
			q = q.Where("name ILIKE ?", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list permissions", err)
	}
	result := make([]*permission.Permission, len(models))
	for i := range models {
		result[i] = permissionFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountPermissions(ctx context.Context, filter *permission.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*permissionModel)(nil))
	if filter != nil {
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", string(filter.ResourceType))
		}
		if filter.Action != "" {
			q = q.Where("action = ?", string(filter.Action))
		}
		if filter.Category != "" {
			q = q.Where("category = ?", filter.Category)
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.Search != "" {
			q = q.Where("name ILIKE ?", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, classify("count permissions", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment) error {
	if _, err := s.pgdb.NewInsert(assignmentToModel(a)).Exec(ctx); err != nil {
		return classify("create assignment", err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	m := new(assignmentModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", assID.String()).Scan(ctx); err != nil {
		return nil, classify("get assignment "+assID.String(), err)
	}
	return assignmentFromModel(m), nil
}

func (s *Store) UpdateAssignment(ctx context.Context, a *assignment.Assignment) error {
	res, err := s.pgdb.NewUpdate(assignmentToModel(a)).WherePK().Exec(ctx)
	if err != nil {
		return classify("update assignment", err)
	}
	return mustAffect("update assignment", res)
}

func (s *Store) DeleteAssignment(ctx context.Context, assID id.AssignmentID) error {
	res, err := s.pgdb.NewDelete((*assignmentModel)(nil)).
		Where("id = ?", assID.String()).Exec(ctx)
	if err != nil {
		return classify("delete assignment", err)
	}
	return mustAffect("delete assignment", res)
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.RoleID != nil {
			q = q.Where("role_id = ?", filter.RoleID.String())
		}
		if filter.ActiveAt != nil {
			q = q.Where("is_active = ?", true).
				Where("(expires_at IS NULL OR expires_at > ?)", *filter.ActiveAt)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list assignments", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAssignments(ctx context.Context, filter *assignment.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*assignmentModel)(nil))
	if filter != nil {
		if filter.UserID != "" {
			q = q.Where("user_id = ?", filter.UserID)
		}
		if filter.RoleID != nil {
			q = q.Where("role_id = ?", filter.RoleID.String())
		}
		if filter.ActiveAt != nil {
			q = q.Where("is_active = ?", true).
				Where("(expires_at IS NULL OR expires_at > ?)", *filter.ActiveAt)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, classify("count assignments", err)
	}
	return count, nil
}

func (s *Store) ListActiveAssignments(ctx context.Context, userID string, asOf time.Time) ([]*assignment.Assignment, error) {
	return s.ListAssignments(ctx, &assignment.ListFilter{UserID: userID, ActiveAt: &asOf})
}

func (s *Store) ListAssignmentsByRoles(ctx context.Context, roleIDs []id.RoleID) ([]*assignment.Assignment, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var models []assignmentModel
	err := s.pgdb.NewSelect(&models).
		Where("role_id = ANY(?)", idStrings(roleIDs)).
		OrderExpr("created_at ASC, id ASC").
		Scan(ctx)
	if err != nil {
		return nil, classify("list assignments by roles", err)
	}
	result := make([]*assignment.Assignment, len(models))
	for i := range models {
		result[i] = assignmentFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteExpiredAssignments(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.pgdb.NewDelete((*assignmentModel)(nil)).
		Where("expires_at IS NOT NULL").
		Where("expires_at <= ?", now).
		Exec(ctx)
	if err != nil {
		return 0, classify("delete expired assignments", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bastion: delete expired assignments rows: %w", err)
	}
	return n, nil
}

// ──────────────────────────────────────────────────
// Grant operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGrant(ctx context.Context, g *grant.Grant) error {
	if _, err := s.pgdb.NewInsert(grantToModel(g)).Exec(ctx); err != nil {
		return classify("create grant", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	m := new(grantModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", grantID.String()).Scan(ctx); err != nil {
		return nil, classify("get grant "+grantID.String(), err)
	}
	return grantFromModel(m), nil
}

func (s *Store) UpdateGrant(ctx context.Context, g *grant.Grant) error {
	res, err := s.pgdb.NewUpdate(grantToModel(g)).WherePK().Exec(ctx)
	if err != nil {
		return classify("update grant", err)
	}
	return mustAffect("update grant", res)
}

func (s *Store) DeleteGrant(ctx context.Context, grantID id.GrantID) error {
	res, err := s.pgdb.NewDelete((*grantModel)(nil)).
		Where("id = ?", grantID.String()).Exec(ctx)
	if err != nil {
		return classify("delete grant", err)
	}
	return mustAffect("delete grant", res)
}

func (s *Store) ListGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.RoleID != nil {
			q = q.Where("role_id = ?", filter.RoleID.String())
		}
		if filter.PermissionID != nil {
			q = q.Where("permission_id = ?", filter.PermissionID.String())
		}
		if filter.Scope != "" {
			q = q.Where("scope = ?", string(filter.Scope))
		}
		if filter.ActiveAt != nil {
			q = q.Where("(expires_at IS NULL OR expires_at > ?)", *filter.ActiveAt)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list grants", err)
	}
	result := make([]*grant.Grant, len(models))
	for i := range models {
		result[i] = grantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*grantModel)(nil))
	if filter != nil {
		if filter.RoleID != nil {
			q = q.Where("role_id = ?", filter.RoleID.String())
		}
		if filter.PermissionID != nil {
			q = q.Where("permission_id = ?", filter.PermissionID.String())
		}
		if filter.Scope != "" {
			q = q.Where("scope = ?", string(filter.Scope))
		}
		if filter.ActiveAt != nil {
			q = q.Where("(expires_at IS NULL OR expires_at > ?)", *filter.ActiveAt)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, classify("count grants", err)
	}
	return count, nil
}

func (s *Store) ListActiveGrants(ctx context.Context, roleIDs []id.RoleID, permID id.PermissionID, asOf time.Time) ([]*grant.Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	var models []grantModel
	q := s.pgdb.NewSelect(&models).
		Where("role_id = ANY(?)", idStrings(roleIDs)).
		Where("(expires_at IS NULL OR expires_at > ?)", asOf).
		OrderExpr("created_at ASC, id ASC")
	if !permID.IsNil() {
		q = q.Where("permission_id = ?", permID.String())
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list active grants", err)
	}
	result := make([]*grant.Grant, len(models))
	for i := range models {
		result[i] = grantFromModel(&models[i])
	}
	return result, nil
}

// ──────────────────────────────────────────────────
// Override operations
// ──────────────────────────────────────────────────

func (s *Store) CreateOverride(ctx context.Context, o *override.Override) error {
	if _, err := s.pgdb.NewInsert(overrideToModel(o)).Exec(ctx); err != nil {
		return classify("create override", err)
	}
	return nil
}

func (s *Store) GetOverride(ctx context.Context, ovrID id.OverrideID) (*override.Override, error) {
	m := new(overrideModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", ovrID.String()).Scan(ctx); err != nil {
		return nil, classify("get override "+ovrID.String(), err)
	}
	return overrideFromModel(m), nil
}

func (s *Store) UpdateOverride(ctx context.Context, o *override.Override) error {
	res, err := s.pgdb.NewUpdate(overrideToModel(o)).WherePK().Exec(ctx)
	if err != nil {
		return classify("update override", err)
	}
	return mustAffect("update override", res)
}

func (s *Store) DeleteOverride(ctx context.Context, ovrID id.OverrideID) error {
	res, err := s.pgdb.NewDelete((*overrideModel)(nil)).
		Where("id = ?", ovrID.String()).Exec(ctx)
	if err != nil {
		return classify("delete override", err)
	}
	return mustAffect("delete override", res)
}

func (s *Store) ListOverrides(ctx context.Context, filter *override.ListFilter) ([]*override.Override, error) {
	var models []overrideModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC, id ASC")
	if filter != nil {
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", string(filter.ResourceType))
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.PermissionID != nil {
			q = q.Where("permission_id = ?", filter.PermissionID.String())
		}
		if filter.SubjectType != "" {
			q = q.Where("subject_type = ?", string(filter.SubjectType))
		}
		if filter.SubjectID != "" {
			q = q.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.ActiveAt != nil {
			q = q.Where("(expires_at IS NULL OR expires_at > ?)", *filter.ActiveAt)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list overrides", err)
	}
	result := make([]*override.Override, len(models))
	for i := range models {
		result[i] = overrideFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountOverrides(ctx context.Context, filter *override.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*overrideModel)(nil))
	if filter != nil {
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", string(filter.ResourceType))
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.PermissionID != nil {
			q = q.Where("permission_id = ?", filter.PermissionID.String())
		}
		if filter.SubjectType != "" {
			q = q.Where("subject_type = ?", string(filter.SubjectType))
		}
		if filter.SubjectID != "" {
			q = q.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.ActiveAt != nil {
			q = q.Where("(expires_at IS NULL OR expires_at > ?)", *filter.ActiveAt)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, classify("count overrides", err)
	}
	return count, nil
}

func (s *Store) ListActiveOverrides(ctx context.Context, resourceType permission.ResourceType, resourceID string, permID id.PermissionID, asOf time.Time) ([]*override.Override, error) {
	return s.ListOverrides(ctx, &override.ListFilter{
		ResourceType: resourceType,
		ResourceID:   resourceID,
		PermissionID: &permID,
		ActiveAt:     &asOf,
	})
}

// ──────────────────────────────────────────────────
// Audit operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAuditEntry(ctx context.Context, e *audit.Entry) error {
	if _, err := s.pgdb.NewInsert(auditToModel(e)).Exec(ctx); err != nil {
		return classify("create audit entry", err)
	}
	return nil
}

func (s *Store) GetAuditEntry(ctx context.Context, entryID id.AuditID) (*audit.Entry, error) {
	m := new(auditModel)
	if err := s.pgdb.NewSelect(m).Where("id = ?", entryID.String()).Scan(ctx); err != nil {
		return nil, classify("get audit entry "+entryID.String(), err)
	}
	return auditFromModel(m), nil
}

func (s *Store) ListAuditEntries(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at DESC, id DESC")
	if filter != nil {
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		if filter.SubjectType != "" {
			q = q.Where("subject_type = ?", filter.SubjectType)
		}
		if filter.SubjectID != "" {
			q = q.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.Success != nil {
			q = q.Where("success = ?", *filter.Success)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, classify("list audit entries", err)
	}
	result := make([]*audit.Entry, len(models))
	for i := range models {
		result[i] = auditFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountAuditEntries(ctx context.Context, filter *audit.QueryFilter) (int64, error) {
	q := s.pgdb.NewSelect((*auditModel)(nil))
	if filter != nil {
		if filter.Action != "" {
			q = q.Where("action = ?", filter.Action)
		}
		if filter.SubjectType != "" {
			q = q.Where("subject_type = ?", filter.SubjectType)
		}
		if filter.SubjectID != "" {
			q = q.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.Success != nil {
			q = q.Where("success = ?", *filter.Success)
		}
		if filter.After != nil {
			q = q.Where("created_at > ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at < ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, classify("count audit entries", err)
	}
	return count, nil
}

func (s *Store) PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pgdb.NewDelete((*auditModel)(nil)).
		Where("created_at < ?", before).
		Exec(ctx)
	if err != nil {
		return 0, classify("purge audit entries", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("bastion: purge audit entries rows: %w", err)
	}
	return n, nil
}
