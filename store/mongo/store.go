// Package mongo provides a MongoDB implementation of the Bastion composite
// store backed by grove's mongo driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/bastion/assignment"
	"github.com/xraph/bastion/audit"
	"github.com/xraph/bastion/grant"
	"github.com/xraph/bastion/id"
	"github.com/xraph/bastion/override"
	"github.com/xraph/bastion/permission"
	"github.com/xraph/bastion/role"
	"github.com/xraph/bastion/store"
)

// Collection name constants.
const (
	colRoles       = "bastion_roles"
	colPermissions = "bastion_permissions"
	colAssignments = "bastion_user_roles"
	colGrants      = "bastion_role_permissions"
	colOverrides   = "bastion_resource_overrides"
	colAuditLog    = "bastion_audit_log"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is a MongoDB implementation of the composite Bastion store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all bastion collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("bastion/mongo: migrate %s indexes: %w", col, err)
		}
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
	if errors.Is(err, mongod.ErrNoDocuments) {
		return fmt.Errorf("bastion: %s: %w", op, store.ErrNotFound)
	}
	if mongod.IsDuplicateKeyError(err) {
		return fmt.Errorf("bastion: %s: %w", op, store.ErrConflict)
	}
	return fmt.Errorf("bastion: %s: %w", op, err)
}

// notExpired matches documents with no expiry or an expiry after t.
func notExpired(t time.Time) bson.A {
	return bson.A{
		bson.M{"expires_at": nil},
		bson.M{"expires_at": bson.M{"$gt": t}},
	}
}

func idStrings(ids []id.RoleID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}

// migrationIndexes returns the index definitions for all bastion collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colRoles: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "parent_id", Value: 1}}},
			{Keys: bson.D{{Key: "organization_id", Value: 1}}},
		},
		colPermissions: {
			{
				Keys:    bson.D{{Key: "name", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{
				Keys:    bson.D{{Key: "resource_type", Value: 1}, {Key: "action", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
		},
		colAssignments: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "is_active", Value: 1}}},
			{Keys: bson.D{{Key: "role_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colGrants: {
			{Keys: bson.D{{Key: "role_id", Value: 1}, {Key: "permission_id", Value: 1}}},
			{Keys: bson.D{{Key: "permission_id", Value: 1}}},
		},
		colOverrides: {
			{Keys: bson.D{{Key: "resource_type", Value: 1}, {Key: "resource_id", Value: 1}, {Key: "permission_id", Value: 1}}},
			{Keys: bson.D{{Key: "subject_type", Value: 1}, {Key: "subject_id", Value: 1}}},
		},
		colAuditLog: {
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "subject_type", Value: 1}, {Key: "subject_id", Value: 1}}},
			{Keys: bson.D{{Key: "action", Value: 1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Role operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRole(ctx context.Context, r *role.Role) error {
	if _, err := s.mdb.NewInsert(roleToModel(r)).Exec(ctx); err != nil {
		return classify("create role", err)
	}
	return nil
}

func (s *Store) GetRole(ctx context.Context, roleID id.RoleID) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": roleID.String()}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get role "+roleID.String(), err)
	}
	return roleFromModel(&m), nil
}

func (s *Store) GetRoleByName(ctx context.Context, name string) (*role.Role, error) {
	var m roleModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"name": name}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get role by name", err)
	}
	return roleFromModel(&m), nil
}

func (s *Store) UpdateRole(ctx context.Context, r *role.Role) error {
	m := roleToModel(r)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return classify("update role", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("role %s: %w", r.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteRole(ctx context.Context, roleID id.RoleID) error {
	res, err := s.mdb.NewDelete((*roleModel)(nil)).
		Filter(bson.M{"_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return classify("delete role", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("role %s: %w", roleID, store.ErrNotFound)
	}
	// No foreign keys in mongo; drop dependent grants and assignments here.
	if _, err := s.mdb.NewDelete((*grantModel)(nil)).
		Many().
		Filter(bson.M{"role_id": roleID.String()}).
		Exec(ctx); err != nil {
		return classify("delete role grants", err)
	}
	if _, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{"role_id": roleID.String()}).
		Exec(ctx); err != nil {
		return classify("delete role assignments", err)
	}
	return nil
}

func roleFilter(filter *role.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Type != "" {
		f["role_type"] = string(filter.Type)
	}
	if filter.OrganizationID != "" {
		f["organization_id"] = filter.OrganizationID
	}
	if filter.IsSystem != nil {
		f["is_system"] = *filter.IsSystem
	}
	if filter.IsActive != nil {
		f["is_active"] = *filter.IsActive
	}
	if filter.ParentID != nil {
		f["parent_id"] = filter.ParentID.String()
	}
	if filter.Search != "" {
		f["$or"] = bson.A{
			bson.M{"name": bson.M{"$regex": filter.Search, "$options": "i"}},
			bson.M{"display_name": bson.M{"$regex": filter.Search, "$options": "i"}},
		}
	}
	return f
}

func (s *Store) ListRoles(ctx context.Context, filter *role.ListFilter) ([]*role.Role, error) {
	var models []roleModel
	q := s.mdb.NewFind(&models).
		Filter(roleFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*roleModel)(nil)).
		Filter(roleFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, classify("count roles", err)
	}
	return count, nil
}

func (s *Store) ListChildRoles(ctx context.Context, parentID id.RoleID) ([]*role.Role, error) {
	pid := parentID
	return s.ListRoles(ctx, &role.ListFilter{ParentID: &pid})
}

// ──────────────────────────────────────────────────
// Permission operations
// ──────────────────────────────────────────────────

func (s *Store) CreatePermission(ctx context.Context, p *permission.Permission) error {
	if _, err := s.mdb.NewInsert(permissionToModel(p)).Exec(ctx); err != nil {
		return classify("create permission", err)
	}
	return nil
}

func (s *Store) GetPermission(ctx context.Context, permID id.PermissionID) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": permID.String()}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get permission "+permID.String(), err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) GetPermissionByName(ctx context.Context, name string) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"name": name}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get permission by name", err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) GetPermissionFor(ctx context.Context, resourceType permission.ResourceType, action permission.Action) (*permission.Permission, error) {
	var m permissionModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"resource_type": string(resourceType), "action": string(action)}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get permission for "+string(resourceType)+"."+string(action), err)
	}
	return permissionFromModel(&m), nil
}

func (s *Store) UpdatePermission(ctx context.Context, p *permission.Permission) error {
	m := permissionToModel(p)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return classify("update permission", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("permission %s: %w", p.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeletePermission(ctx context.Context, permID id.PermissionID) error {
	res, err := s.mdb.NewDelete((*permissionModel)(nil)).
		Filter(bson.M{"_id": permID.String()}).
		Exec(ctx)
	if err != nil {
		return classify("delete permission", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("permission %s: %w", permID, store.ErrNotFound)
	}
	return nil
}

func permissionFilter(filter *permission.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.ResourceType != "" {
		f["resource_type"] = string(filter.ResourceType)
	}
	if filter.Action != "" {
		f["action"] = string(filter.Action)
	}
	if filter.Category != "" {
		f["category"] = filter.Category
	}
	if filter.IsSystem != nil {
		f["is_system"] = *filter.IsSystem
	}
	if filter.Search != "" {
		f["name"] = bson.M{"$regex": filter.Search, "$options": "i"}
	}
	return f
}

func (s *Store) ListPermissions(ctx context.Context, filter *permission.ListFilter) ([]*permission.Permission, error) {
	var models []permissionModel
	q := s.mdb.NewFind(&models).
		Filter(permissionFilter(filter)).
		Sort(bson.D{{Key: "name", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*permissionModel)(nil)).
		Filter(permissionFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, classify("count permissions", err)
	}
	return count, nil
}

// ──────────────────────────────────────────────────
// Assignment operations
// ──────────────────────────────────────────────────

func (s *Store) CreateAssignment(ctx context.Context, a *assignment.Assignment) error {
	if _, err := s.mdb.NewInsert(assignmentToModel(a)).Exec(ctx); err != nil {
		return classify("create assignment", err)
	}
	return nil
}

func (s *Store) GetAssignment(ctx context.Context, assID id.AssignmentID) (*assignment.Assignment, error) {
	var m assignmentModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": assID.String()}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get assignment "+assID.String(), err)
	}
	return assignmentFromModel(&m), nil
}

func (s *Store) UpdateAssignment(ctx context.Context, a *assignment.Assignment) error {
	m := assignmentToModel(a)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return classify("update assignment", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("assignment %s: %w", a.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteAssignment(ctx context.Context, assID id.AssignmentID) error {
	res, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Filter(bson.M{"_id": assID.String()}).
		Exec(ctx)
	if err != nil {
		return classify("delete assignment", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("assignment %s: %w", assID, store.ErrNotFound)
	}
	return nil
}

func assignmentFilter(filter *assignment.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.UserID != "" {
		f["user_id"] = filter.UserID
	}
	if filter.RoleID != nil {
		f["role_id"] = filter.RoleID.String()
	}
	if filter.ActiveAt != nil {
		f["is_active"] = true
		f["$or"] = notExpired(*filter.ActiveAt)
	}
	return f
}

func (s *Store) ListAssignments(ctx context.Context, filter *assignment.ListFilter) ([]*assignment.Assignment, error) {
	var models []assignmentModel
	q := s.mdb.NewFind(&models).
		Filter(assignmentFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*assignmentModel)(nil)).
		Filter(assignmentFilter(filter)).
		Count(ctx)
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
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"role_id": bson.M{"$in": idStrings(roleIDs)}}).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
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

func (s *Store) DeleteExpiredAssignments(ctx context.Context, t time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*assignmentModel)(nil)).
		Many().
		Filter(bson.M{
			"expires_at": bson.M{
				"$ne":  nil,
				"$lte": t,
			},
		}).
		Exec(ctx)
	if err != nil {
		return 0, classify("delete expired assignments", err)
	}
	return res.DeletedCount(), nil
}

// ──────────────────────────────────────────────────
// Grant operations
// ──────────────────────────────────────────────────

func (s *Store) CreateGrant(ctx context.Context, g *grant.Grant) error {
	if _, err := s.mdb.NewInsert(grantToModel(g)).Exec(ctx); err != nil {
		return classify("create grant", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": grantID.String()}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get grant "+grantID.String(), err)
	}
	return grantFromModel(&m), nil
}

func (s *Store) UpdateGrant(ctx context.Context, g *grant.Grant) error {
	m := grantToModel(g)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return classify("update grant", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("grant %s: %w", g.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteGrant(ctx context.Context, grantID id.GrantID) error {
	res, err := s.mdb.NewDelete((*grantModel)(nil)).
		Filter(bson.M{"_id": grantID.String()}).
		Exec(ctx)
	if err != nil {
		return classify("delete grant", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("grant %s: %w", grantID, store.ErrNotFound)
	}
	return nil
}

func grantFilter(filter *grant.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.RoleID != nil {
		f["role_id"] = filter.RoleID.String()
	}
	if filter.PermissionID != nil {
		f["permission_id"] = filter.PermissionID.String()
	}
	if filter.Scope != "" {
		f["scope"] = string(filter.Scope)
	}
	if filter.ActiveAt != nil {
		f["$or"] = notExpired(*filter.ActiveAt)
	}
	return f
}

func (s *Store) ListGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.mdb.NewFind(&models).
		Filter(grantFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*grantModel)(nil)).
		Filter(grantFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, classify("count grants", err)
	}
	return count, nil
}

func (s *Store) ListActiveGrants(ctx context.Context, roleIDs []id.RoleID, permID id.PermissionID, asOf time.Time) ([]*grant.Grant, error) {
	if len(roleIDs) == 0 {
		return nil, nil
	}
	f := bson.M{
		"role_id": bson.M{"$in": idStrings(roleIDs)},
		"$or":     notExpired(asOf),
	}
	if !permID.IsNil() {
		f["permission_id"] = permID.String()
	}
	var models []grantModel
	err := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
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
	if _, err := s.mdb.NewInsert(overrideToModel(o)).Exec(ctx); err != nil {
		return classify("create override", err)
	}
	return nil
}

func (s *Store) GetOverride(ctx context.Context, ovrID id.OverrideID) (*override.Override, error) {
	var m overrideModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": ovrID.String()}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get override "+ovrID.String(), err)
	}
	return overrideFromModel(&m), nil
}

func (s *Store) UpdateOverride(ctx context.Context, o *override.Override) error {
	m := overrideToModel(o)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return classify("update override", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("override %s: %w", o.ID, store.ErrNotFound)
	}
	return nil
}

func (s *Store) DeleteOverride(ctx context.Context, ovrID id.OverrideID) error {
	res, err := s.mdb.NewDelete((*overrideModel)(nil)).
		Filter(bson.M{"_id": ovrID.String()}).
		Exec(ctx)
	if err != nil {
		return classify("delete override", err)
	}
	if res.DeletedCount() == 0 {
		return fmt.Errorf("override %s: %w", ovrID, store.ErrNotFound)
	}
	return nil
}

func overrideFilter(filter *override.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.ResourceType != "" {
		f["resource_type"] = string(filter.ResourceType)
	}
	if filter.ResourceID != "" {
		f["resource_id"] = filter.ResourceID
	}
	if filter.PermissionID != nil {
		f["permission_id"] = filter.PermissionID.String()
	}
	if filter.SubjectType != "" {
		f["subject_type"] = string(filter.SubjectType)
	}
	if filter.SubjectID != "" {
		f["subject_id"] = filter.SubjectID
	}
	if filter.ActiveAt != nil {
		f["$or"] = notExpired(*filter.ActiveAt)
	}
	return f
}

func (s *Store) ListOverrides(ctx context.Context, filter *override.ListFilter) ([]*override.Override, error) {
	var models []overrideModel
	q := s.mdb.NewFind(&models).
		Filter(overrideFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*overrideModel)(nil)).
		Filter(overrideFilter(filter)).
		Count(ctx)
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
	if _, err := s.mdb.NewInsert(auditToModel(e)).Exec(ctx); err != nil {
		return classify("create audit entry", err)
	}
	return nil
}

func (s *Store) GetAuditEntry(ctx context.Context, entryID id.AuditID) (*audit.Entry, error) {
	var m auditModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": entryID.String()}).
		Scan(ctx)
	if err != nil {
		return nil, classify("get audit entry "+entryID.String(), err)
	}
	return auditFromModel(&m), nil
}

func auditFilter(filter *audit.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.Action != "" {
		f["action"] = filter.Action
	}
	if filter.SubjectType != "" {
		f["subject_type"] = filter.SubjectType
	}
	if filter.SubjectID != "" {
		f["subject_id"] = filter.SubjectID
	}
	if filter.ResourceType != "" {
		f["resource_type"] = filter.ResourceType
	}
	if filter.ResourceID != "" {
		f["resource_id"] = filter.ResourceID
	}
	if filter.Success != nil {
		f["success"] = *filter.Success
	}
	if filter.After != nil || filter.Before != nil {
		dateFilter := bson.M{}
		if filter.After != nil {
			dateFilter["$gt"] = *filter.After
		}
		if filter.Before != nil {
			dateFilter["$lt"] = *filter.Before
		}
		f["created_at"] = dateFilter
	}
	return f
}

func (s *Store) ListAuditEntries(ctx context.Context, filter *audit.QueryFilter) ([]*audit.Entry, error) {
	var models []auditModel
	q := s.mdb.NewFind(&models).
		Filter(auditFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*auditModel)(nil)).
		Filter(auditFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, classify("count audit entries", err)
	}
	return count, nil
}

func (s *Store) PurgeAuditEntries(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*auditModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, classify("purge audit entries", err)
	}
	return res.DeletedCount(), nil
}
