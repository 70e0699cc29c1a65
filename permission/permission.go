// Package permission defines the Permission catalog entity and its store
// interface. A permission names one action on one resource type.
package permission

import (
	"time"

	"github.com/xraph/bastion/id"
)

// ResourceType is the kind of resource a permission applies to.
type ResourceType string

// Known resource types.
const (
	ResourceUser         ResourceType = "user"
	ResourceProject      ResourceType = "project"
	ResourceAsset        ResourceType = "asset"
	ResourceScript       ResourceType = "script"
	ResourceStoryboard   ResourceType = "storyboard"
	ResourceVideo        ResourceType = "video"
	ResourceModel        ResourceType = "model"
	ResourceOrganization ResourceType = "organization"
	ResourceSystem       ResourceType = "system"
)

// Valid reports whether rt is a known resource type.
func (rt ResourceType) Valid() bool {
	switch rt {
	case ResourceUser, ResourceProject, ResourceAsset, ResourceScript,
		ResourceStoryboard, ResourceVideo, ResourceModel,
		ResourceOrganization, ResourceSystem:
		return true
	}
	return false
}

// Action is an operation on a resource.
type Action string

// Known actions.
const (
	ActionCreate  Action = "create"
	ActionRead    Action = "read"
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionExecute Action = "execute"
	ActionManage  Action = "manage"
	ActionApprove Action = "approve"
	ActionReview  Action = "review"
	ActionPublish Action = "publish"
	ActionExport  Action = "export"
	ActionShare   Action = "share"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	switch a {
	case ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionExecute,
		ActionManage, ActionApprove, ActionReview, ActionPublish, ActionExport,
		ActionShare:
		return true
	}
	return false
}

// Permission is an immutable catalog entry. System permissions cannot be
// deleted.
type Permission struct {
	ID           id.PermissionID `json:"id" db:"id"`
	Name         string          `json:"name" db:"name"`
	Description  string          `json:"description,omitempty" db:"description"`
	ResourceType ResourceType    `json:"resource_type" db:"resource_type"`
	Action       Action          `json:"action" db:"action"`
	Category     string          `json:"category,omitempty" db:"category"`
	IsSystem     bool            `json:"is_system" db:"is_system"`
	Metadata     map[string]any  `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Key returns the "resource.action" form, e.g. "project.read".
func (p *Permission) Key() string {
	return string(p.ResourceType) + "." + string(p.Action)
}

// ListFilter contains filters for listing permissions.
type ListFilter struct {
	ResourceType ResourceType `json:"resource_type,omitempty"`
	Action       Action       `json:"action,omitempty"`
	Category     string       `json:"category,omitempty"`
	IsSystem     *bool        `json:"is_system,omitempty"`
	Search       string       `json:"search,omitempty"`
	Limit        int          `json:"limit,omitempty"`
	Offset       int          `json:"offset,omitempty"`
}
