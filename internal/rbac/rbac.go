package rbac

import "github.com/jobboard/campaign-portal/internal/models"

// Workflow actions
const (
	ActionCreateCampaign = "create_campaign"
	ActionUploadAssets   = "upload_assets"
	ActionStartDraft     = "start_draft"
	ActionSubmitDraft    = "submit_draft"
	ActionStartReview    = "start_review"
	ActionApprove        = "approve"
	ActionRequestChanges = "request_changes"
	ActionMarkLive       = "mark_live"
)

// RolePermissions defines which workflow edges each actor may drive.
var RolePermissions = map[models.Role][]string{
	models.RoleCS: {
		ActionCreateCampaign, ActionMarkLive,
	},
	models.RoleCustomer: {
		ActionUploadAssets, ActionStartReview, ActionApprove, ActionRequestChanges,
	},
	models.RoleAgency: {
		ActionStartDraft, ActionSubmitDraft,
	},
	// System drives only the auto-transitions.
	models.RoleSystem: {
		ActionStartDraft, ActionStartReview,
	},
}

// HasPermission checks if a role has a specific permission.
func HasPermission(role models.Role, action string) bool {
	perms, ok := RolePermissions[role]
	if !ok {
		return false
	}
	for _, p := range perms {
		if p == action {
			return true
		}
	}
	return false
}

// IsAutoTransition reports whether the action is idempotent per (campaign, status).
func IsAutoTransition(action string) bool {
	return action == ActionStartDraft || action == ActionStartReview
}
