package accounts

// Permission represents a single capability an account may hold.
type Permission string

const (
	// PermissionView allows viewing approved and currently active posts.
	PermissionView Permission = "View"
	// PermissionPost allows submitting posts for approval.
	PermissionPost Permission = "Post"
	// PermissionCheck allows viewing all posts, including archived and
	// unapproved ones.
	PermissionCheck Permission = "Check"
	// PermissionApprove allows accepting or rejecting posts.
	PermissionApprove Permission = "Approve"
	// PermissionViewAccounts allows viewing other accounts.
	PermissionViewAccounts Permission = "ViewAccounts"
	// PermissionManageAccounts allows creating and modifying accounts.
	PermissionManageAccounts Permission = "ManageAccounts"
	// PermissionOp is the superuser permission; it satisfies every check.
	PermissionOp Permission = "Op"
)

// implies lists the capabilities a permission grants beyond itself.
// PermissionOp is handled separately and satisfies everything.
var implies = map[Permission][]Permission{
	PermissionPost:           {PermissionView},
	PermissionCheck:          {PermissionView},
	PermissionManageAccounts: {PermissionViewAccounts},
}

// Satisfies reports whether holding p fulfils a requirement for req.
// Containment is hierarchical, not flat set membership.
func (p Permission) Satisfies(req Permission) bool {
	if p == req || p == PermissionOp {
		return true
	}
	for _, grant := range implies[p] {
		if grant == req {
			return true
		}
	}
	return false
}

// Permissions is the set of capabilities held by one account.
type Permissions []Permission

// Contains reports whether any held permission satisfies req.
func (ps Permissions) Contains(req Permission) bool {
	for _, p := range ps {
		if p.Satisfies(req) {
			return true
		}
	}
	return false
}

// ContainsAll reports whether every requirement is satisfied.
func (ps Permissions) ContainsAll(reqs ...Permission) bool {
	for _, req := range reqs {
		if !ps.Contains(req) {
			return false
		}
	}
	return true
}
