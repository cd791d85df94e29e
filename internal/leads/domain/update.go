package domain

// Update carries the lead fields automation writes back. Nil fields are left
// untouched. Score columns are written by the scoring repository together with
// their history row.
type Update struct {
	AssignedTo *int64
}

// IsEmpty reports whether the update would change nothing.
func (u Update) IsEmpty() bool {
	return u.AssignedTo == nil
}

// AgentFilter narrows the active agent pool. Zero value means every active agent.
type AgentFilter struct {
	Pool string
	IDs  []int64
}
