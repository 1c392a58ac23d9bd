package domain

// OrgState is the lifecycle state of an organization.
type OrgState int32

const (
	OrgStateUnspecified OrgState = iota
	OrgStateActive
	OrgStateInactive
	OrgStateRemoved
)

func (s OrgState) Exists() bool {
	return s == OrgStateActive || s == OrgStateInactive
}

// InstanceState is the lifecycle state of an instance.
type InstanceState int32

const (
	InstanceStateUnspecified InstanceState = iota
	InstanceStateActive
	InstanceStateRemoved
)
