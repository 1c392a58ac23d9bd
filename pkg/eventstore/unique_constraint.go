package eventstore

// UniqueConstraintAction claims or releases a unique value.
type UniqueConstraintAction int32

const (
	UniqueConstraintAdd UniqueConstraintAction = iota
	UniqueConstraintRemove
	// UniqueConstraintRemoveAll releases every value of the given type
	// owned by the instance (used when an org is removed).
	UniqueConstraintRemoveAll
)

// UniqueConstraint is validated atomically with the event append. Claims of
// a value already held by another aggregate fail the whole push.
type UniqueConstraint struct {
	// UniqueType partitions the index ("usernames", "org_domains", ...).
	UniqueType string

	// UniqueField is the value being claimed or released. Callers normalise
	// (e.g. lowercase) before claiming.
	UniqueField string

	Action UniqueConstraintAction

	// ErrorID is the stable id reported when the claim conflicts.
	ErrorID string
}

// NewAddUniqueConstraint claims a value.
func NewAddUniqueConstraint(uniqueType, uniqueField, errorID string) *UniqueConstraint {
	return &UniqueConstraint{
		UniqueType:  uniqueType,
		UniqueField: uniqueField,
		Action:      UniqueConstraintAdd,
		ErrorID:     errorID,
	}
}

// NewRemoveUniqueConstraint releases a value.
func NewRemoveUniqueConstraint(uniqueType, uniqueField string) *UniqueConstraint {
	return &UniqueConstraint{
		UniqueType:  uniqueType,
		UniqueField: uniqueField,
		Action:      UniqueConstraintRemove,
	}
}
