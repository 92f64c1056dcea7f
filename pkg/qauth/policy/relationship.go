package policy

// RelationshipOracle is consulted for the "relationship" condition
// category: the engine never implements relationship semantics itself,
// only the plumbing to ask an external collaborator.
type RelationshipOracle interface {
	HasRelationship(subjectID, relation, targetID string) (bool, error)
}

// oracle is the process-wide relationship oracle, nil by default (a
// policy referencing a relationship condition without one installed
// fails closed).
var oracle RelationshipOracle

// SetRelationshipOracle installs the external relationship oracle.
func SetRelationshipOracle(o RelationshipOracle) { oracle = o }

func evalRelationship(c *RelationshipCondition, ctx EvalContext) (bool, error) {
	if oracle == nil {
		return false, nil
	}
	return oracle.HasRelationship(ctx.Subject.ID, c.Relation, c.TargetID)
}
