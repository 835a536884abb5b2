package wam

// Outlink is one successor of a branch-point state, with the features that
// label the edge.
type Outlink struct {
	State    *State
	Features FeatureDict
}

// Plugin answers calls to predicates backed by something other than
// compiled clauses. The interpreter asks plugins in order before looking
// at compiled code; the first to claim a label owns it.
//
// Outlinks typically restores state, binds the call's arguments with
// ConstantArg and SetArg, then calls ReturnP, ExecuteWithoutBranching and
// SaveState once per answer.
type Plugin interface {
	Name() string
	Claim(label string) bool
	Outlinks(state *State, interp *Interpreter, computeFeatures bool) ([]Outlink, error)
}
