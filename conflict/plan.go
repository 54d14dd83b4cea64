package conflict

// Decision is what the coordinator must do to settle a conflict
type Decision struct {
	Strategy Strategy

	// Write is false when the server value is kept as is
	Write bool

	// Force writes unconditionally; otherwise the write is conditional on the
	// server version captured at detection
	Force bool

	// Data is the value the document ends up with
	Data map[string]any

	Reasons []string
}

// Resolver is the strategy interface for one resolution strategy
type Resolver interface {
	Plan(server, client, final map[string]any) Decision
}

var (
	_ Resolver = ServerWinsResolver{}
	_ Resolver = ClientWinsResolver{}
	_ Resolver = MergeResolver{}
)

// ServerWinsResolver keeps the server value and discards the local change
type ServerWinsResolver struct{}

func (ServerWinsResolver) Plan(server, client, final map[string]any) Decision {
	return Decision{Strategy: ServerWins, Data: Clone(server), Reasons: []string{"keep server"}}
}

// ClientWinsResolver overwrites the server with the local value
type ClientWinsResolver struct{}

func (ClientWinsResolver) Plan(server, client, final map[string]any) Decision {
	return Decision{Strategy: ClientWins, Write: true, Force: true, Data: Clone(client), Reasons: []string{"keep client"}}
}

// MergeResolver writes the caller's merged value, or AutoMerge when none is given
type MergeResolver struct{}

func (MergeResolver) Plan(server, client, final map[string]any) Decision {
	if final != nil {
		return Decision{Strategy: Merge, Write: true, Data: Clone(final), Reasons: []string{"caller merge"}}
	}
	return Decision{Strategy: Merge, Write: true, Data: AutoMerge(server, client), Reasons: []string{"auto merge, client wins on overlap"}}
}

var resolvers = map[Strategy]Resolver{
	ServerWins: ServerWinsResolver{},
	ClientWins: ClientWinsResolver{},
	Merge:      MergeResolver{},
}

// Plan returns the Decision for strategy. final is only consulted by MERGE.
func Plan(strategy Strategy, server, client, final map[string]any) (Decision, error) {
	if strategy == UserChoice {
		return Decision{}, ErrPendingStrategy
	}
	r, ok := resolvers[strategy]
	if !ok {
		return Decision{}, ErrUnknownStrategy
	}
	return r.Plan(server, client, final), nil
}
