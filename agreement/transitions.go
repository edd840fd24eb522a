package agreement

// transitionRule describes one requested-status branch of the lifecycle:
// who may request it, which audit action it records, and whether the signer
// identity gets bound as part of applying it.
type transitionRule struct {
	action    string
	authorize func(a Agreement, actor Actor) error
	// bindSigner returns the signer id to persist alongside the status, or
	// nil when the binding stays untouched.
	bindSigner func(a Agreement, actor Actor) *string
}

// transitions is the explicit table of requested statuses the engine acts
// on. A requested status absent from this table is a deliberate no-op: the
// agreement is returned unchanged and no audit entry is written. Requests
// are guarded by who the caller is, not by the agreement's current status;
// re-sending a Sent agreement or re-signing a Signed one is accepted for
// compatibility with the original workflow.
var transitions = map[Status]transitionRule{
	StatusSent: {
		action: ActionSent,
		authorize: func(a Agreement, actor Actor) error {
			if a.SenderID != actor.ID {
				return ErrSenderOnly
			}
			return nil
		},
		bindSigner: func(Agreement, Actor) *string { return nil },
	},
	StatusSigned: {
		action: ActionSigned,
		authorize: func(a Agreement, actor Actor) error {
			if !isDesignatedSigner(a, actor) {
				return ErrSignerOnly
			}
			return nil
		},
		// First-signer-wins: the first eligible caller to sign becomes the
		// bound signer; an existing binding is never overwritten.
		bindSigner: func(a Agreement, actor Actor) *string {
			if a.SignerID == nil {
				id := actor.ID
				return &id
			}
			return nil
		},
	},
}

// isDesignatedSigner reports whether the actor may sign: either the bound
// signer id matches, or the actor's email equals the invited signer email.
// The email comparison is case-sensitive, matching the original behavior.
func isDesignatedSigner(a Agreement, actor Actor) bool {
	if a.SignerID != nil && *a.SignerID == actor.ID {
		return true
	}
	if a.SignerEmail != nil && actor.Email != "" && *a.SignerEmail == actor.Email {
		return true
	}
	return false
}

// canView reports whether the actor is a party to the agreement: the
// sender, the bound signer, or the invited signer by email.
func canView(a Agreement, actor Actor) bool {
	if a.SenderID == actor.ID {
		return true
	}
	return isDesignatedSigner(a, actor)
}
