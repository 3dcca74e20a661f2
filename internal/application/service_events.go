package application

const (
	// eventTypeUserRegistered is emitted when a portal account is created.
	eventTypeUserRegistered = "user.registered"
	// eventTypeUserDeactivated is emitted when a user deactivates their account.
	eventTypeUserDeactivated = "user.deactivated"
	// eventTypePasswordChanged is emitted after a successful credential rotation.
	eventTypePasswordChanged = "user.password_changed"
)
