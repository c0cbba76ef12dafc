package event

// Envelope carries an outbound event and the connections it is meant for.
// A broadcast envelope reaches every attached connection, joined or not.
type Envelope struct {
	Targets   []string
	Broadcast bool
	Event     DomainEvent
}

func To(evt DomainEvent, connectionIDs ...string) Envelope {
	return Envelope{Targets: connectionIDs, Event: evt}
}

func Broadcast(evt DomainEvent) Envelope {
	return Envelope{Broadcast: true, Event: evt}
}
