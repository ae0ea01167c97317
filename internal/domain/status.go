package domain

import "fmt"

// Role is the closed set of actor roles supplied by the auth collaborator.
type Role string

const (
	RoleClient   Role = "CLIENT"
	RoleProvider Role = "PROVIDER"
	RoleAdmin    Role = "ADMIN"
)

// ParseRole converts a wire value into a Role. Unknown values are rejected.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleClient, RoleProvider, RoleAdmin:
		return Role(s), nil
	}
	return "", fmt.Errorf("unknown role %q", s)
}

// RequestStatus is the lifecycle state of a ServiceRequest.
type RequestStatus string

const (
	StatusPending    RequestStatus = "PENDING"
	StatusOffered    RequestStatus = "OFFERED"
	StatusAccepted   RequestStatus = "ACCEPTED"
	StatusInProgress RequestStatus = "IN_PROGRESS"
	StatusDone       RequestStatus = "DONE"
	StatusCancelled  RequestStatus = "CANCELLED"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []RequestStatus{
	StatusPending, StatusOffered, StatusAccepted, StatusInProgress, StatusDone, StatusCancelled,
}

// ParseStatus converts a wire value into a RequestStatus.
func ParseStatus(s string) (RequestStatus, error) {
	for _, st := range AllStatuses {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether no further transitions are permitted.
func (s RequestStatus) Terminal() bool {
	return s == StatusDone || s == StatusCancelled
}

// transitions is the directed lifecycle graph. CANCELLED is reachable from
// every non-terminal state; which actor may take that edge is decided by the
// lifecycle engine.
var transitions = map[RequestStatus][]RequestStatus{
	StatusPending:    {StatusOffered, StatusCancelled},
	StatusOffered:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusDone, StatusCancelled},
}

// CanTransition reports whether from -> to is an edge of the lifecycle graph.
func CanTransition(from, to RequestStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Recipients returns the users to notify for a transition performed by actor
// on a request owned by client and (optionally) assigned to provider.
//
// A client actor notifies the provider, a provider actor notifies the client,
// and any other actor (nil, admin, unknown) notifies every party that exists.
func Recipients(actorID *int64, clientID int64, providerID *int64) []int64 {
	switch {
	case actorID != nil && *actorID == clientID:
		if providerID != nil {
			return []int64{*providerID}
		}
		return nil
	case actorID != nil && providerID != nil && *actorID == *providerID:
		return []int64{clientID}
	}
	out := []int64{clientID}
	if providerID != nil && *providerID != clientID {
		out = append(out, *providerID)
	}
	return out
}
