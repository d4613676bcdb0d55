package teams

import "github.com/google/uuid"

// The accepted invites of a group are the source of truth for its members.
// The materialized member set in the store is kept in step with them and
// RepairGroups reconciles the two with the functions below.

// ResolveMembers returns the distinct endpoints of the accepted invites in
// order of first appearance. Invites that are not accepted are ignored.
func ResolveMembers(invites []Invite) []uuid.UUID {
	members := make([]uuid.UUID, 0, MaxGroupSize)
	seen := make(map[uuid.UUID]struct{}, MaxGroupSize)
	add := func(id uuid.UUID) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		members = append(members, id)
	}

	for _, inv := range invites {
		if inv.Status != StatusAccepted {
			continue
		}
		add(inv.SenderID)
		add(inv.ReceiverID)
	}
	return members
}

// GroupOf returns the group id of the first accepted invite involving userID.
func GroupOf(userID uuid.UUID, invites []Invite) (uuid.UUID, bool) {
	for _, inv := range invites {
		if inv.Status == StatusAccepted && inv.Involves(userID) {
			return inv.GroupID, true
		}
	}
	return uuid.Nil, false
}

// IsConnected reports whether the accepted invites link every member into a
// single component.
func IsConnected(members []uuid.UUID, invites []Invite) bool {
	if len(members) <= 1 {
		return true
	}

	adj := make(map[uuid.UUID][]uuid.UUID, len(members))
	for _, inv := range invites {
		if inv.Status != StatusAccepted {
			continue
		}
		adj[inv.SenderID] = append(adj[inv.SenderID], inv.ReceiverID)
		adj[inv.ReceiverID] = append(adj[inv.ReceiverID], inv.SenderID)
	}

	visited := map[uuid.UUID]bool{members[0]: true}
	queue := []uuid.UUID{members[0]}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range adj[cur] {
			if !visited[next] {
				visited[next] = true
				queue = append(queue, next)
			}
		}
	}

	for _, m := range members {
		if !visited[m] {
			return false
		}
	}
	return true
}

// StarEdges pairs the first member with each of the others. It is the
// minimal edge set that keeps a rebuilt group connected.
func StarEdges(members []uuid.UUID) [][2]uuid.UUID {
	if len(members) < 2 {
		return nil
	}
	edges := make([][2]uuid.UUID, 0, len(members)-1)
	for _, m := range members[1:] {
		edges = append(edges, [2]uuid.UUID{members[0], m})
	}
	return edges
}

func without(ids []uuid.UUID, drop uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}

func union(ids []uuid.UUID, extra ...uuid.UUID) []uuid.UUID {
	out := cloneIDs(ids)
	for _, id := range extra {
		if !containsID(out, id) {
			out = append(out, id)
		}
	}
	return out
}
