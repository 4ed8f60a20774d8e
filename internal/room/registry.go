package room

// Registry is the authoritative mapping of room identifier to Room. A room
// exists in the registry iff it has at least one participant; the hub removes
// it exactly when its membership drains to zero.
type Registry struct {
	rooms map[string]*Room
}

// NewRegistry returns an empty registry. It is dependency-injected into the
// hub rather than living as package-level state.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]*Room)}
}

// GetOrCreate returns the room for id, creating it with creator as the room
// creator when absent. First joiner becomes creator; there is no other
// moderation bootstrap.
func (g *Registry) GetOrCreate(id, creator string) *Room {
	if r, ok := g.rooms[id]; ok {
		return r
	}
	r := newRoom(id, creator)
	g.rooms[id] = r
	return r
}

// Get returns the room for id if one exists. It never creates.
func (g *Registry) Get(id string) (*Room, bool) {
	r, ok := g.rooms[id]
	return r, ok
}

// Remove discards the room for id. Idempotent.
func (g *Registry) Remove(id string) {
	delete(g.rooms, id)
}

// Len returns the number of active rooms.
func (g *Registry) Len() int {
	return len(g.rooms)
}
