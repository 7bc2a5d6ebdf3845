package signaling

// Room is the set of members currently joined under one room code. Rooms are
// created implicitly on first join and reclaimed as soon as the last member
// leaves.
type Room struct {
	// Code is the caller-supplied room code.
	Code string

	// Members maps connection ids to their clients.
	Members map[string]*Client
}

func newRoom(code string) *Room {
	return &Room{
		Code:    code,
		Members: make(map[string]*Client),
	}
}
