package world

import "errors"

// BuildingID identifies a building for the life of the process.
type BuildingID uint64

// NoBuilding is the zero id, never handed out by an IDAllocator.
const NoBuilding BuildingID = 0

var (
	ErrOutOfBounds      = errors.New("world: position out of bounds")
	ErrOccupied         = errors.New("world: footprint occupied")
	ErrDuplicateID      = errors.New("world: duplicate building id")
	ErrUnknownBlueprint = errors.New("world: unknown blueprint")
	ErrUnbuildable      = errors.New("world: terrain cannot be built on")
)

// Building is a placed or grown structure anchored at Position (top-left).
type Building struct {
	ID        BuildingID `json:"id"`
	Blueprint *Blueprint `json:"-"`
	Position  Coord      `json:"position"`

	// Rendering progress; construction pacing lives outside the simulation.
	VoxelsToDisplay int `json:"voxels_to_display"`

	// Station supplying any tile under the footprint, NoBuilding if none.
	PoweredBy BuildingID `json:"powered_by,omitempty"`
}

// Footprint calls fn for every tile coordinate the building covers.
func (b *Building) Footprint(fn func(c Coord)) {
	for dr := 0; dr < b.Blueprint.Height; dr++ {
		for dc := 0; dc < b.Blueprint.Width; dc++ {
			fn(b.Position.Add(dr, dc))
		}
	}
}

// IsPowered reports whether the power solver reached the building.
func (b *Building) IsPowered() bool {
	return b.PoweredBy != NoBuilding
}

// IDAllocator hands out increasing building ids. It belongs to a Map and is
// never reset while buildings are alive.
type IDAllocator struct {
	next BuildingID
}

// NewIDAllocator starts allocating at 1.
func NewIDAllocator() *IDAllocator {
	return &IDAllocator{next: 1}
}

// Next returns a fresh id.
func (a *IDAllocator) Next() BuildingID {
	id := a.next
	a.next++
	return id
}

// Peek returns the id the next call to Next will return.
func (a *IDAllocator) Peek() BuildingID {
	return a.next
}

// SetNext moves the allocator forward. Moving it backwards is ignored so
// live ids are never handed out twice.
func (a *IDAllocator) SetNext(id BuildingID) {
	if id > a.next {
		a.next = id
	}
}

// Registry maps building ids to buildings and remembers insertion order,
// which the power solver uses to break ties between stations.
type Registry struct {
	byID  map[BuildingID]*Building
	order []BuildingID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[BuildingID]*Building)}
}

// Get returns the building with the given id.
func (r *Registry) Get(id BuildingID) (*Building, bool) {
	b, ok := r.byID[id]
	return b, ok
}

// Len returns the number of registered buildings.
func (r *Registry) Len() int {
	return len(r.byID)
}

// Each visits buildings in insertion order.
func (r *Registry) Each(fn func(b *Building)) {
	for _, id := range r.order {
		fn(r.byID[id])
	}
}

// All returns the buildings in insertion order.
func (r *Registry) All() []*Building {
	out := make([]*Building, 0, len(r.order))
	r.Each(func(b *Building) { out = append(out, b) })
	return out
}

func (r *Registry) insert(b *Building) error {
	if _, exists := r.byID[b.ID]; exists {
		return ErrDuplicateID
	}
	r.byID[b.ID] = b
	r.order = append(r.order, b.ID)
	return nil
}

func (r *Registry) delete(id BuildingID) {
	delete(r.byID, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}
