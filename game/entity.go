package game

// Entity is a non-player object on the board. No entity gameplay ships
// with the core, but the collection participates in movement validation
// so populated boards behave correctly.
type Entity struct {
	EntityID   string `json:"entityId"`
	X          int    `json:"x"`
	Y          int    `json:"y"`
	Glyph      string `json:"glyph"`
	Color      string `json:"color"`
	Solid      bool   `json:"solid"`
	ZOrder     int    `json:"zOrder"`
	EntityType string `json:"entityType"`
}

// SolidEntityAt reports whether any solid entity in entities occupies
// (x, y).
func SolidEntityAt(entities []Entity, x, y int) bool {
	for i := range entities {
		if entities[i].Solid && entities[i].X == x && entities[i].Y == y {
			return true
		}
	}
	return false
}
