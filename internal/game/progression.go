package game

import "fmt"

// Progression tracks where a learner is and how far they may go.
//
// Current may be written directly (for example when restoring a snapshot);
// every read goes through Room, which clamps it to MaxUnlocked.
type Progression struct {
	Current     int `json:"current"`
	MaxUnlocked int `json:"max_unlocked"`
}

// Room returns the current room, never beyond MaxUnlocked.
func (p *Progression) Room() int {
	p.normalize()
	return p.Current
}

func (p *Progression) normalize() {
	if p.MaxUnlocked < 0 {
		p.MaxUnlocked = 0
	}
	if p.Current < 0 {
		p.Current = 0
	}
	if p.Current > p.MaxUnlocked {
		p.Current = p.MaxUnlocked
	}
}

// Unlock raises the frontier to room. It never lowers it. Returns true if
// the frontier moved.
func (p *Progression) Unlock(room int) bool {
	if room <= p.MaxUnlocked {
		return false
	}
	p.MaxUnlocked = room
	return true
}

// Reachable returns true if room is at or below the frontier.
func (p *Progression) Reachable(room int) bool {
	return room >= 0 && room <= p.MaxUnlocked
}

// Navigate moves to room when it is unlocked. The frontier is unchanged.
func (p *Progression) Navigate(room int) error {
	if !p.Reachable(room) {
		return fmt.Errorf("%w: room %d, unlocked up to %d", ErrRoomLocked, room, p.MaxUnlocked)
	}
	p.Current = room
	return nil
}
