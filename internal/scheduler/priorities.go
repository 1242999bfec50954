package scheduler

import "github.com/klubi/hostel/internal/compat"

// DefaultEmptyRoomScore is the score of a room with nobody in it yet.
const DefaultEmptyRoomScore = 75.0

// RoomScore rates a room for candidate given its current occupants. An empty
// room scores emptyScore; otherwise the score is the mean pairwise
// compatibility between the candidate and each occupant. Range: 0-100.
func RoomScore(candidate compat.Profile, occupants []compat.Profile, emptyScore float64) float64 {
	if len(occupants) == 0 {
		return emptyScore
	}
	var total float64
	for _, o := range occupants {
		total += compat.Score(candidate, o)
	}
	return total / float64(len(occupants))
}
