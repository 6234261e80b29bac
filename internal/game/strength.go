package game

// GroupStrength scales a base attack/repair value by the number of co-located
// actors of the same faction. The per-user contribution grows with group size
// but is capped, so stacking players has diminishing returns:
//
//	effective = min(maxPerUser, base + (groupSize-1)*groupModifier) * groupSize
//
// A group of one degenerates to the base value. The result is truncated to
// whole health points.
func GroupStrength(base, maxPerUser, groupModifier float64, groupSize int) int {
	if groupSize < 1 {
		groupSize = 1
	}
	perUser := base + float64(groupSize-1)*groupModifier
	if perUser > maxPerUser {
		perUser = maxPerUser
	}
	return int(perUser * float64(groupSize))
}
