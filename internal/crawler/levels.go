package crawler

// childLevels lists, per level, the child levels the engine descends into.
// Chapters, subchapters and parts may point straight at sections.
var childLevels = map[Level][]Level{
	LevelTOC:        {LevelSubtitle},
	LevelSubtitle:   {LevelChapter},
	LevelChapter:    {LevelSubchapter, LevelPart, LevelSection},
	LevelSubchapter: {LevelPart, LevelSection},
	LevelPart:       {LevelSubpart, LevelSection},
	LevelSubpart:    {LevelSection},
}

// Accepts reports whether a link classified as child may be followed from a
// page at level l.
func (l Level) Accepts(child Level) bool {
	for _, candidate := range childLevels[l] {
		if candidate == child {
			return true
		}
	}
	return false
}

// AcceptedChildren filters units down to the ones level l descends into,
// preserving page order.
func (l Level) AcceptedChildren(units []Unit) []Unit {
	out := make([]Unit, 0, len(units))
	for _, unit := range units {
		if l.Accepts(unit.Level) {
			out = append(out, unit)
		}
	}
	return out
}
