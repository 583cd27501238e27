package game

// =============================================================================
// LEVELING
// =============================================================================

// Level returns the level reached with xp total experience:
// floor(xp / BaseXPPerLevel) + 1. Level is monotonic in xp for a fixed cfg.
// A non-positive base means leveling is disabled and everyone is level 1.
func Level(xp int64, cfg *Config) int64 {
	base := cfg.Leveling.BaseXPPerLevel
	if base <= 0 || xp <= 0 {
		return 1
	}
	return xp/base + 1
}

// XPForLevel returns the minimum total XP needed to be at level.
func XPForLevel(level int64, cfg *Config) int64 {
	if level <= 1 || cfg.Leveling.BaseXPPerLevel <= 0 {
		return 0
	}
	return (level - 1) * cfg.Leveling.BaseXPPerLevel
}

// XPToNextLevel returns how much XP is still missing to reach the next level.
func XPToNextLevel(xp int64, cfg *Config) int64 {
	if cfg.Leveling.BaseXPPerLevel <= 0 {
		return 0
	}
	return XPForLevel(Level(xp, cfg)+1, cfg) - max(xp, 0)
}
