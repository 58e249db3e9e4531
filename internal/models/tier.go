package models

// Tier a searchable bracket. Weight nil means an open/yuzu tier; lower weight is stronger.
type Tier struct {
	ID        string `json:"id" db:"id"`
	GuildID   string `json:"guildId" db:"guild_id"`
	Name      string `json:"name" db:"name"`
	Weight    *int   `json:"weight,omitempty" db:"weight"`
	Threshold *int   `json:"threshold,omitempty" db:"threshold"`
	Yuzu      bool   `json:"yuzu" db:"yuzu"`
}

// Ranked reports whether the tier takes part in the weighted ladder.
func (t Tier) Ranked() bool {
	return t.Weight != nil
}

// ThresholdValue returns the score floor, 0 when unset.
func (t Tier) ThresholdValue() int {
	if t.Threshold == nil {
		return 0
	}
	return *t.Threshold
}

type Stage struct {
	ID          string `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Starter     bool   `json:"starter" db:"starter"`
	Counterpick bool   `json:"counterpick" db:"counterpick"`
}

// DefaultStages the stage list the stages migration seeds, used by the in-memory store.
func DefaultStages() []Stage {
	return []Stage{
		{ID: "battlefield", Name: "Battlefield", Starter: true, Counterpick: true},
		{ID: "small-battlefield", Name: "Small Battlefield", Starter: true, Counterpick: true},
		{ID: "final-destination", Name: "Final Destination", Starter: true, Counterpick: true},
		{ID: "pokemon-stadium-2", Name: "Pokémon Stadium 2", Starter: true, Counterpick: true},
		{ID: "smashville", Name: "Smashville", Starter: true, Counterpick: true},
		{ID: "town-and-city", Name: "Town and City", Starter: true, Counterpick: true},
		{ID: "kalos", Name: "Kalos Pokémon League", Starter: true, Counterpick: true},
		{ID: "hollow-bastion", Name: "Hollow Bastion", Starter: true, Counterpick: true},
		{ID: "lylat", Name: "Lylat Cruise", Counterpick: true},
		{ID: "yoshis-story", Name: "Yoshi's Story", Counterpick: true},
	}
}
