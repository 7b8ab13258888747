// Package actor names the actor document fields the engine reads and writes.
package actor

import (
	"fmt"

	"github.com/louisbranch/wfrp3e/internal/storage"
)

// Document paths shared by checks, advances and initiative.
const (
	FortunePath         = "system.fortune.value"
	ExperienceTotalPath = "system.experience.total"
	ExperienceSpentPath = "system.experience.spent"
	StancePath          = "system.stance.current"
)

// CharacteristicPath returns the path of a characteristic's rating.
func CharacteristicPath(name string) string {
	return fmt.Sprintf("system.characteristics.%s.rating", name)
}

// CharacteristicFortunePath returns the path of a characteristic's trained
// fortune dice.
func CharacteristicFortunePath(name string) string {
	return fmt.Sprintf("system.characteristics.%s.fortune", name)
}

// SkillTrainingPath returns the path of a skill's training level, which adds
// expertise dice.
func SkillTrainingPath(skill string) string {
	return fmt.Sprintf("system.skills.%s.training", skill)
}

// AdvancePath returns the path recording advances of one kind.
func AdvancePath(kind string) string {
	return fmt.Sprintf("system.advances.%s", kind)
}

// Characteristic reads a rating and its fortune dice. Missing fields read as zero.
func Characteristic(doc storage.Document, name string) (rating, fortune int) {
	return doc.Int(CharacteristicPath(name)), doc.Int(CharacteristicFortunePath(name))
}

// AvailableExperience returns unspent experience.
func AvailableExperience(doc storage.Document) int {
	return doc.Int(ExperienceTotalPath) - doc.Int(ExperienceSpentPath)
}

// Stance returns the actor's current stance: positive values are
// conservative, negative values reckless.
func Stance(doc storage.Document) int {
	return doc.Int(StancePath)
}
