// Package errors provides structured error handling with i18n support.
package errors

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Validation warnings
	CodeSelectionMissing       Code = "SELECTION_MISSING"
	CodeInsufficientExperience Code = "INSUFFICIENT_EXPERIENCE"
	CodeInsufficientFortune    Code = "INSUFFICIENT_FORTUNE"
	CodeCheckCancelled         Code = "CHECK_CANCELLED"

	// Request errors
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeUnknownFace      Code = "ACTION_UNKNOWN_FACE"
	CodeUnknownEffect    Code = "EFFECT_UNKNOWN"
	CodeUnknownEncounter Code = "ENCOUNTER_UNKNOWN_TYPE"
	CodeUnknownCombatant Code = "COMBATANT_UNKNOWN"
	CodeInvalidPool      Code = "DICE_INVALID_POOL"
	CodeCheckDisabled    Code = "CHECK_DISABLED"

	// Effect state machine
	CodeEffectInvalidTransition Code = "EFFECT_INVALID_TRANSITION"
	CodeEffectScriptFailed      Code = "EFFECT_SCRIPT_FAILED"
	CodeEffectReverseConflict   Code = "EFFECT_REVERSE_CONFLICT"

	// Configuration and internal failures
	CodeSymbolConfig     Code = "SYMBOL_CONFIG_INVALID"
	CodeExplosionRunaway Code = "DICE_EXPLOSION_RUNAWAY"

	// Storage errors
	CodeNotFound Code = "NOT_FOUND"
)

// Severity classifies how a code surfaces to users.
type Severity int

const (
	SeverityError Severity = iota
	SeverityWarning
	SeverityFatal
)

// Severity returns how the code should be surfaced.
func (c Code) Severity() Severity {
	switch c {
	case CodeSelectionMissing,
		CodeInsufficientExperience,
		CodeInsufficientFortune,
		CodeCheckCancelled:
		return SeverityWarning
	case CodeSymbolConfig,
		CodeExplosionRunaway:
		return SeverityFatal
	default:
		return SeverityError
	}
}
