package i18n

// Error codes must match the codes defined in internal/platform/errors/codes.go.
var enUS = map[Code]string{
	"UNKNOWN":                   "An unexpected error occurred.",
	"SELECTION_MISSING":         "Nothing was selected.",
	"INSUFFICIENT_EXPERIENCE":   "This advance costs {{.Cost}} experience but only {{.Available}} is available.",
	"INSUFFICIENT_FORTUNE":      "Cannot spend {{.Requested}} fortune points, only {{.Available}} left.",
	"CHECK_CANCELLED":           "The check was cancelled.",
	"INVALID_ARGUMENT":          "The request is invalid.",
	"ACTION_UNKNOWN_FACE":       "Actions only have conservative and reckless faces.",
	"EFFECT_UNKNOWN":            "Effect {{.EffectID}} is not part of this roll.",
	"ENCOUNTER_UNKNOWN_TYPE":    "Unknown encounter type {{.Type}}.",
	"COMBATANT_UNKNOWN":         "Combatant {{.CombatantID}} is not in this encounter.",
	"DICE_INVALID_POOL":         "The dice pool is invalid.",
	"CHECK_DISABLED":            "This check can no longer be resolved.",
	"EFFECT_INVALID_TRANSITION": "Effect {{.EffectID}} cannot go from {{.From}} to {{.To}}.",
	"EFFECT_SCRIPT_FAILED":      "Effect {{.EffectID}} failed: {{.Reason}}",
	"EFFECT_REVERSE_CONFLICT":   "Effect {{.EffectID}} cannot be reversed: {{.Reason}}",
	"SYMBOL_CONFIG_INVALID":     "The dice configuration is invalid.",
	"DICE_EXPLOSION_RUNAWAY":    "A die exploded too many times.",
	"NOT_FOUND":                 "{{.Kind}} {{.ID}} was not found.",
}
