package tools

import (
	"strings"

	"pfagent/model"
)

// safePlanningTools is the allow-list of read-only local operations the
// planner may call. Remote tools (any name containing ":") are also let
// through; see the registry docs for why that policy is under review.
var safePlanningTools = map[string]bool{
	"resolveProject":      true,
	"listProjects":        true,
	"listEntityTypes":     true,
	"describeEntityType":  true,
	"listProjectTypes":    true,
	"describeProjectType": true,
	"getChildren":         true,
	"getParents":          true,
}

// FilterSafe returns the subset of tools usable during the planning
// stage. The full unfiltered set is only ever used after the user
// confirms a plan.
func FilterSafe(defs []model.ToolDefinition) []model.ToolDefinition {
	var safe []model.ToolDefinition
	for _, def := range defs {
		if safePlanningTools[def.Name] || def.ReadOnly || strings.Contains(def.Name, ":") {
			safe = append(safe, def)
		}
	}
	return safe
}

// Confirmation vocabularies. Exact match only, case-insensitive:
// "Okay." is not an affirmation, a bare "ok" is.
var affirmativeWords = []string{"yes", "y", "confirm", "ok", "okay", "proceed"}
var negativeWords = []string{"no", "n", "cancel", "stop"}

func IsAffirmative(input string) bool {
	return matchesVocabulary(input, affirmativeWords)
}

func IsNegative(input string) bool {
	return matchesVocabulary(input, negativeWords)
}

func matchesVocabulary(input string, words []string) bool {
	normalized := strings.ToLower(strings.TrimSpace(input))
	for _, w := range words {
		if normalized == w {
			return true
		}
	}
	return false
}

const missingFieldsPrefix = "Missing required fields:"

// ExtractMissingFields pulls field names out of results whose error
// follows the "Missing required fields: a, b" convention. Duplicates are
// preserved; the caller deduplicates when surfacing to the user.
func ExtractMissingFields(results []Result) []string {
	var missing []string
	for _, res := range results {
		if res.OK || !strings.HasPrefix(res.Error, missingFieldsPrefix) {
			continue
		}
		rest := strings.TrimPrefix(res.Error, missingFieldsPrefix)
		for _, part := range strings.Split(rest, ",") {
			if val := strings.TrimSpace(part); val != "" {
				missing = append(missing, val)
			}
		}
	}
	return missing
}
