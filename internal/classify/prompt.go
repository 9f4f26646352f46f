// Package classify implements the memo classification pipeline: prompt
// rendering, strict output parsing, persistence, and discovery merging.
package classify

import (
	"fmt"
	"sort"
	"strings"

	"github.com/voicebrain/voicebrain/internal/models"
)

// activityDefinitions gives each activity value a one-line definition for the
// system prompt. Keep these short; the model only needs disambiguation.
var activityDefinitions = map[models.Activity]string{
	models.ActivityRevenue:       "earning money through products, services, or sales",
	models.ActivityFundraising:   "raising donations, grants, or sponsorships",
	models.ActivityOperations:    "internal processes, logistics, scheduling, and admin",
	models.ActivityRelationships: "building or maintaining personal and professional relationships",
	models.ActivityStrategy:      "planning, vision, and long-term direction",
	models.ActivityMinistry:      "spiritual service, prayer, and faith-driven work",
	models.ActivityContent:       "creating writing, audio, video, or teaching material",
}

var actionTypeDefinitions = map[models.ActionType]string{
	models.ActionTypeDeliver:  "send or communicate something to a specific person",
	models.ActionTypeDecide:   "make a decision that is currently open",
	models.ActionTypeDelegate: "hand a task to someone else",
	models.ActionTypeDocument: "record or file information for later reference",
	models.ActionTypeDevelop:  "build, draft, or improve something over time",
}

// contextSections fixes the rendering order of context types in the prompt.
var contextSections = []struct {
	contextType models.ContextType
	heading     string
}{
	{models.ContextTypeEntity, "KNOWN ENTITIES"},
	{models.ContextTypePerson, "KNOWN PEOPLE"},
	{models.ContextTypeProject, "KNOWN PROJECTS"},
	{models.ContextTypeKeyword, "KNOWN KEYWORDS"},
}

// BuildSystemPrompt renders the classifier's system instructions from the
// taxonomy and a snapshot of the user's active context. It is a pure function:
// the same inputs always produce byte-identical output.
func BuildSystemPrompt(tax models.Taxonomy, items []models.ContextItem) string {
	var b strings.Builder

	b.WriteString("You are a voice memo classifier for a busy founder. ")
	b.WriteString("You receive one transcript and must classify it along three fixed dimensions, ")
	b.WriteString("extract people and action items, and report newly discovered names.\n\n")

	b.WriteString("CLASSIFICATION DIMENSIONS\n")
	b.WriteString("Entity (which sphere of life/work the memo belongs to), exactly one of: ")
	b.WriteString(strings.Join(tax.Entities, ", "))
	b.WriteString(".\n")
	b.WriteString("Activity, exactly one of:\n")
	for _, a := range models.Activities {
		fmt.Fprintf(&b, "- %s: %s\n", a, activityDefinitions[a])
	}
	b.WriteString("Action type, exactly one of:\n")
	for _, at := range models.ActionTypes {
		fmt.Fprintf(&b, "- %s: %s\n", at, actionTypeDefinitions[at])
	}
	b.WriteString("\n")

	b.WriteString("PROPHETIC WORD DETECTION\n")
	b.WriteString("A prophetic word is a message the speaker believes God gave them for a specific person. ")
	b.WriteString("Signals: phrases like \"I felt God say\", \"the Lord showed me\", \"I sense that\", ")
	b.WriteString("combined with a named recipient. Record each as {recipient, content, timestamp_label}. ")
	b.WriteString("Do not invent prophetic content; only extract what the speaker states.\n\n")

	b.WriteString("DISCOVERY MODE\n")
	b.WriteString("Report every person, entity, or project named in the transcript that does not appear ")
	b.WriteString("in the known context below as a discovery: {type, name, inferred_context}. ")
	b.WriteString("Use type \"person\", \"entity\", or \"project\". The inferred_context is one sentence ")
	b.WriteString("describing what the transcript implies about the name.\n\n")

	b.WriteString("ACTION TIERS\n")
	b.WriteString("- red: external or irreversible actions (sending a message, delivering a prophetic word, making a payment). These require human approval.\n")
	b.WriteString("- yellow: internal, reversible actions. These auto-execute.\n")
	b.WriteString("- green: pure information capture. These auto-execute.\n\n")

	for _, section := range contextSections {
		var sectionItems []models.ContextItem
		for _, item := range items {
			if item.ContextType == section.contextType {
				sectionItems = append(sectionItems, item)
			}
		}
		if len(sectionItems) == 0 {
			continue
		}
		b.WriteString(section.heading)
		b.WriteString("\n")
		for _, item := range sectionItems {
			writeContextItem(&b, item)
		}
		b.WriteString("\n")
	}

	writeOutputContract(&b, tax)
	return b.String()
}

func writeContextItem(b *strings.Builder, item models.ContextItem) {
	b.WriteString("- ")
	b.WriteString(item.Name)
	if len(item.Aliases) > 0 {
		fmt.Fprintf(b, " (also: %s)", strings.Join(item.Aliases, ", "))
	}
	if len(item.Metadata) > 0 {
		// Sorted keys keep rendering deterministic.
		keys := make([]string, 0, len(item.Metadata))
		for k := range item.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		var pairs []string
		for _, k := range keys {
			pairs = append(pairs, fmt.Sprintf("%s: %v", k, item.Metadata[k]))
		}
		fmt.Fprintf(b, " [%s]", strings.Join(pairs, "; "))
	}
	b.WriteString("\n")
}

func writeOutputContract(b *strings.Builder, tax models.Taxonomy) {
	quoted := func(vals []string) string {
		out := make([]string, len(vals))
		for i, v := range vals {
			out[i] = fmt.Sprintf("%q", v)
		}
		return strings.Join(out, " | ")
	}
	activities := make([]string, len(models.Activities))
	for i, a := range models.Activities {
		activities[i] = string(a)
	}
	actionTypes := make([]string, len(models.ActionTypes))
	for i, at := range models.ActionTypes {
		actionTypes[i] = string(at)
	}

	b.WriteString("OUTPUT FORMAT\n")
	b.WriteString("Respond with exactly one JSON object with all of these fields:\n")
	fmt.Fprintf(b, "  \"entity\": %s\n", quoted(tax.Entities))
	fmt.Fprintf(b, "  \"activity\": %s\n", quoted(activities))
	fmt.Fprintf(b, "  \"action_type\": %s\n", quoted(actionTypes))
	b.WriteString("  \"confidence\": {\"entity\": 0-1, \"activity\": 0-1, \"action\": 0-1}\n")
	b.WriteString("  \"summary\": short string summarizing the memo\n")
	b.WriteString("  \"people\": [{\"name\", \"entity_link\", \"role\", \"is_known\"}] (is_known true only for names in the known context above)\n")
	b.WriteString("  \"prophetic_words\": [{\"recipient\", \"content\", \"timestamp_label\"}]\n")
	b.WriteString("  \"has_prophetic_content\": bool\n")
	b.WriteString("  \"discoveries\": [{\"type\": \"person\" | \"entity\" | \"project\", \"name\", \"inferred_context\"}]\n")
	fmt.Fprintf(b, "  \"action_items\": [{\"tier\": \"red\" | \"yellow\" | \"green\", \"action_type\": %s, \"title\", \"description\", \"related_entity\", \"related_people\", \"delivery_payload\"}]\n", quoted(actionTypes))
	b.WriteString("  \"title_suggestion\": short string or null\n")
	b.WriteString("Emit only the JSON object. No prose, no markdown fencing.\n")
}

// BuildUserPrompt renders the user message embedding the transcript and, when
// present, the memo title.
func BuildUserPrompt(transcript, title string) string {
	var b strings.Builder
	if title != "" && !models.IsDefaultMemoTitle(title) {
		fmt.Fprintf(&b, "Memo title: %s\n\n", title)
	}
	b.WriteString("Transcript:\n")
	b.WriteString(transcript)
	return b.String()
}
