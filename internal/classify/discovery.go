package classify

import (
	"log/slog"
	"time"

	"github.com/voicebrain/voicebrain/internal/models"
	"github.com/voicebrain/voicebrain/internal/store"
	"github.com/voicebrain/voicebrain/internal/util"
)

// MergeDiscoveries upserts each discovery from a classification run into the
// user's context. Existing rows win: a name already present keeps its curated
// metadata. Merge failures are logged and skipped; they never fail the run
// that produced them. Returns the number of newly inserted items.
func MergeDiscoveries(st store.Store, userID string, discoveries []models.Discovery) int {
	inserted := 0
	for _, d := range discoveries {
		now := time.Now()
		item := models.ContextItem{
			ID:          util.GenerateContextItemID(),
			UserID:      userID,
			ContextType: d.Type,
			Name:        d.Name,
			Metadata: map[string]interface{}{
				"inferred_context": d.InferredContext,
				"source":           "discovery",
			},
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		isNew, err := st.UpsertDiscoveredContextItem(item)
		if err != nil {
			slog.Error("classify.MergeDiscoveries: upsert failed, skipping", "error", err, "userID", userID, "name", d.Name, "type", d.Type)
			continue
		}
		if isNew {
			inserted++
			slog.Info("classify.MergeDiscoveries: new context item discovered", "userID", userID, "name", d.Name, "type", d.Type)
		} else {
			slog.Debug("classify.MergeDiscoveries: name already known", "userID", userID, "name", d.Name, "type", d.Type)
		}
	}
	return inserted
}
