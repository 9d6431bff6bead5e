package quadtree

import (
	"time"

	"github.com/adam-ce/cesium/models"
)

// FrameStats reports what happened during a frame.
type FrameStats struct {
	Engine  string    `json:"engine"`
	Frame   uint64    `json:"frame"`
	Time    time.Time `json:"time"`
	Skipped bool      `json:"skipped,omitempty"`

	TilesVisited     int `json:"tiles_visited"`
	TilesCulled      int `json:"tiles_culled"`
	TilesSelected    int `json:"tiles_selected"`
	TilesWaiting     int `json:"tiles_waiting"`
	TilesRendered    int `json:"tiles_rendered"`
	StandIns         int `json:"stand_ins"`
	MaxLevelSelected int `json:"max_level_selected"`

	LoadsStarted   int `json:"loads_started"`
	LoadsAdvanced  int `json:"loads_advanced"`
	LoadsCompleted int `json:"loads_completed"`
	LoadsDeferred  int `json:"loads_deferred"`
	LoadsFailed    int `json:"loads_failed"`

	ErrorsDispatched int `json:"errors_dispatched"`
	VisibilityErrors int `json:"visibility_errors"`

	TilesTrimmed  int `json:"tiles_trimmed"`
	TilesResident int `json:"tiles_resident"`

	Duration time.Duration   `json:"duration"`
	Selected []models.TileID `json:"selected,omitempty"`
}

// Converged reports whether every tile selected in the frame was drawn with
// its own data and no load was in progress.
func (s FrameStats) Converged() bool {
	return !s.Skipped &&
		s.TilesSelected > 0 &&
		s.TilesWaiting == 0 &&
		s.LoadsStarted == 0 &&
		s.LoadsAdvanced == 0 &&
		s.LoadsDeferred == 0
}
