package engine

import (
	"github.com/kilpatrickaudio/carbon/internal/event"
	"github.com/kilpatrickaudio/carbon/internal/song"
)

// ListSceneRepeat in a song list entry repeats the previous entry's
// scene for another length count.
const ListSceneRepeat = song.NumScenes

// SongMode returns whether song list playback is enabled.
func (e *Engine) SongMode() bool {
	return e.songMode
}

// SetSongMode enables or disables song list playback. Enabling restarts
// the list from the top.
func (e *Engine) SetSongMode(enable bool) {
	if e.songMode == enable {
		return
	}
	e.songMode = enable
	if enable {
		e.listEntry = 0
		e.listBeats = 0
		e.songModeEnded = false
		e.applyListEntry()
	} else {
		e.listKbtrans = 0
	}
	e.bus.Fire(event.CtrlSongMode, boolArg(enable))
}

// beatCross runs once per beat while playing: metronome, and song list
// advance in beat sync mode.
func (e *Engine) beatCross() {
	e.metronomeBeat()
	if !e.songMode || e.songModeEnded {
		return
	}
	// check before counting so an entry of length N switches exactly on
	// its Nth beat boundary
	switch e.songStore.SceneSync() {
	case song.SceneSyncBeat:
		if e.listBeats >= e.songStore.ListLength(e.listEntry) {
			e.advanceList()
		}
	case song.SceneSyncTrack1:
		// wait for track 1 to finish its motion window
		if e.listBeats >= e.songStore.ListLength(e.listEntry) && e.tracks[0].wrapped {
			e.advanceList()
		}
	}
	e.listBeats++
}

// advanceList moves to the next song list entry. A null scene ends
// playback.
func (e *Engine) advanceList() {
	e.listBeats = 0
	e.listEntry++
	if e.listEntry >= song.ListEntries || e.songStore.ListScene(e.listEntry) == song.ListSceneNull {
		e.songModeEnded = true
		e.SetRunState(false)
		e.bus.Fire(event.EngineSongModeStatus)
		return
	}
	e.applyListEntry()
}

// applyListEntry applies the current entry's scene and key transpose.
func (e *Engine) applyListEntry() {
	if !e.songMode {
		return
	}
	scene := e.songStore.ListScene(e.listEntry)
	if scene == song.ListSceneNull {
		if e.runState {
			e.songModeEnded = true
			e.SetRunState(false)
			e.bus.Fire(event.EngineSongModeStatus)
		}
		return
	}
	e.listKbtrans = e.songStore.ListKbtrans(e.listEntry)
	if scene != ListSceneRepeat {
		e.SetScene(scene)
	}
}
