//go:build !notes_per_scene

package song

// Default layout: one event table shared by all scenes. Per-scene
// params still switch with the scene; only the notes are common.
const numEventScenes = 1

// FileSize is the fixed byte size of one song block in flash.
const FileSize = 0x5000

// NumSongs is how many songs fit in the song region.
const NumSongs = 64
