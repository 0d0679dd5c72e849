//go:build notes_per_scene

package song

// Large-notes layout: every scene carries its own event table. The
// bigger block size reduces the number of songs that fit in flash.
const numEventScenes = NumScenes

// FileSize is the fixed byte size of one song block in flash.
const FileSize = 0x16000

// NumSongs is how many songs fit in the song region.
const NumSongs = 16
