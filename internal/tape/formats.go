package tape

// Format names follow the archive's manifest vocabulary.
var (
	losslessFormats = []string{"Flac", "Shorten", "Ogg Vorbis", "VBR MP3", "MP3"}
	lossyFormats    = []string{"Ogg Vorbis", "VBR MP3", "MP3"}
)

// PlayableFormats returns the format preference order, best first.
func PlayableFormats(lossless bool) []string {
	if lossless {
		return append([]string(nil), losslessFormats...)
	}
	return append([]string(nil), lossyFormats...)
}

// formatRank returns the preference index of a format, or the slice length
// when the format is not playable.
func formatRank(format string, preference []string) int {
	for i, name := range preference {
		if name == format {
			return i
		}
	}
	return len(preference)
}

func playable(format string, preference []string) bool {
	return formatRank(format, preference) < len(preference)
}
